package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// Repository persists payment attempts. Rows are appended and updated, never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*models.Payment, error)
	Latest(ctx context.Context, reservationID uuid.UUID) (*models.Payment, error)
	ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Payment, error)
	ListStalePending(ctx context.Context, method enums.PaymentMethod, olderThan time.Time, limit int) ([]models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a payment repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("transaction_id = ?", transactionID))
}

func (r *repository) FindByTransactionIDForUpdate(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("transaction_id = ?", transactionID))
}

// Latest returns the newest attempt for the reservation, or nil when none exists.
func (r *repository) Latest(ctx context.Context, reservationID uuid.UUID) (*models.Payment, error) {
	payment, err := r.first(r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at DESC").
		Order("id DESC"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return payment, err
}

func (r *repository) ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListStalePending returns pending attempts with an external reference created before olderThan.
func (r *repository) ListStalePending(ctx context.Context, method enums.PaymentMethod, olderThan time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_method = ?", enums.ChargeStatusPending, method).
		Where("transaction_id IS NOT NULL").
		Where("created_at < ?", olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) first(q *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	if err := q.First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}
