package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/pagination"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

// PaymentFields are the reservation columns owned by the reconciler.
type PaymentFields struct {
	PaymentMethod    enums.PaymentMethod
	PaymentStatus    enums.PaymentStatus
	AmountPaid       decimal.Decimal
	PaidAt           *time.Time
	PaymentReference *string
	// Status is written alongside the payment columns when set.
	Status *enums.ReservationStatus
}

// ListFilter narrows ListReservations; a nil UserID lists every reservation.
type ListFilter struct {
	UserID *uuid.UUID
	CarID  *uuid.UUID
	Status *enums.ReservationStatus
}

// Repository is the only mutation boundary for reservation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockCar(ctx context.Context, carID uuid.UUID) (*models.Car, error)
	FindCar(ctx context.Context, carID uuid.UUID) (*models.Car, error)
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ExistsOverlap(ctx context.Context, carID uuid.UUID, start, end types.Date, excludeID *uuid.UUID) (bool, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdatePaymentFields(ctx context.Context, id uuid.UUID, fields PaymentFields) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Reservation, error)
}

// payment columns may only change through UpdatePaymentFields.
var paymentColumns = map[string]struct{}{
	"payment_method":    {},
	"payment_status":    {},
	"amount_paid":       {},
	"paid_at":           {},
	"payment_reference": {},
}

// ErrPaymentColumns is returned when UpdateFields is asked to write a reconciler-owned column.
var ErrPaymentColumns = errors.New("payment columns are written by the reconciler only")

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a reservation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockCar takes the per-car row lock that serializes bookings of one car.
func (r *repository) LockCar(ctx context.Context, carID uuid.UUID) (*models.Car, error) {
	var car models.Car
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", carID).
		First(&car).Error
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (r *repository) FindCar(ctx context.Context, carID uuid.UUID) (*models.Car, error) {
	var car models.Car
	if err := r.db.WithContext(ctx).Where("id = ?", carID).First(&car).Error; err != nil {
		return nil, err
	}
	return &car, nil
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ExistsOverlap(ctx context.Context, carID uuid.UUID, start, end types.Date, excludeID *uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Scopes(OverlapScope(start, end)).
		Where("reservations.car_id = ?", carID)
	if excludeID != nil {
		q = q.Where("reservations.id <> ?", *excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	for column := range updates {
		if _, ok := paymentColumns[column]; ok {
			return ErrPaymentColumns
		}
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdatePaymentFields writes all five payment columns in a single UPDATE.
func (r *repository) UpdatePaymentFields(ctx context.Context, id uuid.UUID, fields PaymentFields) error {
	updates := map[string]any{
		"payment_method":    fields.PaymentMethod,
		"payment_status":    fields.PaymentStatus,
		"amount_paid":       fields.AmountPaid,
		"paid_at":           fields.PaidAt,
		"payment_reference": fields.PaymentReference,
		"updated_at":        time.Now().UTC(),
	}
	if fields.Status != nil {
		updates["status"] = *fields.Status
	}
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Reservation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns newest-first rows fetched with one extra row to detect the next page.
func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Reservation, error) {
	page, err := pagination.Keyset("reservations", params)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&models.Reservation{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.CarID != nil {
		q = q.Where("car_id = ?", *filter.CarID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	var rows []models.Reservation
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}
