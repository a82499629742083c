package cars

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/pagination"
)

// Repository reads and writes the car catalogue.
type Repository interface {
	List(ctx context.Context, filter Filter, params pagination.Params) ([]models.Car, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Car, error)
	Create(ctx context.Context, car *models.Car) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasUpcomingReservations(ctx context.Context, id uuid.UUID, from time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, filter Filter, params pagination.Params) ([]models.Car, error) {
	page, err := pagination.Keyset("cars", params)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&models.Car{})
	if brand := strings.TrimSpace(filter.Brand); brand != "" {
		q = q.Where("LOWER(cars.brand) LIKE ?", "%"+strings.ToLower(brand)+"%")
	}
	if model := strings.TrimSpace(filter.Model); model != "" {
		q = q.Where("LOWER(cars.model) LIKE ?", "%"+strings.ToLower(model)+"%")
	}
	if filter.MaxPrice != nil {
		q = q.Where("cars.price_per_day <= ?", *filter.MaxPrice)
	}
	if filter.OnlyAvailable {
		q = q.Where("cars.available = ?", true)
	}
	if filter.AvailableFrom != nil && filter.AvailableTo != nil {
		booked := r.db.Model(&models.Reservation{}).
			Select("1").
			Where("reservations.car_id = cars.id").
			Scopes(reservations.OverlapScope(*filter.AvailableFrom, *filter.AvailableTo))
		q = q.Where("cars.available = ?", true).Where("NOT EXISTS (?)", booked)
	}

	var rows []models.Car
	err = q.Scopes(page).Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	var car models.Car
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&car).Error; err != nil {
		return nil, err
	}
	return &car, nil
}

func (r *repository) Create(ctx context.Context, car *models.Car) error {
	if car.ID == uuid.Nil {
		car.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(car).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Car{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Car{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HasUpcomingReservations reports whether a live reservation ends on or after from.
func (r *repository) HasUpcomingReservations(ctx context.Context, id uuid.UUID, from time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("car_id = ?", id).
		Where("status <> ?", enums.ReservationStatusCancelled).
		Where("end_date >= ?", from).
		Count(&count).Error
	return count > 0, err
}
