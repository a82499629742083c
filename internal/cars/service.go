package cars

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/auth"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/pagination"
)

// Service exposes the car catalogue. Writes are admin only.
type Service interface {
	List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Car], error)
	Get(ctx context.Context, id uuid.UUID) (*models.Car, error)
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Car, error)
	Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*models.Car, error)
	Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cars repository required")
	}
	return &service{repo: repo, logg: logg, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Car], error) {
	if (filter.AvailableFrom == nil) != (filter.AvailableTo == nil) {
		return pagination.Page[models.Car]{}, pkgerrors.New(pkgerrors.CodeValidation, "start and end must be provided together")
	}
	if filter.AvailableFrom != nil {
		if err := reservations.ValidateRange(*filter.AvailableFrom, *filter.AvailableTo); err != nil {
			return pagination.Page[models.Car]{}, err
		}
	}
	rows, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return pagination.Page[models.Car]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return pagination.Page[models.Car]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cars")
	}
	return pagination.BuildPage(rows, params.Limit, func(c models.Car) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	}), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	car, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return car, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Car, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	brand := strings.TrimSpace(input.Brand)
	model := strings.TrimSpace(input.Model)
	if brand == "" || model == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "brand and model are required")
	}
	if !input.PricePerDay.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_per_day must be positive")
	}
	available := true
	if input.Available != nil {
		available = *input.Available
	}
	car := &models.Car{
		Brand:       brand,
		Model:       model,
		Year:        input.Year,
		PricePerDay: input.PricePerDay.Round(2),
		Available:   available,
		ImageURL:    input.ImageURL,
	}
	if err := s.repo.Create(ctx, car); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create car")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithCarID(ctx, car.ID.String()), "car created")
	}
	return car, nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*models.Car, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	updates := map[string]any{}
	if input.Brand != nil {
		if strings.TrimSpace(*input.Brand) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "brand cannot be empty")
		}
		updates["brand"] = strings.TrimSpace(*input.Brand)
	}
	if input.Model != nil {
		if strings.TrimSpace(*input.Model) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "model cannot be empty")
		}
		updates["model"] = strings.TrimSpace(*input.Model)
	}
	if input.Year != nil {
		updates["year"] = *input.Year
	}
	if input.PricePerDay != nil {
		if !input.PricePerDay.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_per_day must be positive")
		}
		updates["price_per_day"] = input.PricePerDay.Round(2)
	}
	if input.Available != nil {
		updates["available"] = *input.Available
	}
	if input.ImageURL != nil {
		updates["image_url"] = *input.ImageURL
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return nil, mapNotFound(err)
		}
	}
	return s.Get(ctx, id)
}

// Delete refuses to drop a car that still has live reservations ending today or later.
func (s *service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	busy, err := s.repo.HasUpcomingReservations(ctx, id, today)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check car reservations")
	}
	if busy {
		return pkgerrors.New(pkgerrors.CodeConflict, "car has upcoming reservations")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapNotFound(err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithCarID(ctx, id.String()), "car deleted")
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "car not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "car lookup")
}
