package reservations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/auth"
	dbpkg "github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/carrental-backend/pkg/pagination"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes reservation lifecycle operations.
type Service interface {
	CheckAvailability(ctx context.Context, carID uuid.UUID, start, end types.Date) (*Availability, error)
	CreateReservation(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Reservation, error)
	GetReservation(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	ListReservations(ctx context.Context, actor auth.Actor, params pagination.Params) (pagination.Page[models.Reservation], error)
}

type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Outbox     outbox.Emitter
	Metrics    *metrics.BookingMetrics
	Logger     *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	metrics *metrics.BookingMetrics
	logg    *logger.Logger
}

// NewService builds the reservation service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    params.Repository,
		tx:      params.Tx,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) CheckAvailability(ctx context.Context, carID uuid.UUID, start, end types.Date) (*Availability, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	car, err := s.repo.FindCar(ctx, carID)
	if err != nil {
		return nil, mapNotFound(err, "car not found")
	}
	result := &Availability{CarID: carID, StartDate: start, EndDate: end}
	if !car.Available {
		return result, nil
	}
	busy, err := s.repo.ExistsOverlap(ctx, carID, start, end, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check availability")
	}
	result.Available = !busy
	return result, nil
}

func (s *service) CreateReservation(ctx context.Context, actor auth.Actor, input CreateInput) (*models.Reservation, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.CarID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "car_id is required")
	}
	if err := ValidateRange(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCard
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment_method")
	}

	var created models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		car, err := repo.LockCar(ctx, input.CarID)
		if err != nil {
			return mapNotFound(err, "car not found")
		}
		if !car.Available {
			return pkgerrors.New(pkgerrors.CodeConflict, "car is not available for booking")
		}
		busy, err := repo.ExistsOverlap(ctx, car.ID, input.StartDate, input.EndDate, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check availability")
		}
		if busy {
			return pkgerrors.New(pkgerrors.CodeConflict, "car is already booked for the selected dates")
		}

		created = models.Reservation{
			CarID:           car.ID,
			UserID:          actor.UserID,
			StartDate:       input.StartDate.Time,
			EndDate:         input.EndDate.Time,
			PickupLocation:  input.PickupLocation,
			DropoffLocation: input.DropoffLocation,
			Status:          enums.ReservationStatusPending,
			PaymentMethod:   method,
			PaymentStatus:   enums.PaymentStatusPending,
			TotalAmount:     TotalAmount(car.PricePerDay, input.StartDate, input.EndDate),
		}
		if err := repo.Create(ctx, &created); err != nil {
			return mapWriteError(err, "create reservation")
		}
		return s.emit(ctx, tx, enums.EventReservationCreated, actor, created)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.metrics.IncReservation("conflict")
		} else {
			s.metrics.IncReservation("error")
		}
		return nil, err
	}
	s.metrics.IncReservation("created")
	if s.logg != nil {
		logCtx := s.logg.WithReservationID(ctx, created.ID.String())
		logCtx = s.logg.WithCarID(logCtx, created.CarID.String())
		s.logg.Info(logCtx, "reservation created")
	}
	return &created, nil
}

func (s *service) GetReservation(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "reservation not found")
	}
	if !actor.CanAccess(reservation.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	return reservation, nil
}

func (s *service) UpdateReservation(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*models.Reservation, error) {
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
		}
		if *input.Status == enums.ReservationStatusPaid && !actor.IsAdmin() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins may mark a reservation paid")
		}
	}

	var updated *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapNotFound(err, "reservation not found")
		}
		if !actor.CanAccess(current.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
		}

		start := types.NewDate(current.StartDate)
		end := types.NewDate(current.EndDate)
		if input.StartDate != nil {
			start = *input.StartDate
		}
		if input.EndDate != nil {
			end = *input.EndDate
		}
		status := current.Status
		if input.Status != nil {
			status = *input.Status
		}
		datesChanged := !start.Time.Equal(current.StartDate) || !end.Time.Equal(current.EndDate)
		reactivated := !current.Status.HoldsDates() && status.HoldsDates()

		updates := map[string]any{}
		var car *models.Car
		if datesChanged || reactivated {
			if err := ValidateRange(start, end); err != nil {
				return err
			}
			// car before reservation
			car, err = repo.LockCar(ctx, current.CarID)
			if err != nil {
				return mapNotFound(err, "car not found")
			}
		}
		if _, err := repo.FindByIDForUpdate(ctx, id); err != nil {
			return mapNotFound(err, "reservation not found")
		}

		if (datesChanged || reactivated) && status.HoldsDates() {
			busy, err := repo.ExistsOverlap(ctx, current.CarID, start, end, &current.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check availability")
			}
			if busy {
				return pkgerrors.New(pkgerrors.CodeConflict, "car is already booked for the selected dates")
			}
		}
		if datesChanged {
			updates["start_date"] = start.Time
			updates["end_date"] = end.Time
			total := TotalAmount(car.PricePerDay, start, end)
			if total.LessThan(current.AmountPaid) {
				return pkgerrors.New(pkgerrors.CodeInvariant, "new dates would price the reservation below the amount already paid")
			}
			updates["total_amount"] = total
		}
		if input.PickupLocation != nil {
			updates["pickup_location"] = *input.PickupLocation
		}
		if input.DropoffLocation != nil {
			updates["dropoff_location"] = *input.DropoffLocation
		}
		if input.Status != nil && status != current.Status {
			updates["status"] = status
		}
		if len(updates) == 0 {
			updated = current
			return nil
		}
		if err := repo.UpdateFields(ctx, id, updates); err != nil {
			return mapWriteError(err, "update reservation")
		}
		updated, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventReservationUpdated, actor, *updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) DeleteReservation(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapNotFound(err, "reservation not found")
		}
		if !actor.CanAccess(current.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return mapNotFound(err, "reservation not found")
		}
		return s.emit(ctx, tx, enums.EventReservationDeleted, actor, *current)
	})
}

func (s *service) ListReservations(ctx context.Context, actor auth.Actor, params pagination.Params) (pagination.Page[models.Reservation], error) {
	if actor.UserID == uuid.Nil {
		return pagination.Page[models.Reservation]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	filter := ListFilter{}
	if !actor.IsAdmin() {
		filter.UserID = &actor.UserID
	}
	rows, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return pagination.Page[models.Reservation]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return pagination.Page[models.Reservation]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list reservations")
	}
	return pagination.BuildPage(rows, params.Limit, func(r models.Reservation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	}), nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor auth.Actor, r models.Reservation) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReservation,
		AggregateID:   r.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
		Data: payloads.ReservationEvent{
			ReservationID: r.ID,
			CarID:         r.CarID,
			UserID:        r.UserID,
			StartDate:     types.NewDate(r.StartDate).String(),
			EndDate:       types.NewDate(r.EndDate).String(),
			Status:        r.Status,
			PaymentMethod: r.PaymentMethod,
			TotalAmount:   r.TotalAmount,
		},
	})
}

func mapNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// mapWriteError turns the Postgres exclusion constraint into the same conflict the locked check reports.
func mapWriteError(err error, message string) error {
	if dbpkg.IsExclusionViolation(err, "reservations_no_overlap") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "car is already booked for the selected dates")
	}
	if dbpkg.IsCheckViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
