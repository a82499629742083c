package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/auth"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/pagination"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

type stubReservations struct {
	availabilityFn func(ctx context.Context, carID uuid.UUID, start, end types.Date) (*reservations.Availability, error)
	createFn       func(ctx context.Context, actor auth.Actor, input reservations.CreateInput) (*models.Reservation, error)
	getFn          func(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Reservation, error)
	updateFn       func(ctx context.Context, actor auth.Actor, id uuid.UUID, input reservations.UpdateInput) (*models.Reservation, error)
	deleteFn       func(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	listFn         func(ctx context.Context, actor auth.Actor, params pagination.Params) (pagination.Page[models.Reservation], error)
}

func (s stubReservations) CheckAvailability(ctx context.Context, carID uuid.UUID, start, end types.Date) (*reservations.Availability, error) {
	return s.availabilityFn(ctx, carID, start, end)
}

func (s stubReservations) CreateReservation(ctx context.Context, actor auth.Actor, input reservations.CreateInput) (*models.Reservation, error) {
	return s.createFn(ctx, actor, input)
}

func (s stubReservations) GetReservation(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Reservation, error) {
	return s.getFn(ctx, actor, id)
}

func (s stubReservations) UpdateReservation(ctx context.Context, actor auth.Actor, id uuid.UUID, input reservations.UpdateInput) (*models.Reservation, error) {
	return s.updateFn(ctx, actor, id, input)
}

func (s stubReservations) DeleteReservation(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	return s.deleteFn(ctx, actor, id)
}

func (s stubReservations) ListReservations(ctx context.Context, actor auth.Actor, params pagination.Params) (pagination.Page[models.Reservation], error) {
	return s.listFn(ctx, actor, params)
}

func sampleReservation(userID uuid.UUID) *models.Reservation {
	now := time.Now().UTC()
	return &models.Reservation{
		ID:              uuid.New(),
		CarID:           uuid.New(),
		UserID:          userID,
		StartDate:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC),
		PickupLocation:  "Casablanca",
		DropoffLocation: "Rabat",
		Status:          enums.ReservationStatusPending,
		PaymentMethod:   enums.PaymentMethodCard,
		PaymentStatus:   enums.PaymentStatusPending,
		TotalAmount:     decimal.RequireFromString("1500"),
		AmountPaid:      decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateReservation(t *testing.T) {
	actor := customer()
	carID := uuid.New()
	svc := stubReservations{
		createFn: func(ctx context.Context, got auth.Actor, input reservations.CreateInput) (*models.Reservation, error) {
			if got.UserID != actor.UserID {
				t.Fatalf("unexpected actor %s", got.UserID)
			}
			if input.CarID != carID || input.StartDate.String() != "2026-07-01" || input.EndDate.String() != "2026-07-03" {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.PickupLocation != "Casablanca" || input.PaymentMethod != enums.PaymentMethodCash {
				t.Fatalf("unexpected input %+v", input)
			}
			return sampleReservation(actor.UserID), nil
		},
	}

	body := `{"car_id":"` + carID.String() + `","start_date":"2026-07-01","end_date":"2026-07-03","pickup_location":"  Casablanca ","dropoff_location":"Rabat","payment_method":"cash"}`
	resp := httptest.NewRecorder()
	CreateReservation(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", body, &actor, nil))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var dto reservations.ReservationDTO
	decodeData(t, resp, &dto)
	if dto.UserID != actor.UserID || dto.StartDate.String() != "2026-07-01" {
		t.Fatalf("unexpected payload %+v", dto)
	}
}

func TestCreateReservationRejectsBadBodies(t *testing.T) {
	actor := customer()
	svc := stubReservations{
		createFn: func(context.Context, auth.Actor, reservations.CreateInput) (*models.Reservation, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	carID := uuid.NewString()
	cases := map[string]string{
		"missing dates":  `{"car_id":"` + carID + `","pickup_location":"A","dropoff_location":"B"}`,
		"unknown field":  `{"car_id":"` + carID + `","start_date":"2026-07-01","end_date":"2026-07-03","pickup_location":"A","dropoff_location":"B","foo":1}`,
		"bad method":     `{"car_id":"` + carID + `","start_date":"2026-07-01","end_date":"2026-07-03","pickup_location":"A","dropoff_location":"B","payment_method":"cheque"}`,
		"missing pickup": `{"car_id":"` + carID + `","start_date":"2026-07-01","end_date":"2026-07-03","dropoff_location":"B"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			CreateReservation(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", body, &actor, nil))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeValidation) {
				t.Fatalf("unexpected code %s", code)
			}
		})
	}
}

func TestReservationRoutesRequireActor(t *testing.T) {
	resp := httptest.NewRecorder()
	ListReservations(stubReservations{}, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", nil, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestListReservationsPassesPaging(t *testing.T) {
	actor := customer()
	svc := stubReservations{
		listFn: func(ctx context.Context, got auth.Actor, params pagination.Params) (pagination.Page[models.Reservation], error) {
			if params.Limit != 5 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return pagination.Page[models.Reservation]{
				Items:      []models.Reservation{*sampleReservation(got.UserID)},
				NextCursor: "next",
			}, nil
		},
	}
	resp := httptest.NewRecorder()
	ListReservations(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/?limit=5&cursor=abc", "", &actor, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var page pagination.Page[reservations.ReservationDTO]
	decodeData(t, resp, &page)
	if len(page.Items) != 1 || page.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestGetReservationMapsErrors(t *testing.T) {
	actor := customer()
	id := uuid.New()
	svc := stubReservations{
		getFn: func(ctx context.Context, _ auth.Actor, got uuid.UUID) (*models.Reservation, error) {
			if got != id {
				t.Fatalf("unexpected id %s", got)
			}
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
		},
	}
	resp := httptest.NewRecorder()
	GetReservation(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", &actor, map[string]string{"reservationId": id.String()}))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	GetReservation(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", &actor, map[string]string{"reservationId": "nope"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdateReservationBuildsPartialInput(t *testing.T) {
	actor := admin()
	id := uuid.New()
	svc := stubReservations{
		updateFn: func(ctx context.Context, _ auth.Actor, got uuid.UUID, input reservations.UpdateInput) (*models.Reservation, error) {
			if input.StartDate != nil || input.PickupLocation != nil {
				t.Fatalf("expected untouched fields to stay nil: %+v", input)
			}
			if input.EndDate == nil || input.EndDate.String() != "2026-07-05" {
				t.Fatalf("unexpected end date %+v", input.EndDate)
			}
			if input.Status == nil || *input.Status != enums.ReservationStatusCancelled {
				t.Fatalf("unexpected status %+v", input.Status)
			}
			res := sampleReservation(uuid.New())
			res.ID = got
			res.Status = enums.ReservationStatusCancelled
			return res, nil
		},
	}
	resp := httptest.NewRecorder()
	req := newRequest(http.MethodPatch, "/", `{"end_date":"2026-07-05","status":"cancelled"}`, &actor, map[string]string{"reservationId": id.String()})
	UpdateReservation(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var dto reservations.ReservationDTO
	decodeData(t, resp, &dto)
	if dto.ID != id || dto.Status != enums.ReservationStatusCancelled {
		t.Fatalf("unexpected payload %+v", dto)
	}
}

func TestDeleteReservation(t *testing.T) {
	actor := customer()
	id := uuid.New()
	var called bool
	svc := stubReservations{
		deleteFn: func(ctx context.Context, _ auth.Actor, got uuid.UUID) error {
			called = got == id
			return nil
		},
	}
	resp := httptest.NewRecorder()
	DeleteReservation(svc, nil).ServeHTTP(resp, newRequest(http.MethodDelete, "/", "", &actor, map[string]string{"reservationId": id.String()}))
	if resp.Code != http.StatusNoContent || !called {
		t.Fatalf("expected 204 and service call, got %d called=%v", resp.Code, called)
	}
}

func TestCarAvailabilityRequiresBothDates(t *testing.T) {
	carID := uuid.New()
	svc := stubReservations{
		availabilityFn: func(ctx context.Context, got uuid.UUID, start, end types.Date) (*reservations.Availability, error) {
			return &reservations.Availability{CarID: got, StartDate: start, EndDate: end, Available: true}, nil
		},
	}
	params := map[string]string{"carId": carID.String()}

	resp := httptest.NewRecorder()
	CarAvailability(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/?start=2026-07-01", "", nil, params))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	CarAvailability(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/?start=2026-07-01&end=2026-07-04", "", nil, params))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var result reservations.Availability
	decodeData(t, resp, &result)
	if !result.Available || result.CarID != carID {
		t.Fatalf("unexpected payload %+v", result)
	}
}
