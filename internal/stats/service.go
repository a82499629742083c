// Package stats aggregates admin dashboard figures.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/carrental-backend/pkg/auth"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
)

type Summary struct {
	Cars             int64            `json:"cars"`
	Reservations     int64            `json:"reservations"`
	ByStatus         map[string]int64 `json:"reservations_by_status"`
	PaidReservations int64            `json:"paid_reservations"`
	Revenue          decimal.Decimal  `json:"revenue"`
}

type MonthlyPoint struct {
	Month        int             `json:"month"`
	Reservations int64           `json:"reservations"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type Service interface {
	Summary(ctx context.Context, actor auth.Actor) (*Summary, error)
	Monthly(ctx context.Context, actor auth.Actor, year int) ([]MonthlyPoint, error)
}

type service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

type statusCount struct {
	Status string
	Total  int64
}

func (s *service) Summary(ctx context.Context, actor auth.Actor) (*Summary, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	out := &Summary{ByStatus: map[string]int64{}, Revenue: decimal.Zero}
	conn := s.db.WithContext(ctx)

	if err := conn.Model(&models.Car{}).Count(&out.Cars).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count cars")
	}

	var counts []statusCount
	if err := conn.Model(&models.Reservation{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count reservations")
	}
	for _, c := range counts {
		out.ByStatus[c.Status] = c.Total
		out.Reservations += c.Total
	}

	var paid []decimal.Decimal
	if err := conn.Model(&models.Reservation{}).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Pluck("amount_paid", &paid).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum revenue")
	}
	for _, amount := range paid {
		out.Revenue = out.Revenue.Add(amount)
	}
	out.PaidReservations = int64(len(paid))
	return out, nil
}

type monthlyRow struct {
	CreatedAt     time.Time
	PaymentStatus enums.PaymentStatus
	AmountPaid    decimal.Decimal
}

// Monthly buckets reservations by the UTC month they were created in.
func (s *service) Monthly(ctx context.Context, actor auth.Actor, year int) ([]MonthlyPoint, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if year < 2000 || year > 2100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "year out of range")
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	var rows []monthlyRow
	if err := s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("created_at, payment_status, amount_paid").
		Where("created_at >= ? AND created_at < ?", from, to).
		Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load monthly reservations")
	}

	points := make([]MonthlyPoint, 12)
	for i := range points {
		points[i] = MonthlyPoint{Month: i + 1, Revenue: decimal.Zero}
	}
	for _, row := range rows {
		p := &points[row.CreatedAt.UTC().Month()-1]
		p.Reservations++
		if row.PaymentStatus == enums.PaymentStatusPaid {
			p.Revenue = p.Revenue.Add(row.AmountPaid)
		}
	}
	return points, nil
}
