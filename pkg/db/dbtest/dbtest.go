// Package dbtest opens isolated in-memory SQLite databases with the application schema applied.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
	"github.com/angelmondragon/carrental-backend/pkg/migrate"
)

// Open returns a db.Client backed by a fresh database. A single connection keeps
// transactions serialized the way row locks would on Postgres.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrate.ApplySQLiteSchema(context.Background(), conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db.Wrap(conn)
}

// SeedCar inserts an available car priced at pricePerDay.
func SeedCar(t testing.TB, conn *gorm.DB, pricePerDay string) models.Car {
	t.Helper()
	car := models.Car{
		ID:          uuid.New(),
		Brand:       "Dacia",
		Model:       "Logan",
		PricePerDay: decimal.RequireFromString(pricePerDay),
		Available:   true,
	}
	if err := conn.Create(&car).Error; err != nil {
		t.Fatalf("seed car: %v", err)
	}
	return car
}

// SeedReservation inserts a pending card reservation for car over [start, end] with the given total.
func SeedReservation(t testing.TB, conn *gorm.DB, car models.Car, start, end, total string) models.Reservation {
	t.Helper()
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		t.Fatalf("parse end: %v", err)
	}
	reservation := models.Reservation{
		ID:            uuid.New(),
		CarID:         car.ID,
		UserID:        uuid.New(),
		StartDate:     startDate,
		EndDate:       endDate,
		Status:        enums.ReservationStatusPending,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPending,
		TotalAmount:   decimal.RequireFromString(total),
		AmountPaid:    decimal.Zero,
	}
	if err := conn.Create(&reservation).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	return reservation
}
