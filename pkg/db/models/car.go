package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Car is a rentable vehicle in the catalogue.
type Car struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Brand       string          `gorm:"column:brand;not null"`
	Model       string          `gorm:"column:model;not null"`
	Year        *int            `gorm:"column:year"`
	PricePerDay decimal.Decimal `gorm:"column:price_per_day;type:numeric(10,2);not null"`
	Available   bool            `gorm:"column:available;not null"`
	ImageURL    *string         `gorm:"column:image_url"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Car) TableName() string { return "cars" }
