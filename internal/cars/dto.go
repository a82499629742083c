package cars

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carrental-backend/pkg/db/models"
	"github.com/angelmondragon/carrental-backend/pkg/types"
)

// Filter narrows the catalogue. Both AvailableFrom and AvailableTo must be set for the
// date filter to apply.
type Filter struct {
	Brand         string
	Model         string
	MaxPrice      *decimal.Decimal
	OnlyAvailable bool
	AvailableFrom *types.Date
	AvailableTo   *types.Date
}

type CreateInput struct {
	Brand       string          `json:"brand" validate:"required,max=100"`
	Model       string          `json:"model" validate:"required,max=100"`
	Year        *int            `json:"year" validate:"omitempty,min=1950,max=2100"`
	PricePerDay decimal.Decimal `json:"price_per_day" validate:"gt=0"`
	Available   *bool           `json:"available"`
	ImageURL    *string         `json:"image_url" validate:"omitempty,url"`
}

type UpdateInput struct {
	Brand       *string          `json:"brand" validate:"omitempty,max=100"`
	Model       *string          `json:"model" validate:"omitempty,max=100"`
	Year        *int             `json:"year" validate:"omitempty,min=1950,max=2100"`
	PricePerDay *decimal.Decimal `json:"price_per_day" validate:"omitempty,gt=0"`
	Available   *bool            `json:"available"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
}

// CarDTO is the API representation of a car.
type CarDTO struct {
	ID          uuid.UUID       `json:"id"`
	Brand       string          `json:"brand"`
	Model       string          `json:"model"`
	Year        *int            `json:"year,omitempty"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
	Available   bool            `json:"available"`
	ImageURL    *string         `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func NewCarDTO(c models.Car) CarDTO {
	return CarDTO{
		ID:          c.ID,
		Brand:       c.Brand,
		Model:       c.Model,
		Year:        c.Year,
		PricePerDay: c.PricePerDay,
		Available:   c.Available,
		ImageURL:    c.ImageURL,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
