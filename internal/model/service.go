package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a bookable offering. Duration is in minutes.
type Service struct {
	Base
	Name      string          `db:"name" json:"name"`
	Duration  int             `db:"duration" json:"duration"`
	Price     decimal.Decimal `db:"price" json:"price"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type ServiceRequest struct {
	Name     string          `json:"name" binding:"required,max=200"`
	Duration int             `json:"duration" binding:"required,gt=0"`
	Price    decimal.Decimal `json:"price"`
}
