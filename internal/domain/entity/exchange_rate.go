package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateMode origen del valor vigente de la tasa.
type RateMode string

const (
	RateModeAuto   RateMode = "AUTO"
	RateModeManual RateMode = "MANUAL"
	RateModeError  RateMode = "ERROR" // nunca se obtuvo un valor
)

// ExchangeRate referencia de precios compartida (Bs por USD).
type ExchangeRate struct {
	Value     decimal.Decimal `json:"value"`
	Mode      RateMode        `json:"mode"`
	UpdatedBy string          `json:"updatedBy"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Degraded  bool            `json:"degraded"`
	LastError string          `json:"lastError,omitempty"`
}
