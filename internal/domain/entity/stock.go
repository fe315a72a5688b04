package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock representa la existencia disponible de un producto (cantidad vendible, ya descontadas las reservas).
type Stock struct {
	ProductID string
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}
