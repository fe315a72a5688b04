package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockReservation retención temporal de stock mientras una venta está en curso.
// TransactionID nil = todavía no confirmada por una venta.
type StockReservation struct {
	ID            string
	ProductID     string
	Quantity      decimal.Decimal
	ReservedAt    time.Time
	TransactionID *string
	ReservedBy    string
	SessionTag    string
}

// Committed indica si la reserva ya quedó ligada a una transacción.
func (r *StockReservation) Committed() bool {
	return r.TransactionID != nil
}

// ExpiredAt true si no está confirmada y es estrictamente más vieja que cutoff.
func (r *StockReservation) ExpiredAt(cutoff time.Time) bool {
	return r.TransactionID == nil && r.ReservedAt.Before(cutoff)
}
