package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento de inventario ligados al ciclo de una reserva.
const (
	MovementTypeReserva    = "RESERVA"    // retención temporal de stock
	MovementTypeVenta      = "VENTA"      // reserva confirmada por una transacción
	MovementTypeLiberacion = "LIBERACION" // devolución de stock retenido
)

// InventoryMovement registro de auditoría de un movimiento de stock.
type InventoryMovement struct {
	ID            string
	TransactionID string
	ReservationID string
	ProductID     string
	Type          string
	Quantity      decimal.Decimal // positivo devuelve stock, negativo lo retiene
	StockBefore   decimal.Decimal
	StockAfter    decimal.Decimal
	Reason        string
	CreatedAt     time.Time
	CreatedBy     string
}
