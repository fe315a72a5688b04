package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReserveStockRequest body para POST /api/reservations.
type ReserveStockRequest struct {
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	SessionTag string          `json:"session_tag"`
}

// CommitReservationRequest body para POST /api/reservations/:id/commit.
type CommitReservationRequest struct {
	TransactionID string `json:"transaction_id"`
}

// ReservationResponse retención de stock.
type ReservationResponse struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReservedAt    time.Time       `json:"reserved_at"`
	TransactionID *string         `json:"transaction_id"`
	ReservedBy    string          `json:"reserved_by"`
	SessionTag    string          `json:"session_tag,omitempty"`
}

// ReleasedProduct detalle por producto de una limpieza de reservas.
type ReleasedProduct struct {
	ProductID    string          `json:"product_id"`
	Reservations int             `json:"reservations"`
	Units        decimal.Decimal `json:"units"`
}

// SweepResult resultado de la limpieza de reservas vencidas (mismo formato manual o programado).
type SweepResult struct {
	ReservationsReleased int               `json:"reservations_released"`
	UnitsReleased        decimal.Decimal   `json:"units_released"`
	ProductsAffected     int               `json:"products_affected"`
	Details              []ReleasedProduct `json:"details"`
}

// ReservationStatsResponse conteo de reservas abiertas.
type ReservationStatsResponse struct {
	Open int `json:"open"`
}

// MovementResponse movimiento de inventario (auditoría del ciclo de reservas).
type MovementResponse struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	ReservationID string          `json:"reservation_id,omitempty"`
	ProductID     string          `json:"product_id"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	StockBefore   decimal.Decimal `json:"stock_before"`
	StockAfter    decimal.Decimal `json:"stock_after"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CreatedBy     string          `json:"created_by,omitempty"`
}

// MovementListResponse página de movimientos de un producto.
type MovementListResponse struct {
	Items []MovementResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}
