package repository

import (
	"context"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
)

// StockReservationRepository puerto de las retenciones de stock.
// Las operaciones que compiten por la misma fila (confirmar vs. expirar) se resuelven con
// actualizaciones/borrados condicionales: quien no encuentra la fila recibe nil.
type StockReservationRepository interface {
	Create(ctx context.Context, r *entity.StockReservation) error
	GetByID(ctx context.Context, id string) (*entity.StockReservation, error)
	// LinkTransaction liga la reserva solo si sigue existiendo y sin transacción; nil si no.
	LinkTransaction(ctx context.Context, id, transactionID string) (*entity.StockReservation, error)
	// DeleteOpen borra una reserva no confirmada y la devuelve; nil si ya no existe.
	DeleteOpen(ctx context.Context, id string) (*entity.StockReservation, error)
	// DeleteExpired borra y devuelve las reservas sin transacción con reserved_at < cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) ([]*entity.StockReservation, error)
	CountOpen(ctx context.Context) (int, error)
	ListOpen(ctx context.Context, limit int) ([]*entity.StockReservation, error)
}
