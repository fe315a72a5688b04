package inventory

import (
	"context"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza atomicidad para el libro de reservas.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		resRepo repository.StockReservationRepository,
		stockRepo repository.StockRepository,
		movRepo repository.InventoryMovementRepository,
	) error) error
}

// PostingGuard verifica que la caja admita ventas antes de confirmar una reserva.
type PostingGuard interface {
	EnsureAcceptsPostings(ctx context.Context) (*entity.RegisterSession, error)
}

// Publisher canal push.
type Publisher interface {
	Broadcast(evt broadcast.Event)
}
