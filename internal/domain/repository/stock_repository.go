package repository

import (
	"context"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
)

// StockRepository define el puerto para consultar/actualizar el stock disponible por producto.
// Usado dentro de transacciones para garantizar consistencia.
type StockRepository interface {
	Get(ctx context.Context, productID string) (*entity.Stock, error)
	Upsert(ctx context.Context, stock *entity.Stock) error
	// GetForUpdate bloquea la fila para update (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, productID string) (*entity.Stock, error)
}
