package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo stock disponible en memoria.
type StockRepo struct {
	b binding
}

// Get devuelve stock cero si el producto no tiene fila.
func (r *StockRepo) Get(ctx context.Context, productID string) (*entity.Stock, error) {
	var out *entity.Stock
	err := r.b.with(ctx, func(st *state) error {
		if s, ok := st.stock[productID]; ok {
			c := *s
			out = &c
			return nil
		}
		out = &entity.Stock{ProductID: productID, Quantity: decimal.Zero}
		return nil
	})
	return out, err
}

func (r *StockRepo) Upsert(ctx context.Context, stock *entity.Stock) error {
	return r.b.with(ctx, func(st *state) error {
		c := *stock
		c.UpdatedAt = time.Now()
		st.stock[stock.ProductID] = &c
		return nil
	})
}

// GetForUpdate dentro de una tx el mutex del store ya serializa; fuera de tx equivale a Get.
func (r *StockRepo) GetForUpdate(ctx context.Context, productID string) (*entity.Stock, error) {
	return r.Get(ctx, productID)
}
