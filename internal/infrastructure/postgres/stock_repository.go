package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo implementación de StockRepository sobre PostgreSQL (usable con pool o tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

// Get obtiene el stock disponible de un producto; cero si no tiene fila.
func (r *StockRepo) Get(ctx context.Context, productID string) (*entity.Stock, error) {
	return r.get(ctx, `SELECT product_id, quantity, updated_at FROM stock WHERE product_id = $1`, productID, "get stock")
}

// Upsert inserta o actualiza la cantidad disponible.
func (r *StockRepo) Upsert(ctx context.Context, stock *entity.Stock) error {
	query := `
		INSERT INTO stock (product_id, quantity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`
	_, err := r.q.Exec(ctx, query, stock.ProductID, stock.Quantity)
	return storeError("upsert stock", err)
}

// GetForUpdate obtiene el stock y bloquea la fila para update (SELECT FOR UPDATE).
// Si el producto no tiene fila se crea en cero para poder bloquearla.
func (r *StockRepo) GetForUpdate(ctx context.Context, productID string) (*entity.Stock, error) {
	if _, err := r.q.Exec(ctx,
		`INSERT INTO stock (product_id, quantity, updated_at) VALUES ($1, 0, now()) ON CONFLICT (product_id) DO NOTHING`,
		productID,
	); err != nil {
		return nil, storeError("ensure stock row", err)
	}
	return r.get(ctx, `SELECT product_id, quantity, updated_at FROM stock WHERE product_id = $1 FOR UPDATE`, productID, "get stock for update")
}

func (r *StockRepo) get(ctx context.Context, query, productID, op string) (*entity.Stock, error) {
	var s entity.Stock
	err := r.q.QueryRow(ctx, query, productID).Scan(&s.ProductID, &s.Quantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.Stock{ProductID: productID, Quantity: decimal.Zero}, nil
		}
		return nil, storeError(op, err)
	}
	return &s, nil
}
