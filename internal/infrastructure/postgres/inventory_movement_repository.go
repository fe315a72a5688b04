package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.InventoryMovementRepository = (*InventoryMovementRepo)(nil)

var movementColumns = []any{
	"id", "transaction_id", "reservation_id", "product_id", "type", "quantity",
	"stock_before", "stock_after", "reason", "created_at", "created_by",
}

// InventoryMovementRepo implementación sobre PostgreSQL (usable con pool o tx).
type InventoryMovementRepo struct {
	q Querier
}

// NewInventoryMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInventoryMovementRepository(q Querier) *InventoryMovementRepo {
	return &InventoryMovementRepo{q: q}
}

// Create persiste un movimiento de inventario.
func (r *InventoryMovementRepo) Create(ctx context.Context, m *entity.InventoryMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	query, args, err := insertMovementSQL(m)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, query, args...)
	return storeError("create movement", err)
}

// ListByProduct lista movimientos de un producto en un rango de fechas, más recientes primero.
func (r *InventoryMovementRepo) ListByProduct(ctx context.Context, productID string, from, to *time.Time, limit, offset int) ([]*entity.InventoryMovement, error) {
	query, args, err := listMovementsSQL(productID, from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("list by product", err)
	}
	defer rows.Close()
	var list []*entity.InventoryMovement
	for rows.Next() {
		var m entity.InventoryMovement
		var txID, resID, reason, createdBy *string
		if err := rows.Scan(&m.ID, &txID, &resID, &m.ProductID, &m.Type, &m.Quantity,
			&m.StockBefore, &m.StockAfter, &reason, &m.CreatedAt, &createdBy); err != nil {
			return nil, storeError("scan movement", err)
		}
		m.TransactionID = deref(txID)
		m.ReservationID = deref(resID)
		m.Reason = deref(reason)
		m.CreatedBy = deref(createdBy)
		list = append(list, &m)
	}
	return list, storeError("list by product", rows.Err())
}

func insertMovementSQL(m *entity.InventoryMovement) (string, []any, error) {
	return dialect.Insert("inventory_movements").Rows(goqu.Record{
		"id":             m.ID,
		"transaction_id": nullIfEmpty(m.TransactionID),
		"reservation_id": nullIfEmpty(m.ReservationID),
		"product_id":     m.ProductID,
		"type":           m.Type,
		"quantity":       m.Quantity,
		"stock_before":   m.StockBefore,
		"stock_after":    m.StockAfter,
		"reason":         nullIfEmpty(m.Reason),
		"created_at":     m.CreatedAt,
		"created_by":     nullIfEmpty(m.CreatedBy),
	}).Prepared(true).ToSQL()
}

func listMovementsSQL(productID string, from, to *time.Time, limit, offset int) (string, []any, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	ds := dialect.From("inventory_movements").Select(movementColumns...).
		Where(goqu.C("product_id").Eq(productID))
	if from != nil {
		ds = ds.Where(goqu.C("created_at").Gte(*from))
	}
	if to != nil {
		ds = ds.Where(goqu.C("created_at").Lte(*to))
	}
	return ds.Order(goqu.C("created_at").Desc()).
		Limit(uint(limit)).Offset(uint(offset)).
		Prepared(true).ToSQL()
}
