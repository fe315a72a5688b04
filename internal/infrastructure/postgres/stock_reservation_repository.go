package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.StockReservationRepository = (*StockReservationRepo)(nil)

var reservationColumns = []any{"id", "product_id", "quantity", "reserved_at", "transaction_id", "reserved_by", "session_tag"}

// StockReservationRepo reservas de stock sobre PostgreSQL. Confirmar y expirar compiten por la
// misma fila; ambas son sentencias condicionales con RETURNING, así que solo una la obtiene.
type StockReservationRepo struct {
	q Querier
}

// NewStockReservationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockReservationRepository(q Querier) *StockReservationRepo {
	return &StockReservationRepo{q: q}
}

// Create inserta la reserva.
func (r *StockReservationRepo) Create(ctx context.Context, res *entity.StockReservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	query, args, err := dialect.Insert("stock_reservations").Rows(goqu.Record{
		"id":             res.ID,
		"product_id":     res.ProductID,
		"quantity":       res.Quantity,
		"reserved_at":    res.ReservedAt,
		"transaction_id": nullable(res.TransactionID),
		"reserved_by":    res.ReservedBy,
		"session_tag":    res.SessionTag,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert reservation: %w", err)
	}
	_, err = r.q.Exec(ctx, query, args...)
	return storeError("create reservation", err)
}

// GetByID nil si no existe.
func (r *StockReservationRepo) GetByID(ctx context.Context, id string) (*entity.StockReservation, error) {
	query, args, err := dialect.From("stock_reservations").Select(reservationColumns...).
		Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	return r.one(ctx, query, args, err)
}

// LinkTransaction liga la reserva solo si sigue sin transacción; nil si no existe o ya estaba ligada.
func (r *StockReservationRepo) LinkTransaction(ctx context.Context, id, transactionID string) (*entity.StockReservation, error) {
	query, args, err := linkTransactionSQL(id, transactionID)
	return r.one(ctx, query, args, err)
}

// DeleteOpen borra una reserva no confirmada; nil si ya no existe.
func (r *StockReservationRepo) DeleteOpen(ctx context.Context, id string) (*entity.StockReservation, error) {
	query, args, err := dialect.Delete("stock_reservations").
		Where(goqu.C("id").Eq(id), goqu.C("transaction_id").IsNull()).
		Returning(reservationColumns...).Prepared(true).ToSQL()
	return r.one(ctx, query, args, err)
}

// DeleteExpired borra y devuelve las reservas sin transacción con reserved_at < cutoff.
func (r *StockReservationRepo) DeleteExpired(ctx context.Context, cutoff time.Time) ([]*entity.StockReservation, error) {
	query, args, err := deleteExpiredSQL(cutoff)
	if err != nil {
		return nil, fmt.Errorf("build delete expired: %w", err)
	}
	return r.many(ctx, query, args)
}

// CountOpen reservas sin transacción.
func (r *StockReservationRepo) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM stock_reservations WHERE transaction_id IS NULL`).Scan(&n)
	return n, storeError("count open reservations", err)
}

// ListOpen reservas sin transacción, más antiguas primero.
func (r *StockReservationRepo) ListOpen(ctx context.Context, limit int) ([]*entity.StockReservation, error) {
	if limit <= 0 {
		limit = 100
	}
	query, args, err := dialect.From("stock_reservations").Select(reservationColumns...).
		Where(goqu.C("transaction_id").IsNull()).
		Order(goqu.C("reserved_at").Asc()).Limit(uint(limit)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list open: %w", err)
	}
	return r.many(ctx, query, args)
}

func linkTransactionSQL(id, transactionID string) (string, []any, error) {
	return dialect.Update("stock_reservations").
		Set(goqu.Record{"transaction_id": transactionID}).
		Where(goqu.C("id").Eq(id), goqu.C("transaction_id").IsNull()).
		Returning(reservationColumns...).
		Prepared(true).ToSQL()
}

func deleteExpiredSQL(cutoff time.Time) (string, []any, error) {
	return dialect.Delete("stock_reservations").
		Where(goqu.C("transaction_id").IsNull(), goqu.C("reserved_at").Lt(cutoff)).
		Returning(reservationColumns...).
		Prepared(true).ToSQL()
}

func (r *StockReservationRepo) one(ctx context.Context, query string, args []any, err error) (*entity.StockReservation, error) {
	if err != nil {
		return nil, fmt.Errorf("build reservation query: %w", err)
	}
	list, err := r.many(ctx, query, args)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (r *StockReservationRepo) many(ctx context.Context, query string, args []any) ([]*entity.StockReservation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError("query reservations", err)
	}
	defer rows.Close()
	var out []*entity.StockReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, storeError("scan reservation", err)
		}
		out = append(out, res)
	}
	return out, storeError("query reservations", rows.Err())
}

func scanReservation(row pgx.Row) (*entity.StockReservation, error) {
	var res entity.StockReservation
	var tag *string
	if err := row.Scan(&res.ID, &res.ProductID, &res.Quantity, &res.ReservedAt, &res.TransactionID, &res.ReservedBy, &tag); err != nil {
		return nil, err
	}
	res.SessionTag = deref(tag)
	return &res, nil
}
