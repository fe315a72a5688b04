package memory

import (
	"context"
	"sort"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.StockReservationRepository = (*StockReservationRepo)(nil)

// StockReservationRepo reservas de stock en memoria.
type StockReservationRepo struct {
	b binding
}

func cloneReservation(r *entity.StockReservation) *entity.StockReservation {
	c := *r
	if r.TransactionID != nil {
		tx := *r.TransactionID
		c.TransactionID = &tx
	}
	return &c
}

func (r *StockReservationRepo) Create(ctx context.Context, res *entity.StockReservation) error {
	return r.b.with(ctx, func(st *state) error {
		if _, ok := st.reservations[res.ID]; ok {
			return domain.ErrConflict
		}
		st.reservations[res.ID] = cloneReservation(res)
		return nil
	})
}

func (r *StockReservationRepo) GetByID(ctx context.Context, id string) (*entity.StockReservation, error) {
	var out *entity.StockReservation
	err := r.b.with(ctx, func(st *state) error {
		if res, ok := st.reservations[id]; ok {
			out = cloneReservation(res)
		}
		return nil
	})
	return out, err
}

// LinkTransaction equivalente a UPDATE ... WHERE id = $1 AND transaction_id IS NULL RETURNING.
func (r *StockReservationRepo) LinkTransaction(ctx context.Context, id, transactionID string) (*entity.StockReservation, error) {
	var out *entity.StockReservation
	err := r.b.with(ctx, func(st *state) error {
		res, ok := st.reservations[id]
		if !ok || res.TransactionID != nil {
			return nil
		}
		tx := transactionID
		res.TransactionID = &tx
		out = cloneReservation(res)
		return nil
	})
	return out, err
}

func (r *StockReservationRepo) DeleteOpen(ctx context.Context, id string) (*entity.StockReservation, error) {
	var out *entity.StockReservation
	err := r.b.with(ctx, func(st *state) error {
		res, ok := st.reservations[id]
		if !ok || res.TransactionID != nil {
			return nil
		}
		delete(st.reservations, id)
		out = res
		return nil
	})
	return out, err
}

func (r *StockReservationRepo) DeleteExpired(ctx context.Context, cutoff time.Time) ([]*entity.StockReservation, error) {
	var out []*entity.StockReservation
	err := r.b.with(ctx, func(st *state) error {
		for id, res := range st.reservations {
			if res.ExpiredAt(cutoff) {
				delete(st.reservations, id)
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out)
	return out, err
}

func (r *StockReservationRepo) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.b.with(ctx, func(st *state) error {
		for _, res := range st.reservations {
			if !res.Committed() {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *StockReservationRepo) ListOpen(ctx context.Context, limit int) ([]*entity.StockReservation, error) {
	var out []*entity.StockReservation
	err := r.b.with(ctx, func(st *state) error {
		for _, res := range st.reservations {
			if !res.Committed() {
				out = append(out, cloneReservation(res))
			}
		}
		return nil
	})
	sortReservations(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func sortReservations(list []*entity.StockReservation) {
	sort.Slice(list, func(i, j int) bool { return list[i].ReservedAt.Before(list[j].ReservedAt) })
}
