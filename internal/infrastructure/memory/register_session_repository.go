package memory

import (
	"context"
	"sort"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/internal/domain/repository"
)

var _ repository.RegisterSessionRepository = (*RegisterSessionRepo)(nil)

// RegisterSessionRepo sesiones de caja en memoria.
type RegisterSessionRepo struct {
	b binding
}

// Create inserta la sesión; ErrAlreadyOpen si ya hay una activa (equivalente al índice único parcial).
func (r *RegisterSessionRepo) Create(ctx context.Context, s *entity.RegisterSession) error {
	return r.b.with(ctx, func(st *state) error {
		if _, ok := st.sessions[s.ID]; ok {
			return domain.ErrConflict
		}
		if s.IsActive() {
			for _, cur := range st.sessions {
				if cur.IsActive() {
					return domain.ErrAlreadyOpen
				}
			}
		}
		st.sessions[s.ID] = s.Clone()
		return nil
	})
}

// GetByID nil si no existe.
func (r *RegisterSessionRepo) GetByID(ctx context.Context, id string) (*entity.RegisterSession, error) {
	var out *entity.RegisterSession
	err := r.b.with(ctx, func(st *state) error {
		if s, ok := st.sessions[id]; ok {
			out = s.Clone()
		}
		return nil
	})
	return out, err
}

func (r *RegisterSessionRepo) FindActive(ctx context.Context) (*entity.RegisterSession, error) {
	var out *entity.RegisterSession
	err := r.b.with(ctx, func(st *state) error {
		for _, s := range st.sessions {
			if s.IsActive() {
				out = s.Clone()
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *RegisterSessionRepo) ListByState(ctx context.Context, state entity.RegisterState) ([]*entity.RegisterSession, error) {
	return r.list(ctx, func(s *entity.RegisterSession) bool { return s.State == state })
}

func (r *RegisterSessionRepo) ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*entity.RegisterSession, error) {
	return r.list(ctx, func(s *entity.RegisterSession) bool {
		return s.State == entity.RegisterAbierta && s.OpenedAt.Before(cutoff)
	})
}

// UpdateIfState reemplaza la fila solo si sigue en expected.
func (r *RegisterSessionRepo) UpdateIfState(ctx context.Context, s *entity.RegisterSession, expected entity.RegisterState) (bool, error) {
	var ok bool
	err := r.b.with(ctx, func(st *state) error {
		cur, exists := st.sessions[s.ID]
		if !exists || cur.State != expected {
			return nil
		}
		st.sessions[s.ID] = s.Clone()
		ok = true
		return nil
	})
	return ok, err
}

func (r *RegisterSessionRepo) list(ctx context.Context, keep func(*entity.RegisterSession) bool) ([]*entity.RegisterSession, error) {
	var out []*entity.RegisterSession
	err := r.b.with(ctx, func(st *state) error {
		for _, s := range st.sessions {
			if keep(s) {
				out = append(out, s.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, err
}
