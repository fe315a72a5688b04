// Package memory almacenamiento en memoria con las mismas garantías que el adaptador PostgreSQL:
// actualizaciones condicionales, unicidad de la caja activa y transacciones todo-o-nada
// (copia de trabajo que se publica al confirmar). Se usa en desarrollo (STORE_DRIVER=memory) y tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
)

type state struct {
	sessions     map[string]*entity.RegisterSession
	reservations map[string]*entity.StockReservation
	stock        map[string]*entity.Stock
	movements    []*entity.InventoryMovement
	settings     map[string]json.RawMessage
}

func newState() *state {
	return &state{
		sessions:     make(map[string]*entity.RegisterSession),
		reservations: make(map[string]*entity.StockReservation),
		stock:        make(map[string]*entity.Stock),
		settings:     make(map[string]json.RawMessage),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.sessions {
		c.sessions[k] = v.Clone()
	}
	for k, v := range s.reservations {
		c.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.stock {
		st := *v
		c.stock[k] = &st
	}
	// Los movimientos son inmutables una vez escritos.
	c.movements = append([]*entity.InventoryMovement(nil), s.movements...)
	for k, v := range s.settings {
		c.settings[k] = append(json.RawMessage(nil), v...)
	}
	return c
}

// Store raíz del almacenamiento en memoria.
type Store struct {
	mu   sync.Mutex
	data *state
	down atomic.Bool
}

// NewStore crea un almacenamiento vacío.
func NewStore() *Store {
	return &Store{data: newState()}
}

// SetUnavailable simula una caída del almacenamiento (ErrStoreUnavailable en todas las operaciones).
func (s *Store) SetUnavailable(down bool) {
	s.down.Store(down)
}

// binding da acceso al estado: con el mutex del store (fuera de tx) o a la copia de trabajo (dentro de tx).
type binding interface {
	with(ctx context.Context, fn func(st *state) error) error
}

type poolBinding struct{ s *Store }

func (b poolBinding) with(ctx context.Context, fn func(st *state) error) error {
	if err := b.s.check(ctx); err != nil {
		return err
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return fn(b.s.data)
}

type txBinding struct {
	s  *Store
	st *state
}

func (b txBinding) with(ctx context.Context, fn func(st *state) error) error {
	if err := b.s.check(ctx); err != nil {
		return err
	}
	return fn(b.st)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.down.Load() {
		return domain.ErrStoreUnavailable
	}
	return nil
}

func (s *Store) pool() binding { return poolBinding{s: s} }

// Sessions repositorio de sesiones de caja fuera de transacción.
func (s *Store) Sessions() *RegisterSessionRepo { return &RegisterSessionRepo{b: s.pool()} }

// Reservations repositorio de reservas fuera de transacción.
func (s *Store) Reservations() *StockReservationRepo { return &StockReservationRepo{b: s.pool()} }

// Stock repositorio de stock fuera de transacción.
func (s *Store) Stock() *StockRepo { return &StockRepo{b: s.pool()} }

// Movements repositorio de movimientos fuera de transacción.
func (s *Store) Movements() *InventoryMovementRepo { return &InventoryMovementRepo{b: s.pool()} }

// Settings repositorio clave-valor.
func (s *Store) Settings() *SettingsRepo { return &SettingsRepo{b: s.pool()} }

// Health repositorio del chequeo de vida.
func (s *Store) Health() *HealthRepo { return &HealthRepo{s: s} }

// HealthRepo implementa repository.HealthRepository.
type HealthRepo struct{ s *Store }

// Ping falla con ErrStoreUnavailable si el store fue marcado como caído.
func (r *HealthRepo) Ping(ctx context.Context) error {
	return r.s.check(ctx)
}
