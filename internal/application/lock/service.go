package lock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// Publisher contrato mínimo del hub push que necesita el servicio.
type Publisher interface {
	Broadcast(evt broadcast.Event)
}

// Snapshot estado vigente más su versión (orden last-write-wins para los clientes).
type Snapshot struct {
	State   entity.LockState `json:"state"`
	Version uint64           `json:"version"`
}

// EventPayload payload de bloquear_usuarios / bloquear_usuarios_diferencia / desbloquear_usuarios.
type EventPayload struct {
	State  entity.LockState `json:"state"`
	Reason string           `json:"reason,omitempty"`
}

// Service registro autoritativo del bloqueo global de cierre. Un solo escritor a la vez,
// lectores concurrentes; cada cambio se publica en orden de versión.
type Service struct {
	pub Publisher
	log *logger.Logger
	now func() time.Time

	mu      sync.RWMutex
	state   entity.LockState
	version uint64
	changed chan struct{}
}

// NewService construye el servicio desbloqueado.
func NewService(pub Publisher, log *logger.Logger) *Service {
	return &Service{
		pub:     pub,
		log:     log.Component("lock"),
		now:     time.Now,
		changed: make(chan struct{}),
	}
}

// Lock toma el bloqueo. Si otro operador lo tiene devuelve *domain.AlreadyLockedError.
// Si el mismo dueño lo vuelve a pedir se refresca el timestamp (y se aplica un cambio de tipo,
// p. ej. CIERRE -> DIFERENCIA).
func (s *Service) Lock(req entity.LockRequest) (entity.LockState, error) {
	req.OwnerUser = strings.TrimSpace(req.OwnerUser)
	if req.OwnerUser == "" {
		return entity.LockState{}, domain.ErrInvalidInput
	}
	if req.LockType == "" {
		req.LockType = entity.LockTypeArqueo
	}
	if !req.LockType.Valid() {
		return entity.LockState{}, domain.ErrInvalidInput
	}
	if req.Reason == "" {
		req.Reason = "Cierre de caja en progreso"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Locked && s.state.OwnerUser != req.OwnerUser {
		since := time.Time{}
		if s.state.Timestamp != nil {
			since = *s.state.Timestamp
		}
		owner := s.state.OwnerName
		if owner == "" {
			owner = s.state.OwnerUser
		}
		return copyState(s.state), &domain.AlreadyLockedError{
			Owner:    owner,
			LockType: string(s.state.LockType),
			Since:    since,
		}
	}

	reentrant := s.state.Locked
	ts := s.now()
	next := entity.LockState{
		Locked:    true,
		Reason:    req.Reason,
		OwnerUser: req.OwnerUser,
		OwnerName: req.OwnerName,
		LockType:  req.LockType,
		Timestamp: &ts,
	}
	if req.Differences != nil {
		d := *req.Differences
		next.Differences = &d
	} else if reentrant && s.state.Differences != nil {
		d := *s.state.Differences
		next.Differences = &d
	}
	s.apply(next, eventNameFor(next.LockType), "")

	s.log.Info().
		Str("owner", next.OwnerUser).
		Str("type", string(next.LockType)).
		Bool("reentrant", reentrant).
		Uint64("version", s.version).
		Msg("sistema bloqueado")

	return copyState(s.state), nil
}

// Unlock limpia el bloqueo sin condiciones (override administrativo permitido). Siempre publica.
func (s *Service) Unlock(reason string) {
	if reason == "" {
		reason = "Sistema desbloqueado"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prevOwner := s.state.OwnerUser
	s.apply(entity.LockState{}, broadcast.EventUnlock, reason)

	s.log.Info().
		Str("previous_owner", prevOwner).
		Str("reason", reason).
		Uint64("version", s.version).
		Msg("sistema desbloqueado")
}

// ReleaseIfOwner desbloquea solo si userID es el dueño actual. Devuelve true si liberó.
func (s *Service) ReleaseIfOwner(userID, reason string) bool {
	s.mu.RLock()
	owns := s.state.Locked && s.state.OwnerUser == userID
	s.mu.RUnlock()
	if !owns {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Locked || s.state.OwnerUser != userID {
		return false
	}
	s.apply(entity.LockState{}, broadcast.EventUnlock, reason)
	s.log.Info().Str("owner", userID).Str("reason", reason).Msg("bloqueo liberado por su dueño")
	return true
}

// State copia de solo lectura del estado vigente.
func (s *Service) State() entity.LockState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// Snapshot estado y versión leídos de forma atómica.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{State: copyState(s.state), Version: s.version}
}

// Blocks indica si userID debe ser bloqueado para acciones de escritura.
func (s *Service) Blocks(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Blocks(userID)
}

// Check devuelve *domain.AlreadyLockedError si userID está bloqueado, nil si puede operar.
func (s *Service) Check(userID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Blocks(userID) {
		return nil
	}
	owner := s.state.OwnerName
	if owner == "" {
		owner = s.state.OwnerUser
	}
	var since time.Time
	if s.state.Timestamp != nil {
		since = *s.state.Timestamp
	}
	return &domain.AlreadyLockedError{Owner: owner, LockType: string(s.state.LockType), Since: since}
}

// WaitUntilCleared espera a que el sistema quede desbloqueado, como máximo timeout.
func (s *Service) WaitUntilCleared(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		s.mu.RLock()
		locked := s.state.Locked
		changed := s.changed
		s.mu.RUnlock()
		if !locked {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return domain.ErrLockWaitTimeout
		}
	}
}

// apply reemplaza el estado, sube la versión, despierta a los que esperan y publica.
// Se llama con s.mu tomado para que el orden de publicación coincida con el de versión.
func (s *Service) apply(next entity.LockState, eventName, reason string) {
	s.state = next
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})

	if s.pub == nil {
		return
	}
	ts := s.now()
	if next.Timestamp != nil {
		ts = *next.Timestamp
	}
	s.pub.Broadcast(broadcast.Event{
		Name:        eventName,
		Payload:     EventPayload{State: copyState(next), Reason: reason},
		Version:     s.version,
		Timestamp:   ts,
		CoalesceKey: broadcast.CoalesceKeyLock,
	})
}

// EventFor arma el evento push que describe el snapshot dado (envío inicial a un cliente nuevo).
func EventFor(snap Snapshot) broadcast.Event {
	name := broadcast.EventUnlock
	ts := time.Now()
	if snap.State.Locked {
		name = eventNameFor(snap.State.LockType)
		if snap.State.Timestamp != nil {
			ts = *snap.State.Timestamp
		}
	}
	return broadcast.Event{
		Name:        name,
		Payload:     EventPayload{State: snap.State},
		Version:     snap.Version,
		Timestamp:   ts,
		CoalesceKey: broadcast.CoalesceKeyLock,
	}
}

func eventNameFor(t entity.LockType) string {
	if t == entity.LockTypeDiferencia {
		return broadcast.EventLockDiferencia
	}
	return broadcast.EventLock
}

func copyState(st entity.LockState) entity.LockState {
	out := st
	if st.Timestamp != nil {
		t := *st.Timestamp
		out.Timestamp = &t
	}
	if st.Differences != nil {
		d := *st.Differences
		out.Differences = &d
	}
	return out
}
