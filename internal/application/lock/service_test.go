package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/internal/domain"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Doble de prueba
// ──────────────────────────────────────────────────────────────────────────────

type capturePublisher struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (p *capturePublisher) Broadcast(evt broadcast.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *capturePublisher) all() []broadcast.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]broadcast.Event(nil), p.events...)
}

func newService() (*lock.Service, *capturePublisher) {
	pub := &capturePublisher{}
	return lock.NewService(pub, logger.Nop()), pub
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestLock_SegundoOperadorRecibeAlreadyLocked(t *testing.T) {
	svc, pub := newService()

	st, err := svc.Lock(entity.LockRequest{OwnerUser: "u1", OwnerName: "Ana", LockType: entity.LockTypeCierre})
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, "u1", st.OwnerUser)
	require.NotNil(t, st.Timestamp)

	_, err = svc.Lock(entity.LockRequest{OwnerUser: "u2", LockType: entity.LockTypeCierre})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyLocked))
	var locked *domain.AlreadyLockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, "Ana", locked.Owner)
	assert.Equal(t, "cierre en progreso por Ana", err.Error())

	assert.True(t, svc.Blocks("u2"))
	assert.False(t, svc.Blocks("u1"), "el dueño nunca se bloquea a sí mismo")
	assert.ErrorIs(t, svc.Check("u2"), domain.ErrAlreadyLocked)
	assert.NoError(t, svc.Check("u1"))

	svc.Unlock("cierre terminado")
	assert.False(t, svc.Blocks("u2"))

	events := pub.all()
	require.Len(t, events, 2, "el intento rechazado no publica")
	assert.Equal(t, broadcast.EventLock, events[0].Name)
	assert.Equal(t, broadcast.EventUnlock, events[1].Name)
	assert.Less(t, events[0].Version, events[1].Version)
	for _, e := range events {
		assert.Equal(t, broadcast.CoalesceKeyLock, e.CoalesceKey)
	}
}

func TestLock_ReentradaDelMismoDuenoRefrescaYEscala(t *testing.T) {
	svc, pub := newService()

	first, err := svc.Lock(entity.LockRequest{OwnerUser: "u1", LockType: entity.LockTypeCierre})
	require.NoError(t, err)

	diff := entity.Amounts{Bs: decimal.NewFromInt(-50)}
	second, err := svc.Lock(entity.LockRequest{OwnerUser: "u1", LockType: entity.LockTypeDiferencia, Differences: &diff})
	require.NoError(t, err)

	assert.Equal(t, entity.LockTypeDiferencia, second.LockType)
	require.NotNil(t, second.Differences)
	assert.True(t, second.Differences.Bs.Equal(decimal.NewFromInt(-50)))
	assert.False(t, second.Timestamp.Before(*first.Timestamp))

	events := pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, broadcast.EventLockDiferencia, events[1].Name)
}

func TestLock_BloquearYDesbloquearRestauraEstadoPrevio(t *testing.T) {
	svc, _ := newService()
	before := svc.State()

	_, err := svc.Lock(entity.LockRequest{OwnerUser: "u1", LockType: entity.LockTypeArqueo})
	require.NoError(t, err)
	svc.Unlock("")

	assert.Equal(t, before, svc.State())
	assert.Equal(t, uint64(2), svc.Snapshot().Version)
}

func TestLock_EntradaInvalida(t *testing.T) {
	svc, pub := newService()

	_, err := svc.Lock(entity.LockRequest{OwnerUser: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Lock(entity.LockRequest{OwnerUser: "u1", LockType: "OTRO"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Empty(t, pub.all())
}

func TestLock_ReleaseIfOwner(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Lock(entity.LockRequest{OwnerUser: "u1"})
	require.NoError(t, err)

	assert.False(t, svc.ReleaseIfOwner("u2", "no es suyo"))
	assert.True(t, svc.State().Locked)
	assert.True(t, svc.ReleaseIfOwner("u1", "cierre completado"))
	assert.False(t, svc.State().Locked)
	assert.False(t, svc.ReleaseIfOwner("u1", "ya libre"))
}

func TestLock_SnapshotEsCopia(t *testing.T) {
	svc, _ := newService()
	diff := entity.Amounts{Usd: decimal.NewFromInt(3)}
	_, err := svc.Lock(entity.LockRequest{OwnerUser: "u1", Differences: &diff})
	require.NoError(t, err)

	snap := svc.Snapshot()
	snap.State.Differences.Usd = decimal.NewFromInt(999)
	assert.True(t, svc.State().Differences.Usd.Equal(decimal.NewFromInt(3)))
}

func TestLock_WaitUntilCleared(t *testing.T) {
	svc, _ := newService()

	require.NoError(t, svc.WaitUntilCleared(context.Background(), 10*time.Millisecond), "libre: vuelve enseguida")

	_, err := svc.Lock(entity.LockRequest{OwnerUser: "u1"})
	require.NoError(t, err)

	err = svc.WaitUntilCleared(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLockWaitTimeout)

	go func() {
		time.Sleep(10 * time.Millisecond)
		svc.Unlock("listo")
	}()
	assert.NoError(t, svc.WaitUntilCleared(context.Background(), time.Second))
}

func TestLock_ConcurrenciaUnSoloGanador(t *testing.T) {
	svc, _ := newService()

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := string(rune('a' + i%26)) + "-" + string(rune('A'+i/26))
			if _, err := svc.Lock(entity.LockRequest{OwnerUser: user}); err == nil {
				mu.Lock()
				winners = append(winners, user)
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrAlreadyLocked)
			}
			_ = svc.Snapshot()
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, winners[0], svc.State().OwnerUser)
}

func TestEventFor_SnapshotInicial(t *testing.T) {
	svc, _ := newService()
	evt := lock.EventFor(svc.Snapshot())
	assert.Equal(t, broadcast.EventUnlock, evt.Name)

	_, err := svc.Lock(entity.LockRequest{OwnerUser: "u1", LockType: entity.LockTypeDiferencia})
	require.NoError(t, err)
	evt = lock.EventFor(svc.Snapshot())
	assert.Equal(t, broadcast.EventLockDiferencia, evt.Name)
	assert.Equal(t, uint64(1), evt.Version)
}
