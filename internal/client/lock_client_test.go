package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/internal/client"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
	"github.com/LuAM-Lu/electrocaja/pkg/ttlcache"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func newClient(t *testing.T, baseURL string) (*client.LockClient, *ttlcache.Cache[client.Mirror]) {
	t.Helper()
	cache := ttlcache.New[client.Mirror](ttlcache.NewMemoryStorage(), client.MirrorKey, time.Hour)
	return client.NewLockClient(client.Config{BaseURL: baseURL, Token: "tkn"}, cache, logger.Nop()), cache
}

func payload(t *testing.T, st entity.LockState) []byte {
	t.Helper()
	b, err := jsoniter.Marshal(lock.EventPayload{State: st})
	require.NoError(t, err)
	return b
}

func lockedBy(user string) entity.LockState {
	ts := time.Now()
	return entity.LockState{Locked: true, OwnerUser: user, LockType: entity.LockTypeCierre, Timestamp: &ts}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestLockClient_AplicaEventosEnOrdenDeVersion(t *testing.T) {
	c, cache := newClient(t, "http://127.0.0.1:1")

	require.NoError(t, c.Apply(broadcast.EventLock, 1, payload(t, lockedBy("u1"))))
	assert.True(t, c.Blocked("u2"))
	assert.False(t, c.Blocked("u1"))

	require.NoError(t, c.Apply(broadcast.EventUnlock, 2, nil))
	assert.False(t, c.Blocked("u2"))
	_, ok, err := cache.Get()
	require.NoError(t, err)
	assert.False(t, ok, "el desbloqueo borra el espejo")

	// Un bloqueo viejo que llega tarde no revive el estado.
	require.NoError(t, c.Apply(broadcast.EventLock, 1, payload(t, lockedBy("u1"))))
	assert.False(t, c.Blocked("u2"))
}

func TestLockClient_IgnoraEventosAjenos(t *testing.T) {
	c, _ := newClient(t, "http://127.0.0.1:1")
	require.NoError(t, c.Apply(broadcast.EventTasaAuto, 9, []byte(`{"value":"36.5"}`)))
	assert.False(t, c.State().Locked)
}

func TestLockClient_EspejoVencidoCuentaComoLibre(t *testing.T) {
	c, _ := newClient(t, "http://127.0.0.1:1")
	old := time.Now().Add(-2 * time.Hour)
	st := entity.LockState{Locked: true, OwnerUser: "u1", Timestamp: &old}

	require.NoError(t, c.Apply(broadcast.EventLock, 1, payload(t, st)))
	assert.False(t, c.Blocked("u2"))
}

func TestLockClient_RefreshSobreescribeConEstadoDelServidor(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/api/lock", func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) != "Bearer tkn" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.JSON(lock.Snapshot{State: lockedBy("srv"), Version: 1})
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	defer app.Shutdown()

	c, _ := newClient(t, "http://"+ln.Addr().String())

	// El espejo local trae una versión mayor (servidor reiniciado): igual gana el servidor.
	require.NoError(t, c.Apply(broadcast.EventUnlock, 7, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Refresh(ctx))

	st := c.State()
	assert.True(t, st.Locked)
	assert.Equal(t, "srv", st.OwnerUser)

	// Tras el refresh, la versión de referencia es la del servidor.
	require.NoError(t, c.Apply(broadcast.EventUnlock, 2, nil))
	assert.False(t, c.State().Locked)
}
