// Package client espejo local del bloqueo de cierre para terminales: escucha el canal push,
// persiste el último estado con vencimiento y lo re-sincroniza con el servidor al reconectar.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/internal/domain/entity"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
	"github.com/LuAM-Lu/electrocaja/pkg/ttlcache"
)

// MirrorKey clave única bajo la que se guarda el espejo.
const MirrorKey = "bloqueo-state"

var json = jsoniter.ConfigFastest

// Mirror contenido persistido del espejo.
type Mirror struct {
	State   entity.LockState `json:"state"`
	Version uint64           `json:"version"`
}

// Config parámetros del cliente.
type Config struct {
	BaseURL      string // http://host:puerto
	Token        string
	FetchTimeout time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	// OnChange se invoca tras cada cambio aplicado al espejo (opcional).
	OnChange func(Mirror)
}

// LockClient mantiene el espejo sincronizado con el servidor.
type LockClient struct {
	cfg   Config
	cache *ttlcache.Cache[Mirror]
	log   *logger.Logger

	mu          sync.Mutex
	lastVersion uint64
}

type wireEvent struct {
	Name    string              `json:"event"`
	Payload jsoniter.RawMessage `json:"data"`
	Version uint64              `json:"version"`
}

// NewLockClient construye el cliente sobre la caché dada (ver ttlcache.New con MirrorKey).
func NewLockClient(cfg Config, cache *ttlcache.Cache[Mirror], log *logger.Logger) *LockClient {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	c := &LockClient{cfg: cfg, cache: cache, log: log.Component("lock-client")}
	if m, ok, _ := cache.Get(); ok {
		c.lastVersion = m.Version
	}
	return c
}

// Run conecta y reconecta con backoff acotado hasta que ctx se cancela.
func (c *LockClient) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("conexión push perdida, reintentando")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// session una conexión completa: dial, re-sincronización y lectura hasta error.
func (c *LockClient) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial push: %w", err)
	}
	defer conn.Close()

	// Al (re)conectar el servidor manda; el espejo local no se cree.
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	c.log.Info().Msg("conectado al canal push")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("leer push: %w", err)
		}
		var evt wireEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			c.log.Warn().Err(err).Msg("evento push ilegible")
			continue
		}
		if err := c.Apply(evt.Name, evt.Version, evt.Payload); err != nil {
			c.log.Warn().Err(err).Str("event", evt.Name).Msg("no se pudo aplicar evento")
		}
	}
}

// Refresh pide el estado autoritativo (GET /api/lock) y sobreescribe el espejo.
func (c *LockClient) Refresh(ctx context.Context) error {
	timeout := c.cfg.FetchTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	a := fiber.Get(strings.TrimRight(c.cfg.BaseURL, "/") + "/api/lock")
	a.Set(fiber.HeaderAuthorization, "Bearer "+c.cfg.Token)
	a.Timeout(timeout)
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("consultar bloqueo: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("consultar bloqueo: status %d", code)
	}
	var snap lock.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("decodificar bloqueo: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(Mirror{State: snap.State, Version: snap.Version})
}

// Apply aplica un evento push al espejo. Los eventos ajenos al bloqueo se ignoran y
// una versión no mayor a la ya aplicada se descarta (gana la última escritura).
func (c *LockClient) Apply(name string, version uint64, payload []byte) error {
	switch name {
	case broadcast.EventLock, broadcast.EventLockDiferencia, broadcast.EventUnlock:
	default:
		return nil
	}
	var p lock.EventPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("payload de bloqueo: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if version != 0 && version <= c.lastVersion {
		return nil
	}
	if name == broadcast.EventUnlock {
		p.State = entity.LockState{}
	}
	return c.store(Mirror{State: p.State, Version: version})
}

// store persiste el espejo; un desbloqueo borra la entrada. Se llama con c.mu tomado.
func (c *LockClient) store(m Mirror) error {
	c.lastVersion = m.Version
	var err error
	if !m.State.Locked {
		err = c.cache.Clear()
	} else if m.State.Timestamp != nil {
		err = c.cache.SetAt(m, *m.State.Timestamp)
	} else {
		err = c.cache.Set(m)
	}
	if err == nil && c.cfg.OnChange != nil {
		c.cfg.OnChange(m)
	}
	return err
}

// State estado según el espejo; un espejo vencido cuenta como desbloqueado.
func (c *LockClient) State() entity.LockState {
	m, ok, err := c.cache.Get()
	if err != nil || !ok {
		return entity.LockState{}
	}
	return m.State
}

// Blocked true si el usuario debe abstenerse de acciones de escritura.
func (c *LockClient) Blocked(userID string) bool {
	return c.State().Blocks(userID)
}

func (c *LockClient) wsURL() string {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/ws")
	if err != nil {
		return c.cfg.BaseURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String()
}
