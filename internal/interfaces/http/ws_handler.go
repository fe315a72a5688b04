package http

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/application/lock"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

var wsJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// WSHandler canal push por websocket. Cada operador conectado es un suscriptor del hub
// identificado por su UserID: una conexión nueva desconecta a la anterior con force_logout.
type WSHandler struct {
	hub   *broadcast.Hub
	locks *lock.Service
	log   *logger.Logger
}

// NewWSHandler construye el handler.
func NewWSHandler(hub *broadcast.Hub, locks *lock.Service, log *logger.Logger) *WSHandler {
	return &WSHandler{hub: hub, locks: locks, log: log.Component("ws")}
}

// Upgrade exige el handshake websocket. Va después de AuthMiddleware.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handle al conectar el cliente recibe el estado vigente del bloqueo; luego los eventos del hub.
func (h *WSHandler) Handle() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(LocalUserID).(string)
		sess := &wsSession{id: userID, conn: conn}
		unsubscribe := h.hub.Subscribe(sess)
		defer unsubscribe()

		// Suscribir antes de mandar el estado: un evento intermedio llega con versión mayor
		// y el cliente descarta lo que no sea más nuevo.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := sess.Deliver(ctx, lock.EventFor(h.locks.Snapshot()))
		cancel()
		if err != nil {
			h.log.Warn().Err(err).Str("user", userID).Msg("no se pudo enviar estado inicial")
			return
		}
		h.log.Debug().Str("user", userID).Msg("cliente conectado")

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.log.Debug().Str("user", userID).Msg("cliente desconectado")
				return
			}
		}
	})
}

type wsSession struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) ID() string { return s.id }

// Deliver escribe el evento como JSON; force_logout además cierra la conexión.
func (s *wsSession) Deliver(ctx context.Context, evt broadcast.Event) error {
	data, err := wsJSON.Marshal(evt)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if evt.Name == broadcast.EventForceLogout {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "force_logout"),
			time.Now().Add(time.Second))
		return s.conn.Close()
	}
	return nil
}
