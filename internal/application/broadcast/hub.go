package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

// ErrSubscriberNotFound el destinatario de un envío dirigido no está conectado.
var ErrSubscriberNotFound = errors.New("sesión no conectada")

// maxPending cota de la cola por suscriptor; al llenarse se descarta el evento más viejo
// que no sea compactable (el último estado del bloqueo nunca se pierde).
const maxPending = 256

// Event notificación push con nombre y payload JSON.
// Los eventos con la misma CoalesceKey se reemplazan en la cola: gana la Version más alta.
type Event struct {
	Name        string    `json:"event"`
	Payload     any       `json:"data"`
	Version     uint64    `json:"version,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	CoalesceKey string    `json:"-"`
}

// Subscriber una sesión conectada (websocket, réplica Kafka, ...).
type Subscriber interface {
	ID() string
	Deliver(ctx context.Context, evt Event) error
}

// Hub registro de suscriptores con entrega independiente: cada uno tiene su cola y su goroutine,
// así un cliente lento o caído no frena a los demás.
type Hub struct {
	log            *logger.Logger
	deliverTimeout time.Duration

	mu   sync.RWMutex
	subs map[string]*mailbox

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewHub construye el hub. deliverTimeout acota cada entrega individual.
func NewHub(log *logger.Logger, deliverTimeout time.Duration) *Hub {
	if deliverTimeout <= 0 {
		deliverTimeout = 5 * time.Second
	}
	return &Hub{
		log:            log.Component("broadcast"),
		deliverTimeout: deliverTimeout,
		subs:           make(map[string]*mailbox),
	}
}

// ReasonDuplicateSession motivo del force_logout que recibe una sesión reemplazada.
const ReasonDuplicateSession = "duplicate_session"

// ForceLogoutPayload datos del evento force_logout.
type ForceLogoutPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// Subscribe registra el suscriptor y devuelve la función para darlo de baja.
// Si ya existía uno con el mismo ID, el anterior recibe force_logout (duplicate_session)
// como último evento y queda fuera del hub.
func (h *Hub) Subscribe(sub Subscriber) (unsubscribe func()) {
	mb := newMailbox(h, sub)

	h.mu.Lock()
	if old, ok := h.subs[sub.ID()]; ok {
		old.retire(Event{
			Name:      EventForceLogout,
			Payload:   ForceLogoutPayload{Reason: ReasonDuplicateSession, Message: "sesión abierta en otro equipo"},
			Timestamp: time.Now(),
		})
		h.log.Info().Str("subscriber", sub.ID()).Msg("sesión duplicada: se desconecta la anterior")
	}
	h.subs[sub.ID()] = mb
	h.mu.Unlock()

	go mb.run()

	h.log.Debug().Str("subscriber", sub.ID()).Msg("suscriptor registrado")

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if cur, ok := h.subs[sub.ID()]; ok && cur == mb {
				delete(h.subs, sub.ID())
			}
			h.mu.Unlock()
			mb.close()
			h.log.Debug().Str("subscriber", sub.ID()).Msg("suscriptor dado de baja")
		})
	}
}

// Broadcast encola el evento para todos los suscriptores. Nunca bloquea al llamador.
func (h *Hub) Broadcast(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, mb := range h.subs {
		mb.enqueue(evt)
	}
}

// SendTo encola el evento solo para un suscriptor (ej. force_logout).
func (h *Hub) SendTo(subscriberID string, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	h.mu.RLock()
	mb, ok := h.subs[subscriberID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriberNotFound, subscriberID)
	}
	mb.enqueue(evt)
	return nil
}

// Count cantidad de suscriptores conectados.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats contadores de entrega.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Delivered   int64 `json:"delivered"`
	Failed      int64 `json:"failed"`
	Dropped     int64 `json:"dropped"`
}

// Stats devuelve los contadores acumulados.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.Count(),
		Delivered:   h.delivered.Load(),
		Failed:      h.failed.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close da de baja a todos los suscriptores.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*mailbox)
	h.mu.Unlock()
	for _, mb := range subs {
		mb.close()
	}
}

// mailbox cola de un suscriptor.
type mailbox struct {
	hub *Hub
	sub Subscriber

	mu          sync.Mutex
	queue       []Event
	lastVersion map[string]uint64
	closed      bool // no acepta más eventos
	retiring    bool // entrega lo que queda en la cola y termina

	signal chan struct{}
	done   chan struct{}
	stop   sync.Once
}

func newMailbox(h *Hub, sub Subscriber) *mailbox {
	return &mailbox{
		hub:         h,
		sub:         sub,
		lastVersion: make(map[string]uint64),
		signal:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (m *mailbox) enqueue(evt Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if evt.CoalesceKey != "" {
		if last, ok := m.lastVersion[evt.CoalesceKey]; ok && evt.Version <= last {
			m.mu.Unlock()
			m.hub.dropped.Add(1)
			return
		}
		m.lastVersion[evt.CoalesceKey] = evt.Version
		for i := range m.queue {
			if m.queue[i].CoalesceKey == evt.CoalesceKey {
				m.queue[i] = evt
				m.mu.Unlock()
				m.hub.dropped.Add(1)
				return
			}
		}
	}
	if len(m.queue) >= maxPending {
		m.evictOldest()
		m.hub.dropped.Add(1)
	}
	m.queue = append(m.queue, evt)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// evictOldest descarta el evento más viejo sin CoalesceKey. Requiere m.mu.
func (m *mailbox) evictOldest() {
	for i := range m.queue {
		if m.queue[i].CoalesceKey == "" {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
	m.queue = m.queue[1:]
}

func (m *mailbox) next() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Event{}, false
	}
	evt := m.queue[0]
	m.queue = m.queue[1:]
	return evt, true
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}
		for {
			evt, ok := m.next()
			if !ok {
				break
			}
			select {
			case <-m.done:
				return
			default:
			}
			m.deliver(evt)
		}
		if m.drained() {
			m.stop.Do(func() { close(m.done) })
			return
		}
	}
}

func (m *mailbox) drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retiring && len(m.queue) == 0
}

// retire deja evt como único evento pendiente y cierra la cola cuando se entregue.
func (m *mailbox) retire(evt Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.retiring = true
	m.queue = []Event{evt}
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) deliver(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.hub.deliverTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic en entrega: %v", r)
			}
		}()
		return m.sub.Deliver(ctx, evt)
	}()
	if err != nil {
		m.hub.failed.Add(1)
		m.hub.log.Warn().Err(err).
			Str("subscriber", m.sub.ID()).
			Str("event", evt.Name).
			Msg("no se pudo entregar evento al cliente")
		return
	}
	m.hub.delivered.Add(1)
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	m.stop.Do(func() { close(m.done) })
}
