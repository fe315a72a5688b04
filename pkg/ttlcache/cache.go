// Package ttlcache guarda un único valor con su instante de guardado y lo descarta
// cuando supera una edad máxima. Cada lectura valida la edad.
package ttlcache

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

type envelope[T any] struct {
	StoredAt time.Time `json:"storedAt"`
	Value    T         `json:"value"`
}

// Cache valor tipado con vencimiento, persistido bajo una sola clave.
type Cache[T any] struct {
	storage Storage
	key     string
	maxAge  time.Duration
	now     func() time.Time
}

// Option ajustes opcionales.
type Option[T any] func(*Cache[T])

// WithClock reemplaza el reloj (tests).
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

// New crea la caché sobre storage, bajo key, con la edad máxima dada.
func New[T any](storage Storage, key string, maxAge time.Duration, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{storage: storage, key: key, maxAge: maxAge, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Set guarda v sellado con el instante actual.
func (c *Cache[T]) Set(v T) error {
	return c.SetAt(v, c.now())
}

// SetAt guarda v con un instante explícito (ej. el timestamp del bloqueo).
func (c *Cache[T]) SetAt(v T, storedAt time.Time) error {
	b, err := json.Marshal(envelope[T]{StoredAt: storedAt, Value: v})
	if err != nil {
		return fmt.Errorf("serializar %s: %w", c.key, err)
	}
	return c.storage.Save(c.key, b)
}

// Get devuelve el valor si existe y no venció. Un valor vencido o ilegible se borra
// y se informa como ausente.
func (c *Cache[T]) Get() (T, bool, error) {
	var zero T
	b, ok, err := c.storage.Load(c.key)
	if err != nil || !ok {
		return zero, false, err
	}
	var env envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return zero, false, c.storage.Delete(c.key)
	}
	if c.now().Sub(env.StoredAt) > c.maxAge {
		return zero, false, c.storage.Delete(c.key)
	}
	return env.Value, true, nil
}

// Clear borra la entrada.
func (c *Cache[T]) Clear() error {
	return c.storage.Delete(c.key)
}
