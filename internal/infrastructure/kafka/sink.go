// Package kafka réplica de los eventos push hacia un tópico Kafka (auditoría y consumidores externos).
package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
)

// SinkID identificador fijo del suscriptor en el hub.
const SinkID = "kafka-sink"

var _ broadcast.Subscriber = (*Sink)(nil)

var json = jsoniter.ConfigFastest

// MessageWriter lo que el sink necesita de *kafkago.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink suscriptor del hub que publica cada evento como un mensaje. La clave es el nombre del
// evento, así los eventos de un mismo tipo caen en la misma partición y conservan el orden.
type Sink struct {
	w MessageWriter
}

// NewSink crea el writer hacia brokers/topic.
func NewSink(brokers []string, topic string) *Sink {
	return NewSinkWithWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewSinkWithWriter usa un writer ya construido.
func NewSinkWithWriter(w MessageWriter) *Sink {
	return &Sink{w: w}
}

// ID implementa broadcast.Subscriber.
func (s *Sink) ID() string { return SinkID }

// Deliver serializa el evento y lo escribe en el tópico.
func (s *Sink) Deliver(ctx context.Context, evt broadcast.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("serializar evento %s: %w", evt.Name, err)
	}
	msg := kafkago.Message{
		Key:   []byte(evt.Name),
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(evt.Name)},
			{Key: "version", Value: []byte(strconv.FormatUint(evt.Version, 10))},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publicar evento %s: %w", evt.Name, err)
	}
	return nil
}

// Close cierra el writer (vacía lo pendiente).
func (s *Sink) Close() error {
	return s.w.Close()
}
