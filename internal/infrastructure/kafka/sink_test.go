package kafka_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuAM-Lu/electrocaja/internal/application/broadcast"
	"github.com/LuAM-Lu/electrocaja/internal/infrastructure/kafka"
	"github.com/LuAM-Lu/electrocaja/pkg/logger"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) snapshot() []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafkago.Message(nil), w.msgs...)
}

func TestSink_Deliver(t *testing.T) {
	w := &fakeWriter{}
	sink := kafka.NewSinkWithWriter(w)
	ts := time.Date(2026, 5, 20, 23, 55, 0, 0, time.UTC)

	err := sink.Deliver(context.Background(), broadcast.Event{
		Name: broadcast.EventAutoCierre, Payload: map[string]int{"count": 1}, Version: 3, Timestamp: ts,
	})
	require.NoError(t, err)

	msgs := w.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, broadcast.EventAutoCierre, string(msgs[0].Key))
	assert.JSONEq(t, `{"event":"auto_cierre_ejecutado","data":{"count":1},"version":3,"timestamp":"2026-05-20T23:55:00Z"}`, string(msgs[0].Value))
	assert.Equal(t, ts, msgs[0].Time)
	assert.Equal(t, "3", string(msgs[0].Headers[1].Value))
}

func TestSink_ErrorDelWriter(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker caído")}
	err := kafka.NewSinkWithWriter(w).Deliver(context.Background(), broadcast.Event{Name: "x"})
	assert.ErrorContains(t, err, "broker caído")
}

func TestSink_ComoSuscriptorDelHub(t *testing.T) {
	w := &fakeWriter{}
	sink := kafka.NewSinkWithWriter(w)
	hub := broadcast.NewHub(logger.Nop(), time.Second)
	defer hub.Close()
	hub.Subscribe(sink)

	hub.Broadcast(broadcast.Event{Name: broadcast.EventCajaAbierta})
	assert.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}
