package notify

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frigate-wa-bridge/internal/hub"
	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

type frameWriter struct {
	mu     sync.Mutex
	frames [][]byte
}

func (w *frameWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, message)
	return nil
}

func (w *frameWriter) Close() error { return nil }

func (w *frameWriter) snapshot() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.frames...)
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestBroadcaster_DeliversEnvelopeToSubscribersAndListeners(t *testing.T) {
	h := hub.New()
	w := &frameWriter{}
	conn := hub.NewConnection("default", w)
	h.Register(conn)
	go conn.WritePump()
	defer conn.Close()

	b := New(h, metrics.NewWithRegistry(prometheus.NewRegistry()), quietLog())

	var got []any
	cancel := b.On(model.EventQRCode, func(data any) { got = append(got, data) })

	b.Notify(model.EventQRCode, "2@abc")
	require.Eventually(t, func() bool { return len(w.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	var env map[string]any
	require.NoError(t, json.Unmarshal(w.snapshot()[0], &env))
	assert.Equal(t, model.EventQRCode, env["event"])
	assert.Equal(t, "2@abc", env["data"])
	assert.Equal(t, []any{"2@abc"}, got)

	cancel()
	cancel()
	b.Notify(model.EventQRCode, nil)
	assert.Len(t, got, 1)
}

func TestBroadcaster_ListenersKeyedByEvent(t *testing.T) {
	b := New(nil, nil, quietLog())

	var qr, cams int
	b.On(model.EventQRCode, func(any) { qr++ })
	b.On(model.EventCameras, func(any) { cams++ })

	b.Notify(model.EventCameras, []string{"cam1"})
	assert.Equal(t, 0, qr)
	assert.Equal(t, 1, cams)
}

func TestBroadcaster_PanickingListenerDoesNotStopOthers(t *testing.T) {
	b := New(nil, nil, quietLog())

	called := false
	b.On(model.EventError, func(any) { panic("boom") })
	b.On(model.EventError, func(any) { called = true })

	assert.NotPanics(t, func() { b.Notify(model.EventError, nil) })
	assert.True(t, called)
}

func TestBroadcaster_RejectsOutsideMutation(t *testing.T) {
	b := New(nil, nil, quietLog())
	s := state.New(b, quietLog())
	b.SetGuard(s.InMutation)

	calls := 0
	b.On(model.EventConnected, func(any) { calls++ })

	b.Notify(model.EventConnected, true)
	assert.Equal(t, 0, calls)

	s.SetConnected(true)
	assert.Equal(t, 1, calls)
}

func TestBroadcaster_SkipsClosedSubscriber(t *testing.T) {
	h := hub.New()
	open := hub.NewConnection("default", &frameWriter{})
	closed := hub.NewConnection("default", &frameWriter{})
	closed.Close()
	h.Register(open)
	h.Register(closed)

	reg := prometheus.NewRegistry()
	b := New(h, metrics.NewWithRegistry(reg), quietLog())

	assert.NotPanics(t, func() { b.Notify(model.EventConnected, true) })

	families, err := reg.Gather()
	require.NoError(t, err)
	var dropped float64
	for _, f := range families {
		if f.GetName() == "bridge_ws_dropped_total" {
			dropped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), dropped)
}
