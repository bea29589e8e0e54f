package camera

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/notify"
	"frigate-wa-bridge/internal/state"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type sent struct {
	chat, body string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (f *fakeSender) SendText(_ context.Context, chatID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{chatID, body})
	return nil
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func setup(t *testing.T) (*state.Store, *notify.Broadcaster) {
	t.Helper()
	b := notify.New(nil, nil, quietLog())
	s := state.New(b, quietLog())
	b.SetGuard(s.InMutation)
	return s, b
}

func TestService_AssignUnknownCamera(t *testing.T) {
	s, _ := setup(t)
	svc := NewService(s, quietLog())

	err := svc.Assign("ghost", "group@g.us")
	assert.ErrorIs(t, err, ErrUnknownCamera)
	assert.Empty(t, svc.Mappings())
}

func TestService_AssignRequiresBothFields(t *testing.T) {
	s, _ := setup(t)
	svc := NewService(s, quietLog())

	assert.ErrorIs(t, svc.Assign("", "g"), ErrInvalidInput)
	assert.ErrorIs(t, svc.Assign("cam1", " "), ErrInvalidInput)
}

func TestService_AssignLastWriteWins(t *testing.T) {
	s, b := setup(t)
	svc := NewService(s, quietLog())
	s.AddCamera("cam1", nil)

	var saved []any
	b.On(model.EventCameraGroupSaved, func(data any) { saved = append(saved, data) })

	require.NoError(t, svc.Assign("cam1", "a@g.us"))
	require.NoError(t, svc.Assign("cam1", "b@g.us"))

	assert.Equal(t, map[string]string{"cam1": "b@g.us"}, svc.Mappings())
	require.Len(t, saved, 2)
	assert.Equal(t, map[string]string{"cam1": "b@g.us"}, saved[1])
	assert.Equal(t, []string{"cam1"}, svc.List())
}

func event(camera string) model.FormattedEvent {
	score := 0.87
	start := "2024-01-02 03:04:05"
	return model.FormattedEvent{
		Camera:    camera,
		Label:     "person",
		Zones:     []string{"porch"},
		StartTime: &start,
		Score:     &score,
		Severity:  "alert",
	}
}

func TestRelay_SendsToMappedGroup(t *testing.T) {
	s, b := setup(t)
	sender := &fakeSender{}
	r := NewRelay(s, sender, metrics.NewWithRegistry(prometheus.NewRegistry()), quietLog())
	r.Attach(b)
	defer r.Close()

	s.AddCamera("cam1", nil)
	s.AssignCameraGroup("cam1", "123@g.us")
	s.SetConnected(true)

	s.Emit(model.EventFormatted, event("cam1"))
	s.Emit(model.EventFormatted, event("cam2"))
	r.Wait()

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "123@g.us", msgs[0].chat)
	assert.Contains(t, msgs[0].body, "person detected on cam1 (ALERT)")
	assert.Contains(t, msgs[0].body, "Zones: porch")
	assert.Contains(t, msgs[0].body, "Score: 87%")
}

func TestRelay_SkipsWhileOffline(t *testing.T) {
	s, b := setup(t)
	sender := &fakeSender{}
	r := NewRelay(s, sender, nil, quietLog())
	r.Attach(b)

	s.AddCamera("cam1", nil)
	s.AssignCameraGroup("cam1", "123@g.us")

	s.Emit(model.EventFormatted, event("cam1"))
	r.Wait()
	assert.Empty(t, sender.messages())
}

func TestRelay_CloseDetaches(t *testing.T) {
	s, b := setup(t)
	sender := &fakeSender{}
	r := NewRelay(s, sender, nil, quietLog())
	r.Attach(b)
	r.Close()

	s.AddCamera("cam1", nil)
	s.AssignCameraGroup("cam1", "123@g.us")
	s.SetConnected(true)
	s.Emit(model.EventFormatted, event("cam1"))
	r.Wait()
	assert.Empty(t, sender.messages())
}

func TestRelay_SendFailureCounted(t *testing.T) {
	s, b := setup(t)
	reg := prometheus.NewRegistry()
	r := NewRelay(s, &fakeSender{err: errors.New("offline")}, metrics.NewWithRegistry(reg), quietLog())
	r.Attach(b)
	defer r.Close()

	s.AddCamera("cam1", nil)
	s.AssignCameraGroup("cam1", "123@g.us")
	s.SetConnected(true)
	s.Emit(model.EventFormatted, event("cam1"))
	r.Wait()

	families, err := reg.Gather()
	require.NoError(t, err)
	var failed float64
	for _, f := range families {
		if f.GetName() != "bridge_relay_messages_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == "failed" {
					failed = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(1), failed)
}

func TestMessage_Minimal(t *testing.T) {
	assert.Equal(t, "[Frigate] object detected on yard", Message(model.FormattedEvent{Camera: "yard"}))
}
