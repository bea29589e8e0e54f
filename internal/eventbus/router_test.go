package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

type recorded struct {
	event string
	data  any
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Notify(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{event, data})
}

func (r *recorder) named(event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e.data)
		}
	}
	return out
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func newRouter(t *testing.T) (*Router, *state.Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := state.New(rec, quietLog())
	r := NewRouter("frigate", s, metrics.NewWithRegistry(prometheus.NewRegistry()), quietLog())
	r.location = time.UTC
	return r, s, rec
}

func TestRouter_FormatsEnvelopeEvent(t *testing.T) {
	r, _, rec := newRouter(t)

	r.Handle("frigate/cam1/events", []byte(`{"type":"new","after":{"camera":"cam1","label":"person","start_time":1700000000,"top_score":0.91,"current_zones":["yard"]}}`))

	formatted := rec.named(model.EventFormatted)
	require.Len(t, formatted, 1)
	ev := formatted[0].(model.FormattedEvent)
	assert.Equal(t, "new", ev.Type)
	assert.Equal(t, "cam1", ev.Camera)
	assert.Equal(t, "person", ev.Label)
	assert.Equal(t, []string{"yard"}, ev.Zones)
	require.NotNil(t, ev.StartTime)
	assert.Equal(t, "2023-11-14 22:13:20", *ev.StartTime)
	assert.Nil(t, ev.EndTime)
	require.NotNil(t, ev.Score)
	assert.InDelta(t, 0.91, *ev.Score, 1e-9)
	assert.Equal(t, "info", ev.Severity)
	assert.Equal(t, defaultColor, ev.Color)
}

func TestRouter_FlatPayloadAndAlertColor(t *testing.T) {
	r, _, rec := newRouter(t)

	r.Handle("frigate/events", []byte(`{"camera":"door","label":"car","severity":"alert","score":0.5}`))

	formatted := rec.named(model.EventFormatted)
	require.Len(t, formatted, 1)
	ev := formatted[0].(model.FormattedEvent)
	assert.Equal(t, "door", ev.Camera)
	assert.Equal(t, alertColor, ev.Color)
	assert.Equal(t, []string{}, ev.Zones)
	assert.Nil(t, ev.StartTime)
}

func TestRouter_RegistersCameraOnce(t *testing.T) {
	r, s, rec := newRouter(t)

	r.Handle("frigate/cam1/motion", []byte("ON"))
	r.Handle("frigate/cam1/person", []byte("1"))

	assert.Equal(t, []string{"cam1"}, s.Cameras())
	require.Len(t, rec.named(model.EventNewCamera), 1)
	assert.Equal(t, model.NewCamera{Camera: "cam1", Color: CameraColor}, rec.named(model.EventNewCamera)[0])
	assert.Empty(t, rec.named(model.EventFormatted))
}

func TestRouter_ExcludedSegmentsAreNotCameras(t *testing.T) {
	r, s, _ := newRouter(t)

	for _, topic := range []string{"frigate/available", "frigate/stats", "frigate/reviews", "frigate/notifications/set", "frigate/FrontZone/all"} {
		r.Handle(topic, []byte("online"))
	}
	assert.Empty(t, s.Cameras())
}

func TestRouter_BinaryPayloadIgnored(t *testing.T) {
	r, s, rec := newRouter(t)

	assert.NotPanics(t, func() {
		r.Handle("frigate/cam2/snapshot", []byte{0xff, 0xd8, 0xff, 0x00})
		r.Handle("frigate/cam2/person/snapshot", []byte{0x89, 'P', 'N', 'G'})
	})
	assert.Equal(t, []string{"cam2"}, s.Cameras())
	assert.Empty(t, rec.named(model.EventFormatted))
}

func TestRouter_MalformedEventDropped(t *testing.T) {
	r, _, rec := newRouter(t)

	r.Handle("frigate/cam1/events", []byte(`{"type":"new","after":`))
	r.Handle("frigate/cam1/events", []byte(`not json`))

	assert.Empty(t, rec.named(model.EventFormatted))
}

func TestRouter_IgnoresOtherRoots(t *testing.T) {
	r, s, rec := newRouter(t)

	r.Handle("zigbee/cam1/events", []byte(`{"camera":"cam1"}`))
	r.Handle("frigate", []byte(`{}`))

	assert.Empty(t, s.Cameras())
	assert.Empty(t, rec.events)
}

func TestRouter_CameraFromTopicWhenPayloadOmitsIt(t *testing.T) {
	r, _, rec := newRouter(t)

	r.Handle("frigate/garage/events", []byte(`{"type":"end","after":{"label":"dog","end_time":1700000060.5}}`))

	formatted := rec.named(model.EventFormatted)
	require.Len(t, formatted, 1)
	ev := formatted[0].(model.FormattedEvent)
	assert.Equal(t, "garage", ev.Camera)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, "2023-11-14 22:14:20", *ev.EndTime)
}
