package eventbus

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

const (
	CameraColor = "#2ca02c"

	alertColor   = "#ff4d4d"
	defaultColor = "#007bff"
	timeLayout   = "2006-01-02 15:04:05"
)

// Second topic segments that name a subtopic rather than a camera. Matched
// case-insensitively as substrings.
var excludedSegments = []string{"notifications", "events", "available", "reviews", "stats", "zone"}

var errNotObject = errors.New("payload is not a JSON object")

type Router struct {
	root     string
	store    *state.Store
	metrics  *metrics.Metrics
	log      *logrus.Entry
	location *time.Location
}

func NewRouter(root string, store *state.Store, m *metrics.Metrics, log *logrus.Entry) *Router {
	if root == "" {
		root = "frigate"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{root: root, store: store, metrics: m, log: log, location: time.Local}
}

func isExcluded(segment string) bool {
	s := strings.ToLower(segment)
	for _, ex := range excludedSegments {
		if strings.Contains(s, ex) {
			return true
		}
	}
	return false
}

func isBinary(parts []string) bool {
	for _, p := range parts[2:] {
		if p == "snapshot" || p == "clip" {
			return true
		}
	}
	return false
}

// Handle classifies one inbound message. It never panics and never returns
// an error; unusable messages are dropped.
func (r *Router) Handle(topic string, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{"topic": topic, "panic": rec}).Error("event router panicked")
		}
	}()

	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != r.root {
		r.count("ignored")
		return
	}

	camera := parts[1]
	if camera != "" && !isExcluded(camera) {
		r.registerCamera(camera)
	}

	if isBinary(parts) {
		r.log.WithField("topic", topic).Debug("ignored binary message")
		r.count("binary")
		return
	}

	isEvents := (len(parts) >= 3 && parts[2] == "events") || (len(parts) == 2 && camera == "events")
	if !isEvents {
		r.count("other")
		return
	}

	ev, err := r.format(payload)
	if err != nil {
		r.log.WithError(err).WithField("topic", topic).Debug("ignoring non-readable message")
		r.count("malformed")
		return
	}
	if ev.Camera == "" && camera != "events" {
		ev.Camera = camera
	}
	r.log.WithFields(logrus.Fields{
		"camera":   ev.Camera,
		"label":    ev.Label,
		"severity": ev.Severity,
	}).Infof("%s event", strings.ToUpper(ev.Severity))
	r.store.Emit(model.EventFormatted, ev)
	r.count("event")
}

func (r *Router) registerCamera(camera string) {
	if !r.store.AddCamera(camera, nil) {
		return
	}
	r.log.WithField("camera", camera).Info("new camera found")
	r.store.Emit(model.EventNewCamera, model.NewCamera{Camera: camera, Color: CameraColor})
}

type frigateEvent struct {
	Camera       string   `json:"camera"`
	Label        string   `json:"label"`
	CurrentZones []string `json:"current_zones"`
	StartTime    *float64 `json:"start_time"`
	EndTime      *float64 `json:"end_time"`
	TopScore     *float64 `json:"top_score"`
	Score        *float64 `json:"score"`
	Severity     string   `json:"severity"`
}

type frigateEnvelope struct {
	Type  string          `json:"type"`
	After json.RawMessage `json:"after"`
}

// format accepts both the flat record and the {type, before, after} envelope
// Frigate publishes, reading the "after" side of the latter.
func (r *Router) format(payload []byte) (model.FormattedEvent, error) {
	trimmed := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(trimmed, "{") {
		return model.FormattedEvent{}, errNotObject
	}

	var env frigateEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return model.FormattedEvent{}, err
	}
	body := payload
	if len(env.After) > 0 && string(env.After) != "null" {
		body = env.After
	}
	var fe frigateEvent
	if err := json.Unmarshal(body, &fe); err != nil {
		return model.FormattedEvent{}, err
	}

	severity := fe.Severity
	if severity == "" {
		severity = "info"
	}
	color := defaultColor
	if severity == "alert" {
		color = alertColor
	}
	zones := fe.CurrentZones
	if zones == nil {
		zones = []string{}
	}
	score := fe.TopScore
	if score == nil {
		score = fe.Score
	}

	return model.FormattedEvent{
		Type:      env.Type,
		Camera:    fe.Camera,
		Label:     fe.Label,
		Zones:     zones,
		StartTime: r.formatTime(fe.StartTime),
		EndTime:   r.formatTime(fe.EndTime),
		Score:     score,
		Severity:  severity,
		Color:     color,
	}, nil
}

func (r *Router) formatTime(ts *float64) *string {
	if ts == nil || *ts == 0 {
		return nil
	}
	sec, frac := math.Modf(*ts)
	s := time.Unix(int64(sec), int64(frac*1e9)).In(r.location).Format(timeLayout)
	return &s
}

func (r *Router) count(kind string) {
	if r.metrics != nil {
		r.metrics.MQTTMessages.WithLabelValues(kind).Inc()
	}
}
