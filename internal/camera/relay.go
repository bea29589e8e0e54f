package camera

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/notify"
	"frigate-wa-bridge/internal/state"
)

type Sender interface {
	SendText(ctx context.Context, chatID, body string) error
}

type Listeners interface {
	On(event string, fn notify.Listener) func()
}

// Relay sends formatted camera events to the WhatsApp group mapped to the
// camera. Events from unmapped cameras, or arriving while WhatsApp is offline,
// are dropped.
type Relay struct {
	store   *state.Store
	sender  Sender
	metrics *metrics.Metrics
	log     *logrus.Entry
	timeout time.Duration

	cancel func()
	wg     sync.WaitGroup
}

func NewRelay(store *state.Store, sender Sender, m *metrics.Metrics, log *logrus.Entry) *Relay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Relay{store: store, sender: sender, metrics: m, log: log, timeout: 30 * time.Second}
}

func (r *Relay) Attach(l Listeners) {
	r.cancel = l.On(model.EventFormatted, r.onEvent)
}

func (r *Relay) onEvent(data any) {
	ev, ok := data.(model.FormattedEvent)
	if !ok {
		return
	}
	group, ok := r.store.CameraGroup(ev.Camera)
	if !ok {
		r.count("unmapped")
		return
	}
	if !r.store.Connected() {
		r.log.WithField("camera", ev.Camera).Debug("whatsapp offline, event not relayed")
		r.count("offline")
		return
	}

	body := Message(ev)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.sender.SendText(ctx, group, body); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"camera": ev.Camera, "group": group}).Warn("relay failed")
			r.count("failed")
			return
		}
		r.count("sent")
	}()
}

// Wait blocks until in-flight sends finish.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Relay) count(result string) {
	if r.metrics != nil {
		r.metrics.RelayMessages.WithLabelValues(result).Inc()
	}
}

// Message renders ev as the text sent to a group.
func Message(ev model.FormattedEvent) string {
	var b strings.Builder
	label := ev.Label
	if label == "" {
		label = "object"
	}
	fmt.Fprintf(&b, "[Frigate] %s detected on %s", label, ev.Camera)
	if ev.Severity == "alert" {
		b.WriteString(" (ALERT)")
	}
	if len(ev.Zones) > 0 {
		fmt.Fprintf(&b, "\nZones: %s", strings.Join(ev.Zones, ", "))
	}
	if ev.Score != nil {
		fmt.Fprintf(&b, "\nScore: %.0f%%", *ev.Score*100)
	}
	if ev.StartTime != nil {
		fmt.Fprintf(&b, "\nStarted: %s", *ev.StartTime)
	}
	if ev.EndTime != nil {
		fmt.Fprintf(&b, "\nEnded: %s", *ev.EndTime)
	}
	return b.String()
}
