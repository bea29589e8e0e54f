package notify

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/hub"
	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/model"
)

type Listener func(data any)

type listener struct {
	id uint64
	fn Listener
}

// Broadcaster fans a notification out to every open dashboard socket and to
// the in-process listeners registered for that event name.
type Broadcaster struct {
	hub     *hub.Hub
	metrics *metrics.Metrics
	log     *logrus.Entry

	guardMu sync.RWMutex
	guard   func() bool

	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]listener
}

func New(h *hub.Hub, m *metrics.Metrics, log *logrus.Entry) *Broadcaster {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broadcaster{
		hub:       h,
		metrics:   m,
		log:       log,
		listeners: make(map[string][]listener),
	}
}

// SetGuard installs the check that decides whether a notification is being
// issued from inside a state mutation. Without a guard every call is accepted.
func (b *Broadcaster) SetGuard(guard func() bool) {
	b.guardMu.Lock()
	defer b.guardMu.Unlock()
	b.guard = guard
}

func (b *Broadcaster) allowed() bool {
	b.guardMu.RLock()
	defer b.guardMu.RUnlock()
	return b.guard == nil || b.guard()
}

// On registers fn for event and returns a func that removes it.
func (b *Broadcaster) On(event string, fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[event] = append(b.listeners[event], listener{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			current := b.listeners[event]
			for i, l := range current {
				if l.id == id {
					b.listeners[event] = append(current[:i:i], current[i+1:]...)
					break
				}
			}
			if len(b.listeners[event]) == 0 {
				delete(b.listeners, event)
			}
		})
	}
}

func (b *Broadcaster) Notify(event string, data any) {
	if !b.allowed() {
		b.log.WithField("event", event).Warn("notification outside state mutation rejected")
		return
	}

	if b.metrics != nil {
		b.metrics.Notifications.WithLabelValues(event).Inc()
		if event == model.EventConnectionState {
			b.metrics.StateTransitions.WithLabelValues(fmt.Sprint(data)).Inc()
		}
	}

	if b.hub != nil {
		frame, err := json.Marshal(model.Envelope{Event: event, Data: data})
		if err != nil {
			b.log.WithError(err).WithField("event", event).Warn("notification not serializable")
		} else {
			_, skipped := b.hub.Broadcast(frame)
			if skipped > 0 {
				b.log.WithFields(logrus.Fields{"event": event, "skipped": skipped}).Debug("subscribers not ready")
				if b.metrics != nil {
					b.metrics.Dropped.Add(float64(skipped))
				}
			}
		}
	}

	b.mu.RLock()
	targets := append([]listener(nil), b.listeners[event]...)
	b.mu.RUnlock()

	for _, l := range targets {
		b.call(event, l.fn, data)
	}
}

func (b *Broadcaster) call(event string, fn Listener, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{"event": event, "panic": r}).Error("listener panicked")
		}
	}()
	fn(data)
}
