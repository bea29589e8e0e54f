package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Notifications    *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec

	Subscribers prometheus.Gauge
	Dropped     prometheus.Counter

	MQTTMessages  *prometheus.CounterVec
	RelayMessages *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(nil)
}

// NewWithRegistry registers the collectors on registry, or on the default
// registerer when registry is nil.
func NewWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_notifications_total",
				Help: "Notifications broadcast to subscribers, by event name",
			},
			[]string{"event"},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_state_transitions_total",
				Help: "Connection state transitions, by new state",
			},
			[]string{"state"},
		),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_ws_subscribers",
			Help: "Currently connected dashboard sockets",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_ws_dropped_total",
			Help: "Frames skipped because a subscriber was not ready",
		}),
		MQTTMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_mqtt_messages_total",
				Help: "Inbound event bus messages, by classification",
			},
			[]string{"kind"},
		),
		RelayMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_relay_messages_total",
				Help: "Camera events relayed to WhatsApp groups, by result",
			},
			[]string{"result"},
		),
	}
}
