package model

import "time"

// ConnectionState is the ground-truth status of the WhatsApp account connection.
type ConnectionState string

const (
	StateInitializing         ConnectionState = "initializing"
	StateQRReceived           ConnectionState = "qr_received"
	StateAwaitingQR           ConnectionState = "awaiting_qr"
	StateLoading              ConnectionState = "loading"
	StateFailedRestore        ConnectionState = "failed_restore"
	StateTimeout              ConnectionState = "timeout"
	StateConnected            ConnectionState = "connected"
	StateAuthenticated        ConnectionState = "authenticated"
	StateDisconnected         ConnectionState = "disconnected"
	StateAuthFailure          ConnectionState = "auth_failure"
	StateInitializationFailed ConnectionState = "initialization_failed"
	StateDestroyed            ConnectionState = "destroyed"
	StateConflict             ConnectionState = "conflict"
	StateUnlaunched           ConnectionState = "unlaunched"
	StateUnpaired             ConnectionState = "unpaired"
	StateUnpairedIdle         ConnectionState = "unpaired_idle"
	StateNotReady             ConnectionState = "not_ready"
	StateProxyError           ConnectionState = "proxy_error"
	StateSubscribing          ConnectionState = "subscribing"
	StateUnsubscribing        ConnectionState = "unsubscribing"
)

var connectionStates = map[ConnectionState]struct{}{
	StateInitializing:         {},
	StateQRReceived:           {},
	StateAwaitingQR:           {},
	StateLoading:              {},
	StateFailedRestore:        {},
	StateTimeout:              {},
	StateConnected:            {},
	StateAuthenticated:        {},
	StateDisconnected:         {},
	StateAuthFailure:          {},
	StateInitializationFailed: {},
	StateDestroyed:            {},
	StateConflict:             {},
	StateUnlaunched:           {},
	StateUnpaired:             {},
	StateUnpairedIdle:         {},
	StateNotReady:             {},
	StateProxyError:           {},
	StateSubscribing:          {},
	StateUnsubscribing:        {},
}

func (s ConnectionState) Valid() bool {
	_, ok := connectionStates[s]
	return ok
}

// HoldsQR reports whether a QR payload may be present while in this state.
func (s ConnectionState) HoldsQR() bool {
	return s == StateAwaitingQR || s == StateQRReceived
}

func ParseConnectionState(raw string) (ConnectionState, bool) {
	s := ConnectionState(raw)
	return s, s.Valid()
}

type AccountIdentity struct {
	Name   *string `json:"name"`
	Number *string `json:"number"`
}

func NewAccountIdentity(name, number string) AccountIdentity {
	return AccountIdentity{Name: &name, Number: &number}
}

func (a AccountIdentity) IsZero() bool {
	return a.Name == nil && a.Number == nil
}

type Group struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMember bool   `json:"isMember"`
	IsAdmin  bool   `json:"isAdmin"`
}

type ScriptProcess struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	Command   string    `json:"command,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

type FormattedEvent struct {
	Type      string   `json:"type,omitempty"`
	Camera    string   `json:"camera"`
	Label     string   `json:"label"`
	Zones     []string `json:"zones"`
	StartTime *string  `json:"startTime"`
	EndTime   *string  `json:"endTime"`
	Score     *float64 `json:"score"`
	Severity  string   `json:"severity"`
	Color     string   `json:"color"`
}

type NewCamera struct {
	Camera string `json:"camera"`
	Color  string `json:"color"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Envelope is the wire shape of every notification pushed to live subscribers.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
