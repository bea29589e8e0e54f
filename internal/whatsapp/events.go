package whatsapp

// Event is the closed set of notifications an AccountClient emits.
type Event interface {
	isEvent()
}

type QREvent struct {
	Code string
}

type QRTimeoutEvent struct{}

// AuthenticatedEvent fires once credentials are accepted, before the session
// is fully usable.
type AuthenticatedEvent struct{}

type ReadyEvent struct{}

type AuthFailureEvent struct {
	Reason string
}

type DisconnectedEvent struct {
	Reason string
}

type ContactChangedEvent struct{}

type MessageEvent struct {
	ID      string `json:"id"`
	Chat    string `json:"chat"`
	Sender  string `json:"sender"`
	Body    string `json:"body"`
	FromMe  bool   `json:"fromMe"`
	IsGroup bool   `json:"isGroup"`
}

// PassThroughEvent carries telemetry the driver does not interpret. Name is the
// notification event name it is forwarded under.
type PassThroughEvent struct {
	Name string
	Data any
}

func (QREvent) isEvent()             {}
func (QRTimeoutEvent) isEvent()      {}
func (AuthenticatedEvent) isEvent()  {}
func (ReadyEvent) isEvent()          {}
func (AuthFailureEvent) isEvent()    {}
func (DisconnectedEvent) isEvent()   {}
func (ContactChangedEvent) isEvent() {}
func (MessageEvent) isEvent()        {}
func (PassThroughEvent) isEvent()    {}
