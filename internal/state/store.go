package state

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/model"
)

type Notifier interface {
	Notify(event string, data any)
}

type NotifierFunc func(event string, data any)

func (f NotifierFunc) Notify(event string, data any) { f(event, data) }

// Store holds the process-lifetime bridge state. Every setter compares the new
// value structurally against the stored one and notifies only on a real change.
//
// mu serializes mutations across goroutines. owner records the goroutine that is
// currently inside a mutation: a setter invoked again from that goroutine (a
// notification listener writing back into the store) is dropped instead of
// recursing or deadlocking on mu.
type Store struct {
	mu    sync.Mutex
	owner atomic.Int64

	dataMu                  sync.RWMutex
	connectionState         model.ConnectionState
	connected               bool
	account                 model.AccountIdentity
	qr                      string
	isSubscribed            bool
	isSubscribing           bool
	cameras                 []string
	cameraDetails           map[string]map[string]any
	cameraGroupMappings     map[string]string
	scriptProcess           model.ScriptProcess
	groupMembershipRequests []any
	groups                  []model.Group

	notifier Notifier
	log      *logrus.Entry
}

func New(notifier Notifier, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		connectionState:     model.StateDisconnected,
		cameraDetails:       make(map[string]map[string]any),
		cameraGroupMappings: make(map[string]string),
		notifier:            notifier,
		log:                 log,
	}
}

// InMutation reports whether the calling goroutine is inside a store mutation.
func (s *Store) InMutation() bool {
	return s.owner.Load() == goid.Get()
}

func (s *Store) begin(what string) bool {
	if s.InMutation() {
		s.log.WithField("field", what).Debug("nested state update dropped")
		return false
	}
	s.mu.Lock()
	s.owner.Store(goid.Get())
	return true
}

func (s *Store) end() {
	s.owner.Store(0)
	s.mu.Unlock()
}

func (s *Store) notify(event string, data any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(event, data)
}

// Emit delivers a notification that is not tied to a field change, within the
// same guarded scope as a setter.
func (s *Store) Emit(event string, data any) bool {
	if !s.begin(event) {
		return false
	}
	defer s.end()
	s.notify(event, data)
	return true
}

func setField[T any](s *Store, event string, field *T, v T, clone func(T) T) bool {
	if !s.begin(event) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if Equal(*field, v) {
		s.dataMu.Unlock()
		return false
	}
	*field = clone(v)
	out := clone(v)
	s.dataMu.Unlock()

	s.notify(event, out)
	return true
}

func same[T any](v T) T { return v }

func (s *Store) ConnectionState() model.ConnectionState {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.connectionState
}

// SetConnectionState rejects values outside the known enumeration. Leaving the
// QR states clears the QR payload in the same mutation.
func (s *Store) SetConnectionState(state model.ConnectionState) bool {
	if !state.Valid() {
		s.log.WithField("state", string(state)).Warn("unknown connection state rejected")
		return false
	}
	if !s.begin(model.EventConnectionState) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if s.connectionState == state {
		s.dataMu.Unlock()
		return false
	}
	s.connectionState = state
	clearQR := !state.HoldsQR() && s.qr != ""
	if clearQR {
		s.qr = ""
	}
	s.dataMu.Unlock()

	if clearQR {
		s.notify(model.EventQRCode, nil)
	}
	s.notify(model.EventConnectionState, state)
	return true
}

func (s *Store) Connected() bool {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.connected
}

func (s *Store) SetConnected(connected bool) bool {
	return setField(s, model.EventConnected, &s.connected, connected, same[bool])
}

func (s *Store) Account() model.AccountIdentity {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return cloneAccount(s.account)
}

func (s *Store) SetAccount(account model.AccountIdentity) bool {
	return setField(s, model.EventAccount, &s.account, account, cloneAccount)
}

func (s *Store) QR() string {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.qr
}

// SetQR stores the payload; an empty string clears it and notifies null.
func (s *Store) SetQR(qr string) bool {
	if !s.begin(model.EventQRCode) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if s.qr == qr {
		s.dataMu.Unlock()
		return false
	}
	if qr != "" && !s.connectionState.HoldsQR() {
		state := s.connectionState
		s.dataMu.Unlock()
		s.log.WithField("state", string(state)).Warn("qr payload outside qr state rejected")
		return false
	}
	s.qr = qr
	s.dataMu.Unlock()

	if qr == "" {
		s.notify(model.EventQRCode, nil)
	} else {
		s.notify(model.EventQRCode, qr)
	}
	return true
}

func (s *Store) IsSubscribed() bool {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.isSubscribed
}

// SetIsSubscribed clears isSubscribing when the subscription becomes active.
func (s *Store) SetIsSubscribed(subscribed bool) bool {
	if !s.begin(model.EventIsSubscribed) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if s.isSubscribed == subscribed {
		s.dataMu.Unlock()
		return false
	}
	s.isSubscribed = subscribed
	clearSubscribing := subscribed && s.isSubscribing
	if clearSubscribing {
		s.isSubscribing = false
	}
	s.dataMu.Unlock()

	if clearSubscribing {
		s.notify(model.EventIsSubscribing, false)
	}
	s.notify(model.EventIsSubscribed, subscribed)
	return true
}

func (s *Store) IsSubscribing() bool {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.isSubscribing
}

// SetIsSubscribing refuses true while a subscription is active.
func (s *Store) SetIsSubscribing(subscribing bool) bool {
	if !s.begin(model.EventIsSubscribing) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if subscribing && s.isSubscribed {
		s.dataMu.Unlock()
		s.log.Debug("already subscribed; subscribing flag not set")
		return false
	}
	if s.isSubscribing == subscribing {
		s.dataMu.Unlock()
		return false
	}
	s.isSubscribing = subscribing
	s.dataMu.Unlock()

	s.notify(model.EventIsSubscribing, subscribing)
	return true
}

func (s *Store) Cameras() []string {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return append([]string(nil), s.cameras...)
}

func (s *Store) HasCamera(id string) bool {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	_, ok := s.cameraDetails[id]
	return ok
}

func (s *Store) CameraDetails(id string) (map[string]any, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	details, ok := s.cameraDetails[id]
	return cloneAnyMap(details), ok
}

// SetCameras replaces the registry. Details of cameras present in both the old
// and the new list are kept.
func (s *Store) SetCameras(cameras []string) bool {
	if !s.begin(model.EventCameras) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if Equal(s.cameras, cameras) {
		s.dataMu.Unlock()
		return false
	}
	next := make([]string, 0, len(cameras))
	details := make(map[string]map[string]any, len(cameras))
	for _, id := range cameras {
		if _, dup := details[id]; dup {
			continue
		}
		d := s.cameraDetails[id]
		if d == nil {
			d = map[string]any{}
		}
		details[id] = d
		next = append(next, id)
	}
	s.cameras = next
	s.cameraDetails = details
	out := append([]string(nil), next...)
	s.dataMu.Unlock()

	s.notify(model.EventCameras, out)
	return true
}

// AddCamera registers a camera id. Adding a known id is a no-op.
func (s *Store) AddCamera(id string, details map[string]any) bool {
	if id == "" {
		return false
	}
	if !s.begin(model.EventCameras) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if _, ok := s.cameraDetails[id]; ok {
		s.dataMu.Unlock()
		return false
	}
	if details == nil {
		details = map[string]any{}
	}
	s.cameras = append(s.cameras, id)
	s.cameraDetails[id] = cloneAnyMap(details)
	out := append([]string(nil), s.cameras...)
	s.dataMu.Unlock()

	s.notify(model.EventCameras, out)
	return true
}

func (s *Store) CameraGroupMappings() map[string]string {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return cloneStringMap(s.cameraGroupMappings)
}

func (s *Store) CameraGroup(camera string) (string, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	group, ok := s.cameraGroupMappings[camera]
	return group, ok
}

func (s *Store) SetCameraGroupMappings(mappings map[string]string) bool {
	return setField(s, model.EventCameraGroupMappings, &s.cameraGroupMappings, mappings, cloneStringMap)
}

// AssignCameraGroup maps one camera to a group, last write wins.
func (s *Store) AssignCameraGroup(camera, group string) bool {
	if !s.begin(model.EventCameraGroupMappings) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	if current, ok := s.cameraGroupMappings[camera]; ok && current == group {
		s.dataMu.Unlock()
		return false
	}
	next := cloneStringMap(s.cameraGroupMappings)
	next[camera] = group
	s.cameraGroupMappings = next
	out := cloneStringMap(next)
	s.dataMu.Unlock()

	s.notify(model.EventCameraGroupMappings, out)
	return true
}

func (s *Store) ScriptProcess() model.ScriptProcess {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.scriptProcess
}

func (s *Store) SetScriptProcess(p model.ScriptProcess) bool {
	return setField(s, model.EventScriptProcess, &s.scriptProcess, p, same[model.ScriptProcess])
}

func (s *Store) GroupMembershipRequests() []any {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return append([]any(nil), s.groupMembershipRequests...)
}

func (s *Store) SetGroupMembershipRequests(requests []any) bool {
	return setField(s, model.EventGroupMembershipRequests, &s.groupMembershipRequests, requests, cloneSlice[any])
}

func (s *Store) AddGroupMembershipRequest(request any) bool {
	if !s.begin(model.EventGroupMembershipRequests) {
		return false
	}
	defer s.end()

	s.dataMu.Lock()
	s.groupMembershipRequests = append(s.groupMembershipRequests, request)
	out := append([]any(nil), s.groupMembershipRequests...)
	s.dataMu.Unlock()

	s.notify(model.EventGroupMembershipRequests, out)
	return true
}

func (s *Store) Groups() []model.Group {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return append([]model.Group(nil), s.groups...)
}

func (s *Store) SetGroups(groups []model.Group) bool {
	return setField(s, model.EventGroups, &s.groups, groups, cloneSlice[model.Group])
}

// Reset restores every field to its startup default, notifying each change.
func (s *Store) Reset() {
	s.SetConnectionState(model.StateDisconnected)
	s.SetQR("")
	s.SetConnected(false)
	s.SetIsSubscribed(false)
	s.SetIsSubscribing(false)
	s.SetAccount(model.AccountIdentity{})
	s.SetGroups(nil)
	s.SetGroupMembershipRequests(nil)
	s.SetCameras(nil)
	s.SetCameraGroupMappings(map[string]string{})
}

type Snapshot struct {
	State               model.ConnectionState `json:"state"`
	Connected           bool                  `json:"connected"`
	Account             model.AccountIdentity `json:"account"`
	QR                  *string               `json:"qr"`
	IsSubscribed        bool                  `json:"isSubscribed"`
	IsSubscribing       bool                  `json:"isSubscribing"`
	Cameras             []string              `json:"cameras"`
	CameraGroupMappings map[string]string     `json:"cameraGroupMappings"`
	Groups              []model.Group         `json:"groups"`
	Script              model.ScriptProcess   `json:"script"`
}

func (s *Store) Snapshot() Snapshot {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()

	var qr *string
	if s.qr != "" {
		v := s.qr
		qr = &v
	}
	cameras := append([]string{}, s.cameras...)
	groups := append([]model.Group{}, s.groups...)
	return Snapshot{
		State:               s.connectionState,
		Connected:           s.connected,
		Account:             cloneAccount(s.account),
		QR:                  qr,
		IsSubscribed:        s.isSubscribed,
		IsSubscribing:       s.isSubscribing,
		Cameras:             cameras,
		CameraGroupMappings: cloneStringMap(s.cameraGroupMappings),
		Groups:              groups,
		Script:              s.scriptProcess,
	}
}

func cloneAccount(a model.AccountIdentity) model.AccountIdentity {
	var out model.AccountIdentity
	if a.Name != nil {
		v := *a.Name
		out.Name = &v
	}
	if a.Number != nil {
		v := *a.Number
		out.Number = &v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append([]T(nil), in...)
}
