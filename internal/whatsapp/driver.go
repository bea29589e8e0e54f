package whatsapp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/retry"
	"frigate-wa-bridge/internal/session"
	"frigate-wa-bridge/internal/state"
)

const (
	statusReply     = "[WhatsApp] This is an automated status response."
	unknownName     = "Unknown"
	backgroundLimit = 30 * time.Second
)

var transientReasons = []string{"navigation", "network", "connection", "timeout", "timed out"}

func isTransient(reason string) bool {
	r := strings.ToLower(reason)
	for _, t := range transientReasons {
		if strings.Contains(r, t) {
			return true
		}
	}
	return false
}

type Options struct {
	DefaultSessionID  string
	Retries           int
	RetryDelay        time.Duration
	GroupPollInterval time.Duration
	QRRefreshInterval time.Duration
	ForwardTarget     string
	// QRWriter receives a terminal rendering of each QR code when set.
	QRWriter io.Writer
}

// Driver owns the single account client and turns its lifecycle events into
// state store mutations.
type Driver struct {
	store    *state.Store
	sessions *session.Manager
	factory  ClientFactory
	opts     Options
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	client       AccountClient
	generation   uint64
	sessionID    string
	selfID       string
	initializing bool
	forwarding   bool
	groupPoll    *poller
	qrRefresh    *poller
}

func NewDriver(store *state.Store, sessions *session.Manager, factory ClientFactory, opts Options, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.DefaultSessionID == "" {
		opts.DefaultSessionID = "default"
	}
	if opts.GroupPollInterval <= 0 {
		opts.GroupPollInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		store:    store,
		sessions: sessions,
		factory:  factory,
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Initialize creates and connects a client for sessionID. A call made while
// another initialization is pending is ignored.
func (d *Driver) Initialize(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = d.opts.DefaultSessionID
	}
	dir, err := d.sessions.Path(sessionID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.initializing {
		d.mu.Unlock()
		d.log.Info("client is already initializing; skipping")
		return nil
	}
	d.initializing = true
	d.generation++
	gen := d.generation
	old := d.client
	d.client = nil
	d.sessionID = sessionID
	gp, qr := d.takePollersLocked()
	d.mu.Unlock()

	gp.stop()
	qr.stop()
	if old != nil {
		_ = old.Close()
	}

	d.log.WithField("session", sessionID).Info("initializing client")
	d.store.SetConnectionState(model.StateInitializing)

	restored, err := d.sessions.HasSessionData(sessionID)
	if err != nil {
		d.log.WithError(err).Warn("session data check failed")
	}
	if restored {
		d.log.WithField("session", sessionID).Info("restoring existing session")
		d.store.SetConnectionState(model.StateAuthenticated)
	}

	if _, err := d.sessions.Create(sessionID); err != nil {
		d.failInitialize(gen, err)
		return err
	}
	dbPath, err := d.sessions.DBPath(sessionID)
	if err != nil {
		d.failInitialize(gen, err)
		return err
	}
	cs := ClientSpec{SessionID: sessionID, Dir: dir, DBPath: dbPath}

	err = retry.Run(ctx, func(ctx context.Context) error {
		return d.connectOnce(ctx, gen, cs)
	}, d.opts.Retries, d.opts.RetryDelay)
	if err != nil {
		d.failInitialize(gen, err)
		return fmt.Errorf("initialize session %s: %w", sessionID, err)
	}
	return nil
}

func (d *Driver) connectOnce(ctx context.Context, gen uint64, cs ClientSpec) error {
	client, err := d.factory(ctx, cs, func(ev Event) { d.handle(gen, ev) })
	if err != nil {
		return err
	}

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		_ = client.Close()
		return nil
	}
	d.client = client
	d.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		d.mu.Lock()
		if d.client == client {
			d.client = nil
		}
		d.mu.Unlock()
		_ = client.Close()
		d.log.WithError(err).Warn("client connect failed")
		return err
	}
	return nil
}

func (d *Driver) failInitialize(gen uint64, err error) {
	d.mu.Lock()
	current := gen == d.generation
	if current {
		d.initializing = false
	}
	d.mu.Unlock()
	if !current {
		return
	}

	d.log.WithError(err).Error("client initialization failed")
	d.store.SetConnectionState(model.StateInitializationFailed)
	d.store.Emit(model.EventError, model.ErrorPayload{
		Message: "Error initializing WhatsApp",
		Error:   err.Error(),
	})
}

func (d *Driver) handle(gen uint64, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("whatsapp event handler panicked")
			d.store.Emit(model.EventError, model.ErrorPayload{
				Message: "Error handling WhatsApp event",
				Error:   fmt.Sprint(r),
			})
		}
	}()

	if !d.isCurrent(gen) {
		d.log.WithField("event", fmt.Sprintf("%T", ev)).Debug("event from replaced client dropped")
		return
	}

	switch e := ev.(type) {
	case QREvent:
		d.onQR(gen, e.Code)
	case QRTimeoutEvent:
		d.onQRTimeout(gen)
	case AuthenticatedEvent:
		d.onAuthenticated(gen)
	case ReadyEvent:
		d.onReady(gen)
	case AuthFailureEvent:
		d.onAuthFailure(gen, e.Reason)
	case DisconnectedEvent:
		d.onDisconnected(gen, e.Reason)
	case ContactChangedEvent:
		d.log.Info("contact changed")
		d.background(func(ctx context.Context) { d.refreshIdentity(ctx, gen) })
	case MessageEvent:
		d.onMessage(e)
	case PassThroughEvent:
		d.log.WithField("event", e.Name).Info("whatsapp event")
		if e.Name == model.EventGroupMembershipRequest {
			d.store.AddGroupMembershipRequest(e.Data)
		}
		d.store.Emit(e.Name, e.Data)
	default:
		d.log.WithField("event", fmt.Sprintf("%T", ev)).Warn("unhandled whatsapp event")
		d.store.Emit(model.EventError, model.ErrorPayload{
			Message: "Unhandled WhatsApp event",
			Error:   fmt.Sprintf("%T", ev),
		})
	}
}

func (d *Driver) onQR(gen uint64, code string) {
	d.log.Info("qr code received")
	d.store.SetConnectionState(model.StateAwaitingQR)
	d.store.SetQR(code)
	if d.opts.QRWriter != nil {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, d.opts.QRWriter)
	}
	d.startQRRefresh(gen)
}

func (d *Driver) onQRTimeout(gen uint64) {
	client, sessionID, ok := d.detach(gen)
	if !ok {
		return
	}
	d.log.Warn("qr code was not scanned in time")
	d.clearFlags()
	d.store.SetConnectionState(model.StateTimeout)
	d.release(client, sessionID, nil)
}

func (d *Driver) onAuthenticated(gen uint64) {
	d.mu.Lock()
	d.initializing = false
	qr := d.qrRefresh
	d.qrRefresh = nil
	sessionID := d.sessionID
	d.mu.Unlock()
	qr.stop()

	d.log.Info("authentication successful")
	d.markPaired(sessionID)
	d.store.SetConnectionState(model.StateAuthenticated)
	d.background(func(ctx context.Context) { d.refreshIdentity(ctx, gen) })
}

func (d *Driver) onReady(gen uint64) {
	d.mu.Lock()
	d.initializing = false
	qr := d.qrRefresh
	d.qrRefresh = nil
	sessionID := d.sessionID
	d.mu.Unlock()
	qr.stop()

	d.log.Info("client is ready")
	d.markPaired(sessionID)
	d.store.SetIsSubscribing(false)
	d.store.SetConnected(true)
	d.store.SetIsSubscribed(true)
	d.store.Emit(model.EventStatus, model.StatusPayload{Connected: true})
	d.store.SetConnectionState(model.StateConnected)

	d.background(func(ctx context.Context) {
		d.refreshIdentity(ctx, gen)
		d.startGroupPoll(gen)
	})
}

func (d *Driver) onAuthFailure(gen uint64, reason string) {
	client, sessionID, ok := d.detach(gen)
	if !ok {
		return
	}
	d.log.WithField("reason", reason).Error("authentication failed")
	d.clearFlags()
	d.store.SetConnectionState(model.StateAuthFailure)
	d.store.Emit(model.EventStatus, model.StatusPayload{Connected: false})
	d.release(client, sessionID, nil)
}

func (d *Driver) onDisconnected(gen uint64, reason string) {
	client, sessionID, ok := d.detach(gen)
	if !ok {
		return
	}
	d.log.WithField("reason", reason).Info("client disconnected")
	d.clearFlags()
	d.store.SetConnectionState(model.StateDisconnected)
	d.store.Emit(model.EventStatus, model.StatusPayload{Connected: false})
	d.store.SetAccount(model.AccountIdentity{})

	if !isTransient(reason) {
		d.release(client, sessionID, nil)
		return
	}
	d.log.WithField("reason", reason).Info("transient disconnect; reinitializing")
	d.release(client, sessionID, func() {
		if d.ctx.Err() != nil {
			return
		}
		if err := d.Initialize(d.ctx, sessionID); err != nil {
			d.log.WithError(err).Warn("reinitialize after disconnect failed")
		}
	})
}

func (d *Driver) onMessage(m MessageEvent) {
	d.store.Emit(model.EventMessage, m)

	d.mu.Lock()
	self := d.selfID
	forwarding := d.forwarding
	d.mu.Unlock()

	if m.FromMe || (self != "" && m.Sender == self) {
		d.log.Debug("ignoring message from own account")
		return
	}
	if strings.Contains(strings.ToLower(m.Body), "status") {
		d.log.WithField("chat", m.Chat).Info("sending automated status response")
		d.sendAsync(m.Chat, statusReply, "Error handling incoming message")
	}
	if forwarding && d.opts.ForwardTarget != "" && m.Body != "" {
		d.log.WithField("target", d.opts.ForwardTarget).Info("forwarding message")
		d.sendAsync(d.opts.ForwardTarget, m.Body, "Error forwarding message")
	}
}

func (d *Driver) refreshIdentity(ctx context.Context, gen uint64) {
	client := d.clientFor(gen)
	if client == nil {
		d.log.Info("client not available; account info not updated")
		return
	}
	id, err := client.Self(ctx)
	if err != nil {
		d.log.WithError(err).Warn("account info update failed")
		return
	}
	name := id.Name
	if name == "" {
		name = unknownName
	}

	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return
	}
	d.selfID = id.ID
	d.mu.Unlock()

	if d.store.SetAccount(model.NewAccountIdentity(name, id.Number)) {
		d.log.WithFields(logrus.Fields{"name": name, "number": id.Number}).Info("account info updated")
	}
}

func (d *Driver) startGroupPoll(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation || d.client == nil || d.groupPoll.running() {
		return
	}
	if !d.store.Connected() {
		d.log.Info("client not connected; group polling not started")
		return
	}
	d.log.Info("starting group polling")
	d.groupPoll = startPoller(d.opts.GroupPollInterval, true, func(ctx context.Context) bool {
		return d.pollGroups(ctx, gen)
	})
}

func (d *Driver) pollGroups(ctx context.Context, gen uint64) bool {
	client := d.clientFor(gen)
	if client == nil || !d.store.Connected() {
		d.log.Info("client is not connected; stopping group polling")
		return false
	}
	groups, err := client.Groups(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		d.log.WithError(err).Warn("group fetch failed")
		d.store.Emit(model.EventError, model.ErrorPayload{
			Message: "WhatsApp Error",
			Error:   "Error fetching or updating user groups: " + err.Error(),
		})
		return !strings.Contains(strings.ToLower(err.Error()), "session closed")
	}
	if d.store.SetGroups(groups) {
		d.log.WithField("groups", len(groups)).Info("user groups updated")
	}
	return true
}

func (d *Driver) startQRRefresh(gen uint64) {
	if d.opts.QRRefreshInterval <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation || d.qrRefresh.running() {
		return
	}
	d.qrRefresh = startPoller(d.opts.QRRefreshInterval, false, func(ctx context.Context) bool {
		qr := d.store.QR()
		if qr == "" || !d.store.ConnectionState().HoldsQR() {
			return false
		}
		d.store.Emit(model.EventQRCode, qr)
		return true
	})
}

// Unlink logs the account out and resets every connection field. Local state
// is reset even when logout fails.
func (d *Driver) Unlink(ctx context.Context) error {
	client, sessionID := d.detachAny()

	var err error
	if client != nil {
		err = retry.Run(ctx, client.Logout, d.opts.Retries, d.opts.RetryDelay)
		_ = client.Close()
	} else {
		d.log.Info("client not initialized; resetting local state only")
	}

	d.clearFlags()
	d.store.SetConnectionState(model.StateDisconnected)
	d.store.SetQR("")
	d.store.SetAccount(model.AccountIdentity{})
	d.store.SetGroups(nil)
	d.store.Emit(model.EventStatus, model.StatusPayload{Connected: false})
	d.removeSession(sessionID)

	if err != nil {
		d.log.WithError(err).Error("logout failed")
		return fmt.Errorf("logout: %w", err)
	}
	d.log.Info("client logged out")
	return nil
}

// Connect initializes a client when none exists, or reconnects the current one.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	client := d.client
	sessionID := d.sessionID
	d.mu.Unlock()

	if client == nil {
		return d.Initialize(ctx, sessionID)
	}
	if d.store.Connected() {
		return nil
	}
	return retry.Run(ctx, client.Connect, d.opts.Retries, d.opts.RetryDelay)
}

// Disconnect drops the connection but keeps session data so a later Connect
// restores it without a new QR pairing.
func (d *Driver) Disconnect(ctx context.Context) error {
	client, _ := d.detachAny()
	if client == nil {
		return ErrNotInitialized
	}
	client.Disconnect()
	_ = client.Close()

	d.clearFlags()
	d.store.Emit(model.EventStatus, model.StatusPayload{Connected: false})
	d.store.SetConnectionState(model.StateDisconnected)
	d.log.Info("disconnected from whatsapp")
	return nil
}

func (d *Driver) Authorize(ctx context.Context, sessionID string) error {
	d.store.SetIsSubscribing(true)
	if err := d.Initialize(ctx, sessionID); err != nil {
		d.store.SetIsSubscribing(false)
		d.store.Emit(model.EventError, model.ErrorPayload{
			Message: "Error authorizing WhatsApp",
			Error:   err.Error(),
		})
		return err
	}
	d.store.Emit(model.EventAuthorized, model.AuthorizedPayload{Authorized: true})
	return nil
}

func (d *Driver) Unauthorize(ctx context.Context) error {
	if err := d.Unlink(ctx); err != nil {
		d.store.Emit(model.EventError, model.ErrorPayload{
			Message: "Error unauthorizing WhatsApp",
			Error:   err.Error(),
		})
		return err
	}
	d.store.Emit(model.EventAuthorized, model.AuthorizedPayload{Authorized: false})
	return nil
}

func (d *Driver) SetForwarding(on bool) {
	d.mu.Lock()
	d.forwarding = on
	d.mu.Unlock()

	if on {
		d.log.Info("starting message forwarding")
		d.store.Emit(model.EventForwardStarted, model.ForwardingPayload{Forwarding: true})
		return
	}
	d.log.Info("stopping message forwarding")
	d.store.Emit(model.EventForwardStopped, model.ForwardingPayload{Forwarding: false})
}

func (d *Driver) Forwarding() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.forwarding
}

func (d *Driver) QR() string {
	return d.store.QR()
}

func (d *Driver) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessionID == "" {
		return d.opts.DefaultSessionID
	}
	return d.sessionID
}

func (d *Driver) HasSessionData(sessionID string) bool {
	ok, err := d.sessions.HasSessionData(sessionID)
	return err == nil && ok
}

func (d *Driver) SendText(ctx context.Context, chatID, body string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return ErrNotInitialized
	}
	if !d.store.Connected() {
		return ErrNotConnected
	}
	return client.SendText(ctx, chatID, body)
}

// Close stops every timer and releases the client without logging out.
func (d *Driver) Close() error {
	d.cancel()
	client, _ := d.detachAny()
	var err error
	if client != nil {
		err = client.Close()
	}
	d.wg.Wait()
	return err
}

func (d *Driver) isCurrent(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.generation
}

func (d *Driver) clientFor(gen uint64) AccountClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		return nil
	}
	return d.client
}

func (d *Driver) takePollersLocked() (*poller, *poller) {
	gp, qr := d.groupPoll, d.qrRefresh
	d.groupPoll, d.qrRefresh = nil, nil
	return gp, qr
}

// detach releases the client owned by gen. Events still queued for it are
// dropped from here on.
func (d *Driver) detach(gen uint64) (AccountClient, string, bool) {
	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return nil, "", false
	}
	d.mu.Unlock()
	client, sessionID := d.detachAny()
	return client, sessionID, true
}

func (d *Driver) detachAny() (AccountClient, string) {
	d.mu.Lock()
	client := d.client
	sessionID := d.sessionID
	d.client = nil
	d.generation++
	d.initializing = false
	d.selfID = ""
	gp, qr := d.takePollersLocked()
	d.mu.Unlock()

	gp.stop()
	qr.stop()
	return client, sessionID
}

func (d *Driver) clearFlags() {
	d.store.SetConnected(false)
	d.store.SetIsSubscribed(false)
	d.store.SetIsSubscribing(false)
}

func (d *Driver) removeSession(sessionID string) {
	if sessionID == "" {
		return
	}
	if err := d.sessions.Remove(sessionID); err != nil {
		d.log.WithError(err).WithField("session", sessionID).Warn("session removal failed")
	}
}

func (d *Driver) markPaired(sessionID string) {
	if sessionID == "" {
		return
	}
	if err := d.sessions.MarkPaired(sessionID); err != nil {
		d.log.WithError(err).WithField("session", sessionID).Warn("session pairing not recorded")
	}
}

// release closes a detached client off the event goroutine and then removes
// its session directory, so the database is never deleted while open. The
// directory is kept when a newer client was started in the meantime. next runs
// after both.
func (d *Driver) release(client AccountClient, sessionID string, next func()) {
	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if client != nil {
			_ = client.Close()
		}
		d.mu.Lock()
		if gen == d.generation && d.client == nil {
			d.removeSession(sessionID)
		} else {
			d.log.WithField("session", sessionID).Debug("session reused; not removed")
		}
		d.mu.Unlock()
		if next != nil {
			next()
		}
	}()
}

func (d *Driver) sendAsync(chatID, body, failure string) {
	d.background(func(ctx context.Context) {
		if err := d.SendText(ctx, chatID, body); err != nil {
			d.log.WithError(err).WithField("chat", chatID).Warn("send failed")
			d.store.Emit(model.EventError, model.ErrorPayload{Message: failure, Error: err.Error()})
		}
	})
}

func (d *Driver) background(fn func(ctx context.Context)) {
	if d.ctx.Err() != nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(d.ctx, backgroundLimit)
		defer cancel()
		fn(ctx)
	}()
}
