package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"frigate-wa-bridge/internal/logging"
	"frigate-wa-bridge/internal/model"
)

// MeowClient is an AccountClient backed by whatsmeow with one sqlite store per
// session directory.
type MeowClient struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	handlerID uint32
	emit      func(Event)
	log       *logrus.Entry

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewMeowFactory returns a ClientFactory that opens the session database named
// by the ClientSpec.
func NewMeowFactory(log *logrus.Entry) ClientFactory {
	return func(ctx context.Context, cs ClientSpec, emit func(Event)) (AccountClient, error) {
		return NewMeowClient(ctx, cs, emit, log)
	}
}

func NewMeowClient(ctx context.Context, cs ClientSpec, emit func(Event), log *logrus.Entry) (*MeowClient, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("session", cs.SessionID)

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", cs.DBPath)
	container, err := sqlstore.New(ctx, "sqlite3", dsn, logging.WhatsMeow(log.WithField("module", "Database")))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, logging.WhatsMeow(log.WithField("module", "Client")))
	cli.EnableAutoReconnect = false

	cctx, cancel := context.WithCancel(context.Background())
	m := &MeowClient{
		cli:       cli,
		container: container,
		emit:      emit,
		log:       log,
		ctx:       cctx,
		cancel:    cancel,
	}
	m.handlerID = cli.AddEventHandler(m.dispatch)
	return m, nil
}

func (m *MeowClient) Connect(ctx context.Context) error {
	if m.cli.IsConnected() {
		return nil
	}
	if m.cli.Store.ID == nil {
		qrChan, err := m.cli.GetQRChannel(m.ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go m.pumpQR(qrChan)
	}
	if err := m.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (m *MeowClient) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			m.emit(QREvent{Code: item.Code})
		case "success":
			m.log.Debug("qr pairing completed")
		case "timeout":
			m.emit(QRTimeoutEvent{})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			m.emit(AuthFailureEvent{Reason: reason})
		}
	}
}

func (m *MeowClient) Disconnect() {
	m.cli.Disconnect()
}

func (m *MeowClient) Logout(ctx context.Context) error {
	if m.cli.Store.ID == nil {
		return nil
	}
	return m.cli.Logout(ctx)
}

func (m *MeowClient) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.cancel()
		m.cli.RemoveEventHandler(m.handlerID)
		m.cli.Disconnect()
		err = m.container.Close()
	})
	return err
}

func (m *MeowClient) Self(ctx context.Context) (Identity, error) {
	id := m.cli.Store.ID
	if id == nil {
		return Identity{}, ErrNotConnected
	}
	own := id.ToNonAD()
	out := Identity{ID: own.String(), Number: own.User, Name: m.cli.Store.PushName}

	contact, err := m.cli.Store.Contacts.GetContact(ctx, own)
	if err != nil {
		m.log.WithError(err).Debug("own contact lookup failed")
		return out, nil
	}
	switch {
	case contact.PushName != "":
		out.Name = contact.PushName
	case contact.FullName != "":
		out.Name = contact.FullName
	}
	return out, nil
}

func (m *MeowClient) Groups(ctx context.Context) ([]model.Group, error) {
	if !m.cli.IsConnected() {
		return nil, ErrNotConnected
	}
	joined, err := m.cli.GetJoinedGroups()
	if err != nil {
		return nil, err
	}

	var own types.JID
	if m.cli.Store.ID != nil {
		own = m.cli.Store.ID.ToNonAD()
	}
	ownLID := m.cli.Store.LID.ToNonAD()

	groups := make([]model.Group, 0, len(joined))
	for _, g := range joined {
		admin := false
		for _, p := range g.Participants {
			if p.JID.ToNonAD() == own || (!ownLID.IsEmpty() && p.LID.ToNonAD() == ownLID) {
				admin = p.IsAdmin || p.IsSuperAdmin
				break
			}
		}
		groups = append(groups, model.Group{
			ID:       g.JID.String(),
			Name:     g.Name,
			IsMember: true,
			IsAdmin:  admin,
		})
	}
	return groups, nil
}

func (m *MeowClient) SendText(ctx context.Context, chatID, body string) error {
	jid, err := ParseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = m.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)})
	return err
}

// ParseChatID accepts full JIDs, legacy "@c.us" ids and bare phone numbers.
func ParseChatID(chatID string) (types.JID, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return types.JID{}, fmt.Errorf("empty chat id")
	}
	if !strings.Contains(chatID, "@") {
		return types.NewJID(strings.TrimPrefix(chatID, "+"), types.DefaultUserServer), nil
	}
	chatID = strings.Replace(chatID, "@c.us", "@"+types.DefaultUserServer, 1)
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.JID{}, fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	return jid, nil
}

func (m *MeowClient) dispatch(evt any) {
	if ev := m.translate(evt); ev != nil {
		m.emit(ev)
	}
}

func (m *MeowClient) translate(evt any) Event {
	switch v := evt.(type) {
	case *events.PairSuccess:
		return AuthenticatedEvent{}
	case *events.Connected:
		return ReadyEvent{}
	case *events.PairError:
		return AuthFailureEvent{Reason: fmt.Sprintf("pair error: %v", v.Error)}
	case *events.LoggedOut:
		if v.OnConnect {
			return AuthFailureEvent{Reason: fmt.Sprintf("logged out: %v", v.Reason)}
		}
		return DisconnectedEvent{Reason: fmt.Sprintf("logged out: %v", v.Reason)}
	case *events.TemporaryBan:
		return AuthFailureEvent{Reason: fmt.Sprintf("temporary ban: %v", v.Code)}
	case *events.StreamReplaced:
		return DisconnectedEvent{Reason: "conflict: stream replaced"}
	case *events.ClientOutdated:
		return DisconnectedEvent{Reason: "client outdated"}
	case *events.ConnectFailure:
		return DisconnectedEvent{Reason: fmt.Sprintf("connection failure: %v %s", v.Reason, v.Message)}
	case *events.Disconnected:
		return DisconnectedEvent{Reason: "network connection lost"}
	case *events.KeepAliveTimeout:
		return PassThroughEvent{Name: "change_state", Data: map[string]any{
			"state":      "keepalive_timeout",
			"errorCount": v.ErrorCount,
		}}
	case *events.KeepAliveRestored:
		return PassThroughEvent{Name: "change_state", Data: map[string]any{"state": "keepalive_restored"}}
	case *events.Message:
		return MessageEvent{
			ID:      v.Info.ID,
			Chat:    v.Info.Chat.String(),
			Sender:  v.Info.Sender.ToNonAD().String(),
			Body:    textContent(v.Message),
			FromMe:  v.Info.IsFromMe,
			IsGroup: v.Info.IsGroup,
		}
	case *events.Receipt:
		return PassThroughEvent{Name: "message_ack", Data: map[string]any{
			"ids":  v.MessageIDs,
			"chat": v.Chat.String(),
			"type": string(v.Type),
		}}
	case *events.CallOffer:
		return PassThroughEvent{Name: "call", Data: map[string]any{
			"id":   v.CallID,
			"from": v.From.String(),
		}}
	case *events.JoinedGroup:
		return PassThroughEvent{Name: "wa-group-joined", Data: map[string]any{
			"id":   v.JID.String(),
			"name": v.Name,
		}}
	case *events.GroupInfo:
		data := map[string]any{"id": v.JID.String()}
		switch {
		case len(v.Join) > 0:
			data["participants"] = jidStrings(v.Join)
			return PassThroughEvent{Name: "wa-group-joined", Data: data}
		case len(v.Leave) > 0:
			data["participants"] = jidStrings(v.Leave)
			return PassThroughEvent{Name: "wa-group-left", Data: data}
		default:
			return PassThroughEvent{Name: "wa-group-update", Data: data}
		}
	case *events.PushName:
		if id := m.cli.Store.ID; id != nil && v.JID.User == id.User {
			return ContactChangedEvent{}
		}
	}
	return nil
}

func textContent(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Conversation != nil {
		return msg.GetConversation()
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func jidStrings(jids []types.JID) []string {
	out := make([]string, 0, len(jids))
	for _, j := range jids {
		out = append(out, j.String())
	}
	return out
}
