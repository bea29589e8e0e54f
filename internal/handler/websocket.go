package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/auth"
	"frigate-wa-bridge/internal/camera"
	"frigate-wa-bridge/internal/hub"
	"frigate-wa-bridge/internal/metrics"
	"frigate-wa-bridge/internal/middleware"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/session"
	"frigate-wa-bridge/internal/state"
)

const intentTimeout = 2 * time.Minute

type WebSocketHandler struct {
	Hub              *hub.Hub
	Store            *state.Store
	Lifecycle        Lifecycle
	Cameras          *camera.Service
	Metrics          *metrics.Metrics
	TokenConfig      auth.TokenConfig
	WSURL            string
	DefaultSessionID string
	Log              *logrus.Entry

	// Context bounds intent work started from sockets; cancelled on shutdown.
	Context context.Context
}

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type initialStatus struct {
	Connected  bool                  `json:"connected"`
	Account    model.AccountIdentity `json:"account"`
	Subscribed bool                  `json:"subscribed"`
	State      model.ConnectionState `json:"state"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsWriter struct {
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func frame(event string, data any) []byte {
	out, err := json.Marshal(model.Envelope{Event: event, Data: data})
	if err != nil {
		out, _ = json.Marshal(model.Envelope{Event: "error", Data: "Failed to encode message"})
	}
	return out
}

func (h *WebSocketHandler) sessionID(c *gin.Context) (string, bool) {
	sid := c.Query("sessionId")
	if sid == "" {
		return h.DefaultSessionID, true
	}
	return sid, session.ValidID(sid)
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	if h.TokenConfig.Enabled() {
		tok := middleware.TokenFromRequest(c.Request)
		if _, err := auth.VerifyToken(tok, h.TokenConfig); tok == "" || err != nil {
			fail(c, http.StatusUnauthorized, "Invalid authentication token")
			return
		}
	}
	sessionID, valid := h.sessionID(c)
	if !valid {
		fail(c, http.StatusBadRequest, "Invalid sessionId")
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	log := h.Log.WithFields(logrus.Fields{"session": sessionID, "remote": c.ClientIP()})
	conn := hub.NewConnection(sessionID, &wsWriter{conn: ws})
	go conn.WritePump()
	h.greet(conn, sessionID)
	h.Hub.Register(conn)
	h.gauge()
	log.WithField("conn", conn.ID).Info("dashboard connected")
	defer func() {
		h.Hub.Unregister(conn)
		conn.Close()
		h.gauge()
		log.WithField("conn", conn.ID).Info("dashboard disconnected")
	}()

	ws.SetReadLimit(1024 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-conn.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(conn, sessionID, data, log)
	}
}

func (h *WebSocketHandler) greet(conn *hub.Connection, sessionID string) {
	if h.Lifecycle.HasSessionData(sessionID) {
		conn.Send(frame("session-restored", gin.H{}))
	}
	conn.Send(frame("config", gin.H{"wsUrl": h.WSURL}))
	snap := h.Store.Snapshot()
	conn.Send(frame("initial-status", initialStatus{
		Connected:  snap.Connected,
		Account:    snap.Account,
		Subscribed: snap.IsSubscribed,
		State:      snap.State,
	}))
	conn.Send(frame("server-connected", "Welcome to the WebSocket server!"))
}

func (h *WebSocketHandler) gauge() {
	if h.Metrics != nil {
		h.Metrics.Subscribers.Set(float64(h.Hub.Len()))
	}
}

// valid requires an event name and an object data field.
func (m clientMessage) valid() bool {
	if m.Event == "" || len(m.Data) == 0 {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(m.Data, &obj) == nil && obj != nil
}

func (h *WebSocketHandler) dispatch(conn *hub.Connection, sessionID string, data []byte, log *logrus.Entry) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.WithError(err).Warn("unreadable message")
		conn.Send(frame("error", "Failed to process message"))
		return
	}
	if msg.Event == model.IntentPing {
		conn.Send(frame("pong", gin.H{}))
		return
	}
	if !msg.valid() {
		log.WithField("event", msg.Event).Warn("invalid payload received")
		conn.Send(frame("error", "Invalid payload"))
		return
	}
	log.WithField("event", msg.Event).Debug("intent received")

	switch msg.Event {
	case model.IntentSubscribe:
		h.async(func(ctx context.Context) {
			if err := h.Lifecycle.Initialize(ctx, sessionID); err != nil {
				log.WithError(err).Error("initialize failed")
				h.Store.SetIsSubscribing(false)
				conn.Send(frame(model.EventError, model.ErrorPayload{Message: "Failed to initialize WhatsApp", Error: err.Error()}))
				return
			}
			if qr := h.Lifecycle.QR(); qr != "" {
				conn.Send(frame("qr", qr))
			}
		})
	case model.IntentUnsubscribe:
		h.async(func(ctx context.Context) {
			if err := h.Lifecycle.Unlink(ctx); err != nil {
				log.WithError(err).Error("unlink failed")
				conn.Send(frame("error", "Failed to unsubscribe WhatsApp"))
			}
		})
	case model.IntentConnect:
		h.async(func(ctx context.Context) {
			if err := h.Lifecycle.Connect(ctx); err != nil {
				log.WithError(err).Error("connect failed")
				conn.Send(frame("error", "Failed to connect WhatsApp"))
			}
		})
	case model.IntentDisconnect:
		h.async(func(ctx context.Context) {
			if err := h.Lifecycle.Disconnect(ctx); err != nil {
				log.WithError(err).Error("disconnect failed")
				conn.Send(frame("error", "Failed to disconnect WhatsApp"))
			}
		})
	case model.IntentAuthorize:
		var body struct {
			Authorize bool `json:"authorize"`
		}
		_ = json.Unmarshal(msg.Data, &body)
		h.async(func(ctx context.Context) {
			if body.Authorize {
				if err := h.Lifecycle.Authorize(ctx, sessionID); err != nil {
					log.WithError(err).Error("authorize failed")
					conn.Send(frame("error", "Failed to authorize WhatsApp"))
				}
				return
			}
			if err := h.Lifecycle.Unauthorize(ctx); err != nil {
				log.WithError(err).Error("unauthorize failed")
				conn.Send(frame("error", "Failed to unauthorize WhatsApp"))
			}
		})
	case model.IntentForwarding:
		var body model.ForwardingPayload
		_ = json.Unmarshal(msg.Data, &body)
		h.Lifecycle.SetForwarding(body.Forwarding)
		conn.Send(frame("wa-forwarding", body))
	case model.IntentAssignCamera:
		var body assignBody
		_ = json.Unmarshal(msg.Data, &body)
		if err := h.Cameras.Assign(body.Camera, body.Group); err != nil {
			log.WithError(err).Error("assign camera failed")
			conn.Send(frame("error", "Failed to assign camera to group: "+err.Error()))
		}
	default:
		log.WithField("event", msg.Event).Warn("unknown event received")
		conn.Send(frame("error", "Unknown event"))
	}
}

func (h *WebSocketHandler) async(fn func(ctx context.Context)) {
	parent := h.Context
	if parent == nil {
		parent = context.Background()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parent, intentTimeout)
		defer cancel()
		fn(ctx)
	}()
}
