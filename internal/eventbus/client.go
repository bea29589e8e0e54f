package eventbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/logging"
	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

var ErrNoHost = errors.New("eventbus: no broker host configured")

type Options struct {
	Host         string
	Username     string
	Password     string
	ClientID     string
	TopicRoot    string
	SummaryDelay time.Duration
}

// Client subscribes to every topic under the configured root and feeds each
// message to a Router.
type Client struct {
	opts   Options
	router *Router
	store  *state.Store
	log    *logrus.Entry

	mu      sync.Mutex
	client  mqtt.Client
	summary *time.Timer
}

func NewClient(opts Options, router *Router, store *state.Store, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.TopicRoot == "" {
		opts.TopicRoot = "frigate"
	}
	if opts.ClientID == "" {
		opts.ClientID = "frigate-wa-bridge"
	}
	if opts.SummaryDelay <= 0 {
		opts.SummaryDelay = 5 * time.Second
	}
	return &Client{opts: opts, router: router, store: store, log: log}
}

// BrokerURL normalizes a bare host or host:port to a tcp:// URL.
func BrokerURL(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		return host
	}
	if !strings.Contains(host, ":") {
		host += ":1883"
	}
	return "tcp://" + host
}

func (c *Client) Topic() string {
	return c.opts.TopicRoot + "/#"
}

// Start begins connecting in the background. Connection loss is reported and
// retried by the underlying client.
func (c *Client) Start() error {
	broker := BrokerURL(c.opts.Host)
	if broker == "" {
		return ErrNoHost
	}

	mqtt.ERROR = logging.MQTT{Entry: c.log, Level: logrus.ErrorLevel}
	mqtt.CRITICAL = logging.MQTT{Entry: c.log, Level: logrus.ErrorLevel}
	mqtt.WARN = logging.MQTT{Entry: c.log, Level: logrus.WarnLevel}
	mqtt.DEBUG = logging.MQTT{Entry: c.log, Level: logrus.TraceLevel}

	o := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if c.opts.Username != "" {
		o.SetUsername(c.opts.Username)
		o.SetPassword(c.opts.Password)
	}

	client := mqtt.NewClient(o)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.log.WithField("broker", broker).Info("connecting to event bus")
	token := client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.WithError(err).Error("event bus connect failed")
		}
	}()
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("connected to event bus")
	c.store.Emit(model.EventMQTTStatus, model.StatusPayload{Connected: true})

	topic := c.Topic()
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		c.router.Handle(msg.Topic(), msg.Payload())
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.WithError(err).WithField("topic", topic).Error("subscribe failed")
			return
		}
		c.log.WithField("topic", topic).Info("subscribed")
	}()

	c.mu.Lock()
	if c.summary != nil {
		c.summary.Stop()
	}
	c.summary = time.AfterFunc(c.opts.SummaryDelay, c.logSummary)
	c.mu.Unlock()
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.WithError(err).Warn("event bus connection lost")
	c.store.Emit(model.EventMQTTStatus, model.StatusPayload{Connected: false})
}

func (c *Client) logSummary() {
	cameras := c.store.Cameras()
	if len(cameras) == 0 {
		c.log.Warn("no cameras discovered yet")
		return
	}
	c.log.WithField("cameras", strings.Join(cameras, ", ")).Info(fmt.Sprintf("discovered %d camera(s)", len(cameras)))
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

func (c *Client) Stop() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	if c.summary != nil {
		c.summary.Stop()
		c.summary = nil
	}
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		c.log.Info("event bus disconnected")
	}
}
