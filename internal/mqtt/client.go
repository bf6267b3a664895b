package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	logx "homecontrold/pkg/logx"
)

// State tracks the broker connection lifecycle. Evaluation keeps running
// in every state; only publishing requires StateReady.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is the publish-time failure while the broker link is
	// down. Callers treat the fire as spent; nothing is queued.
	ErrNotConnected = errors.New("mqtt: not connected to broker")
	// ErrPublishTimeout is a bounded-wait expiry on a publish token.
	ErrPublishTimeout = errors.New("mqtt: publish timed out")
)

type Config struct {
	BrokerURL      string
	Username       string
	Password       string
	ClientID       string
	TopicPrefix    string
	PublishTimeout time.Duration
	// RetryMaxInterval caps the exponential reconnect backoff.
	RetryMaxInterval time.Duration
	// InsecureSkipVerify disables TLS certificate checks. Development only.
	InsecureSkipVerify bool
}

// Message is an inbound state/event publication from a device.
type Message struct {
	Topic   string
	Payload []byte
}

// Client owns one broker connection per process. It reconnects on its own
// with capped exponential backoff and resubscribes the device wildcard
// topics after every (re)connect.
type Client struct {
	cfg Config
	log logx.Logger

	cli   paho.Client
	state atomic.Int32

	mu        sync.Mutex
	onState   []func(State)
	onMessage []func(Message)
	started   bool
}

// New validates the configuration. An unparseable broker URL is a fatal
// startup error; an unreachable broker is not.
func New(cfg Config, log logx.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("broker url %q: %w", cfg.BrokerURL, err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return nil, fmt.Errorf("broker url %q: unsupported scheme %q", cfg.BrokerURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("broker url %q: missing host", cfg.BrokerURL)
	}

	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "homecontrold-" + uuid.NewString()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 2 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log}, nil
}

func (c *Client) TopicPrefix() string { return c.cfg.TopicPrefix }

// OnStateChange registers a lifecycle observer. Register before Start.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// OnMessage registers an inbound message handler. Register before Start.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.mu.Unlock()
}

// Start opens the connection and keeps retrying in the background until
// Stop. It never fails because the broker is down.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	opts := paho.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(c.cfg.RetryMaxInterval).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(false)

	if c.cfg.InsecureSkipVerify {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	opts.SetOnConnectHandler(func(cli paho.Client) {
		c.log.Info("connected to broker", logx.String("client_id", c.cfg.ClientID))
		c.subscribe(cli)
		c.setState(StateReady)
	})
	opts.SetConnectionLostHandler(func(cli paho.Client, err error) {
		c.log.Warn("broker connection lost", logx.Err(err))
		c.setState(StateConnecting)
	})
	opts.SetReconnectingHandler(func(cli paho.Client, _ *paho.ClientOptions) {
		c.setState(StateConnecting)
	})

	c.cli = paho.NewClient(opts)
	c.setState(StateConnecting)
	// With SetConnectRetry the token resolves on the first successful
	// handshake; do not block startup on it.
	c.cli.Connect()
	return nil
}

// Stop closes the connection, letting in-flight work drain briefly.
func (c *Client) Stop() {
	if c.cli != nil && c.cli.IsConnectionOpen() {
		c.cli.Disconnect(250)
	}
	c.setState(StateIdle)
}

func (c *Client) State() State { return State(c.state.Load()) }
func (c *Client) Ready() bool  { return c.State() == StateReady }

// Publish sends one message at QoS 1 with a bounded wait. It returns
// ErrNotConnected without queueing when the link is down.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if c.cli == nil || !c.Ready() || !c.cli.IsConnectionOpen() {
		return ErrNotConnected
	}
	tok := c.cli.Publish(topic, 1, false, payload)

	timeout := c.cfg.PublishTimeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	if !tok.WaitTimeout(timeout) {
		return ErrPublishTimeout
	}
	return tok.Error()
}

func (c *Client) subscribe(cli paho.Client) {
	handler := func(_ paho.Client, m paho.Message) {
		c.dispatch(Message{Topic: m.Topic(), Payload: m.Payload()})
	}
	for _, filter := range []string{
		StateWildcard(c.cfg.TopicPrefix),
		EventWildcard(c.cfg.TopicPrefix),
	} {
		if tok := cli.Subscribe(filter, 1, handler); tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
			c.log.Warn("subscribe failed", logx.String("filter", filter), logx.Err(tok.Error()))
		}
	}
}

func (c *Client) dispatch(m Message) {
	c.mu.Lock()
	handlers := append([]func(Message){}, c.onMessage...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(m)
	}
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	c.mu.Lock()
	observers := append([]func(State){}, c.onState...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}
