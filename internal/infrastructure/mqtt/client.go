package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"

	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/config"
)

// Client is the bridge's broker connection.
//
// On top of paho it keeps a retained online/offline status for the bridge,
// replays subscriptions after a reconnect and recovers from panicking
// message handlers. All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	// mu guards subscriptions and hooks.
	mu            sync.RWMutex
	subscriptions map[string]subscription
	hooks         hooks
}

type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. paho calls it on its own goroutine,
// so it must not block for long. A returned error is logged; the message
// is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg and waits until the session is
// up, the connect timeout passes or ctx is cancelled.
//
// A retained "offline" will is registered on the bridge's status topic and
// "online" is published from the connect handler, so the status is
// refreshed after every reconnect.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.logger(); l != nil {
			l.Info("MQTT reconnecting", "broker", brokerURL(cfg))
		}
	})

	c.client = pahomqtt.NewClient(opts)
	if err := waitConnected(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, err
	}

	// handleConnect runs on a paho goroutine and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

func waitConnected(ctx context.Context, token pahomqtt.Token) error {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
}

// await blocks on a topic operation's token and tags a failure with the
// operation's sentinel and topic.
func await(token pahomqtt.Token, failed error, topic string) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return &TopicError{Topic: topic, Err: fmt.Errorf("%w: no broker ack after %v", failed, defaultPublishTimeout)}
	}
	if err := token.Error(); err != nil {
		return &TopicError{Topic: topic, Err: fmt.Errorf("%w: %w", failed, err)}
	}
	return nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.mu.RLock()
	for topic, sub := range c.subscriptions {
		// A failed replay shows up as the next connection loss.
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	onConnect := c.hooks.onConnect
	c.mu.RUnlock()

	c.publishStatus(statusOnline, "")
	if onConnect != nil {
		onConnect()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	h := c.hooks
	c.mu.RUnlock()

	if h.logger != nil {
		h.logger.Warn("MQTT connection lost", "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	id := c.cfg.Broker.ClientID
	return c.client.Publish(Topics{}.SystemStatus(id), c.qos(), true, buildStatusPayload(id, status, reason))
}

// Close publishes a graceful "offline" status, which subscribers can tell
// apart from the will, and disconnects. Close on a never-connected client
// is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(statusOffline, reasonGraceful).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker session is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers a callback run after the first connect and every
// reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.hooks.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.hooks.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for reconnects and handler failures. Without
// one, handler errors are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.hooks.logger = logger
	c.mu.Unlock()
}

func (c *Client) logger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs one handler, logging a returned error and recovering a panic.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			if l := c.logger(); l != nil {
				l.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()

	if err := handler(topic, payload); err != nil {
		if l := c.logger(); l != nil {
			l.Warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}
