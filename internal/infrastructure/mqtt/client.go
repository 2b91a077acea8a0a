package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
)

// MessageHandler processes a message received on a subscribed topic.
type MessageHandler func(topic string, payload []byte) error

// Logger is the logging surface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription records a subscribe call so it can be restored on reconnect.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client wraps a paho client with subscription tracking and status messages.
//
// Thread-safe: all methods may be called from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subsMu        sync.RWMutex
	subscriptions map[string]subscription

	stateMu      sync.RWMutex
	connected    bool
	onConnect    func()
	onDisconnect func(error)

	logger Logger
}

// Connect creates a client and connects to the configured broker.
//
// Parameters:
//   - cfg: MQTT section of the bridge configuration
//
// Returns:
//   - *Client: connected client; call Close when done
//   - error: ErrConnectionFailed when the broker is unreachable
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timed out after %s", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}
}

// handleConnect runs on every (re)connect.
func (c *Client) handleConnect() {
	c.stateMu.Lock()
	c.connected = true
	cb := c.onConnect
	c.stateMu.Unlock()

	c.restoreSubscriptions()

	status := Topics{}.BridgeStatus()
	token := c.client.Publish(status, 1, true, statusJSON("online", c.cfg.Broker.ClientID, ""))
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		c.logger.Warn("publishing online status failed", "error", token.Error())
	}

	c.logger.Info("mqtt connected", "broker", c.cfg.Broker.Host, "client_id", c.cfg.Broker.ClientID)
	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.stateMu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.stateMu.Unlock()

	c.logger.Warn("mqtt connection lost", "error", err)
	if cb != nil {
		cb(err)
	}
}

func (c *Client) restoreSubscriptions() {
	c.subsMu.RLock()
	subs := make(map[string]subscription, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		subs[topic] = sub
	}
	c.subsMu.RUnlock()

	for topic, sub := range subs {
		token := c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			c.logger.Error("restoring subscription failed", "topic", topic, "error", token.Error())
		}
	}
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.BridgeStatus(), 1, true, statusJSON("offline", c.cfg.Broker.ClientID, "shutdown"))
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)

	c.stateMu.Lock()
	c.connected = false
	c.stateMu.Unlock()
	return nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected when the connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetOnConnect registers a callback run after every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.stateMu.Lock()
	c.onConnect = fn
	c.stateMu.Unlock()
}

// SetOnDisconnect registers a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(fn func(error)) {
	c.stateMu.Lock()
	c.onDisconnect = fn
	c.stateMu.Unlock()
}

// SetLogger sets the logger. Passing nil restores the no-op logger.
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		c.logger = noopLogger{}
		return
	}
	c.logger = l
}

// wrapHandler adapts a MessageHandler to paho, logging errors and panics
// so a bad message cannot take down the paho router goroutine.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("mqtt handler error", "topic", msg.Topic(), "error", err)
		}
	}
}
