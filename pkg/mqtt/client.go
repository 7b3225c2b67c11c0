package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// publishTimeout bounds how long a publish waits for the broker acknowledgement
const publishTimeout = 5 * time.Second

// MessageHandler processes one inbound message
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client wraps a paho client. Subscriptions are replayed on every (re)connect.
type Client struct {
	client   paho.Client
	settings config.MQTTSettings

	mu            sync.Mutex
	subscriptions map[string]MessageHandler
	ctx           context.Context
}

// NewClient creates a client with a last will on the report topic
func NewClient(settings config.MQTTSettings) *Client {
	c := &Client{
		settings:      settings,
		subscriptions: make(map[string]MessageHandler),
		ctx:           context.Background(),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", settings.Broker, settings.Port))
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(settings.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)

	// The broker reports the bridge as failed if the connection drops uncleanly
	will, _ := json.Marshal(newHealthReport(true, actionRestart, "bridge connection lost"))
	opts.SetWill(settings.Topics.Report, string(will), settings.QoS, false)

	opts.SetOnConnectHandler(func(client paho.Client) {
		logger.LogInfo("✅ Connected to MQTT broker %s:%d", settings.Broker, settings.Port)
		c.resubscribe(client)
	})
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		logger.LogError("MQTT connection lost: %v", err)
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect connects to the broker with infinite retry
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	retryDelay := c.settings.RetryDelay
	if retryDelay == 0 {
		retryDelay = 5000 * time.Millisecond // Default 5 seconds
	}

	attempt := 1
	for {
		logger.LogDebug("🔄 Attempting to connect to MQTT broker (attempt %d)...", attempt)

		token := c.client.Connect()
		if token.Wait() && token.Error() == nil {
			logger.LogInfo("✅ MQTT client connected after %d attempts", attempt)
			return nil
		}

		logger.LogError("❌ MQTT connection failed (attempt %d): %v", attempt, token.Error())
		logger.LogInfo("⏳ Retrying in %.0f seconds...", retryDelay.Seconds())

		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connection cancelled: %w", ctx.Err())
		case <-time.After(retryDelay):
			attempt++
		}
	}
}

// Disconnect disconnects from the broker
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// IsConnected reports the broker connection state
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish sends payload and waits for the broker acknowledgement or ctx
func (c *Client) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, c.settings.QoS, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out after %v", topic, publishTimeout)
	}
}

// Subscribe registers handler for topic. It is (re)subscribed on every connect.
func (c *Client) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	c.subscriptions[topic] = handler
	c.mu.Unlock()

	if c.client.IsConnected() {
		c.subscribe(c.client, topic, handler)
	}
}

func (c *Client) resubscribe(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]MessageHandler, len(c.subscriptions))
	for t, h := range c.subscriptions {
		subs[t] = h
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		c.subscribe(client, topic, handler)
	}
}

func (c *Client) subscribe(client paho.Client, topic string, handler MessageHandler) {
	callback := func(_ paho.Client, msg paho.Message) {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		handler(ctx, msg.Topic(), msg.Payload())
	}
	if token := client.Subscribe(topic, c.settings.QoS, callback); token.Wait() && token.Error() != nil {
		logger.LogError("❌ Error subscribing to %s: %v", topic, token.Error())
		return
	}
	logger.LogInfo("📡 Subscribed to: %s", topic)
}
