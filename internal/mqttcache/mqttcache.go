// Package mqttcache publishes retained messages to an MQTT broker. The broker then holds the last published value
// of each topic, which makes it a durable cache for values that other systems, or the next run, may need.
package mqttcache

import (
	"context"
	"errors"
	"fmt"
	paho "github.com/eclipse/paho.mqtt.golang"
	"log/slog"
	"time"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	queueSize      = 16
)

var (
	ErrTimeout   = errors.New("timeout")
	ErrQueueFull = errors.New("publish queue full")
)

// Client is the part of paho.Client used by Cache.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Cache publishes each payload as a retained, at-least-once message. Publish only queues the message: Run sends them
// to the broker.
type Cache struct {
	client  Client
	timeout time.Duration
	logger  *slog.Logger
	queue   chan queued
}

type queued struct {
	topic   string
	payload []byte
}

// New connects to the broker. If the broker can't be reached in time, New still returns a Cache: the client keeps
// trying to connect in the background and publishes are queued until it does.
func New(broker, clientID string, logger *slog.Logger) *Cache {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { logger.Info("connected to broker", "broker", broker) }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { logger.Warn("connection to broker lost", "err", err) })

	client := paho.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(connectTimeout) {
		logger.Warn("broker not reachable. will keep trying", "broker", broker)
	} else if err := token.Error(); err != nil {
		logger.Warn("failed to connect to broker", "broker", broker, "err", err)
	}
	return NewWithClient(client, logger)
}

func NewWithClient(client Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, timeout: publishTimeout, logger: logger, queue: make(chan queued, queueSize)}
}

// Publish queues payload for topic. It returns ErrQueueFull if Run is not keeping up.
func (c *Cache) Publish(topic string, payload []byte) error {
	select {
	case c.queue <- queued{topic: topic, payload: payload}:
		return nil
	default:
		return fmt.Errorf("publish %s: %w", topic, ErrQueueFull)
	}
}

// Run sends the queued messages to the broker until ctx is canceled.
func (c *Cache) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.queue:
			if err := c.publish(m.topic, m.payload); err != nil {
				c.logger.Warn("failed to publish", "err", err)
			}
		}
	}
}

// publish sends payload to topic and waits until the broker acknowledged it.
func (c *Cache) publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.logger.Debug("published", "topic", topic, "size", len(payload))
	return nil
}

// Close disconnects from the broker.
func (c *Cache) Close() {
	c.client.Disconnect(1000)
}
