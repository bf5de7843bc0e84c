package rabbitmq

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// IConsumer delivers messages of one subscription to a handler
type IConsumer interface {
	Subscribe() error
	ConsumeMessage(ctx context.Context)
	SetHandler(handler func(topic string, message mqtt.Message) error)
}

// Consumer holds the client, topic and QoS of one subscription
type Consumer struct {
	client  mqtt.Client
	handler func(topic string, message mqtt.Message) error
	topic   string
	qos     byte
	timeout time.Duration
}

// NewConsumer creates a Consumer using the shared MQTT client
func NewConsumer(client mqtt.Client, topic string, qos byte, handler func(topic string, message mqtt.Message) error) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		qos:     qos,
		handler: handler,
		timeout: 5 * time.Second,
	}
}

func (c *Consumer) SetHandler(handler func(topic string, message mqtt.Message) error) {
	c.handler = handler
}

// Subscribe registers the subscription without blocking beyond the ack timeout. It is
// safe to call again after a reconnect.
func (c *Consumer) Subscribe() error {
	token := c.client.Subscribe(c.topic, c.qos, c.deliver)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s: timed out", c.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	log.Info().Str("topic", c.topic).Uint8("qos", c.qos).Msg("subscribed")
	return nil
}

func (c *Consumer) deliver(_ mqtt.Client, message mqtt.Message) {
	if c.handler == nil {
		log.Warn().Str("topic", c.topic).Msg("no handler set")
		return
	}
	if err := c.handler(c.topic, message); err != nil {
		log.Error().Err(err).Str("topic", message.Topic()).Msg("error handling message")
	}
}

// ConsumeMessage subscribes and blocks until ctx is cancelled, then unsubscribes.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	if err := c.Subscribe(); err != nil {
		log.Error().Err(err).Msg("consumer not started")
		return
	}

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).WaitTimeout(c.timeout)
}
