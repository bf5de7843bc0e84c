package rabbitmq

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// ErrPublishTimeout is returned when the broker does not ack a publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// IPublisher publishes payloads on a fixed topic
type IPublisher interface {
	PublishMessage(message interface{}) error
	PublishMessageQos(qos byte, retained bool, message interface{}) error
	Close()
}

// Publisher holds the client and the topic it publishes to
type Publisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewPublisher creates a Publisher using the shared MQTT client. Publishes wait at most
// timeout for the broker acknowledgement.
func NewPublisher(client mqtt.Client, topic string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		timeout: timeout,
	}
}

// Topic returns the topic this publisher writes to.
func (p *Publisher) Topic() string { return p.topic }

// PublishMessage publishes at QoS 0.
func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishMessageQos(0, false, message)
}

// PublishMessageQos accepts string or []byte payloads.
func (p *Publisher) PublishMessageQos(qos byte, retained bool, message interface{}) error {
	var payload []byte
	switch m := message.(type) {
	case string:
		payload = []byte(m)
	case []byte:
		payload = m
	default:
		return fmt.Errorf("invalid message format %T, expected string or []byte", message)
	}

	token := p.client.Publish(p.topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Debug().Str("topic", p.topic).Int("bytes", len(payload)).Uint8("qos", qos).Msg("message published")
	return nil
}

// Close disconnects the shared client
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Info().Msg("MQTT client disconnected")
	}
}
