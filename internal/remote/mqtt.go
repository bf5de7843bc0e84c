package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
	"github.com/LeonardoBeccarini/gardenbot/pkg/dedup"
	"github.com/LeonardoBeccarini/gardenbot/pkg/rabbitmq"
)

// MQTTConfig configures the chat-over-MQTT transport.
type MQTTConfig struct {
	CommandTopic  string // inbound messages.Command JSON
	NotifyTopic   string // outbound messages.Notification JSON
	InboxSize     int
	Timeout       time.Duration // publish, subscribe and connect bound
	DedupTTL      time.Duration
	DedupCapacity int
}

func DefaultMQTTConfig(bedID string) MQTTConfig {
	return MQTTConfig{
		CommandTopic:  "gardenbot/" + bedID + "/commands",
		NotifyTopic:   "gardenbot/" + bedID + "/notifications",
		InboxSize:     64,
		Timeout:       5 * time.Second,
		DedupTTL:      10 * time.Minute,
		DedupCapacity: 1000,
	}
}

// MQTTChannel carries chat commands and notifications over the broker. Commands
// arrive at QoS 1 on paho's goroutine and wait in a bounded inbox for the loop.
type MQTTChannel struct {
	cfg       MQTTConfig
	client    mqtt.Client
	consumer  *rabbitmq.Consumer
	publisher *rabbitmq.Publisher
	inbox     chan messages.Command
	deduper   *dedup.Deduper
}

func NewMQTTChannel(client mqtt.Client, cfg MQTTConfig) *MQTTChannel {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	c := &MQTTChannel{
		cfg:       cfg,
		client:    client,
		publisher: rabbitmq.NewPublisher(client, cfg.NotifyTopic, cfg.Timeout),
		inbox:     make(chan messages.Command, cfg.InboxSize),
		deduper:   dedup.New(cfg.DedupTTL, cfg.DedupCapacity),
	}
	c.consumer = rabbitmq.NewConsumer(client, cfg.CommandTopic, 1, c.handle)
	return c
}

// Start subscribes to the command topic.
func (c *MQTTChannel) Start() error {
	return c.consumer.Subscribe()
}

func (c *MQTTChannel) handle(_ string, msg mqtt.Message) error {
	var cmd messages.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid command payload: %w", err)
	}

	// QoS 1 may redeliver: dedup on the message id, or on the payload hash when absent
	key := cmd.ID
	if key == "" {
		h := sha256.Sum256(msg.Payload())
		key = hex.EncodeToString(h[:])
	}
	if !c.deduper.ShouldProcess(key) {
		log.Debug().Str("key", key).Msg("duplicate command dropped")
		return nil
	}

	if strings.TrimSpace(cmd.SenderID) == "" {
		return errors.New("command without sender")
	}
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = time.Now().UTC()
	}

	select {
	case c.inbox <- cmd:
	default:
		log.Warn().Str("sender", cmd.SenderID).Msg("command inbox full, dropping")
	}
	return nil
}

func (c *MQTTChannel) PollInboundCommands(_ context.Context, max int) ([]messages.Command, error) {
	return drain(c.inbox, max), nil
}

func (c *MQTTChannel) SendNotification(ctx context.Context, to, text string) error {
	return c.publish(ctx, messages.Notification{To: to, Text: text, Timestamp: time.Now().UTC()})
}

func (c *MQTTChannel) SendMenu(ctx context.Context, to, text string, options []string) error {
	return c.publish(ctx, messages.Notification{To: to, Text: text, Menu: options, Timestamp: time.Now().UTC()})
}

func (c *MQTTChannel) publish(ctx context.Context, n messages.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.publisher.PublishMessageQos(1, false, b)
}

func (c *MQTTChannel) Connected() bool { return c.client.IsConnectionOpen() }

// Reconnect makes one bounded connect attempt and resubscribes. Clean sessions drop
// subscriptions on disconnect.
func (c *MQTTChannel) Reconnect(ctx context.Context) error {
	timeout := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if !c.client.IsConnectionOpen() {
		if err := rabbitmq.Connect(c.client, timeout); err != nil {
			return err
		}
	}
	return c.consumer.Subscribe()
}
