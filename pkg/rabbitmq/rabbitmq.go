package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// ErrConnectTimeout is returned when the broker does not acknowledge a connect in time.
var ErrConnectTimeout = errors.New("mqtt connect timed out")

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	// ConnectTimeout bounds every single connect attempt.
	ConnectTimeout time.Duration
	// MaxRetries is the number of startup attempts before giving up.
	MaxRetries int
	// AutoReconnect leaves reconnection to paho. The controller drives it itself.
	AutoReconnect bool
}

func (c *RabbitMQConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ConnectTimeout
}

func (c *RabbitMQConfig) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.Host, c.Port))
	opts.SetUsername(c.User)
	opts.SetPassword(c.Password)
	opts.SetClientID(c.ClientID)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(c.connectTimeout())
	opts.SetAutoReconnect(c.AutoReconnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("client_id", c.ClientID).Msg("mqtt connection lost")
	})
	return opts
}

// NewRabbitMQConn connects to the broker, retrying with exponential backoff. The client
// is disconnected when ctx is cancelled.
func NewRabbitMQConn(cfg *RabbitMQConfig, ctx context.Context) (mqtt.Client, error) {
	opts := cfg.clientOptions()
	client := mqtt.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	err := backoff.Retry(func() error {
		if err := Connect(client, cfg.connectTimeout()); err != nil {
			log.Warn().Err(err).Str("broker", opts.Servers[0].String()).Msg("failed to connect to MQTT broker")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info().Str("broker", opts.Servers[0].String()).Msg("connected to MQTT broker")

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client)
	}()

	return client, nil
}

// Connect performs a single bounded connect attempt.
func Connect(client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return ErrConnectTimeout
	}
	return token.Error()
}

func CloseRabbitMQConn(client mqtt.Client) {
	if client.IsConnected() {
		client.Disconnect(250)
		log.Info().Msg("MQTT connection closed")
	}
}
