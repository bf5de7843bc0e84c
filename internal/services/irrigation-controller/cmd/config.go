package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/hardware"
	controller "github.com/LeonardoBeccarini/gardenbot/internal/services/irrigation-controller"
	"github.com/LeonardoBeccarini/gardenbot/pkg/rabbitmq"
)

const (
	hardwareSim   = "sim"
	hardwareRaspi = "raspi"

	transportTelegram = "telegram"
	transportMQTT     = "mqtt"
)

type Config struct {
	Settings controller.Settings
	Breaker  controller.BreakerSettings

	LogFormat string
	LogLevel  string

	Hardware     string
	Pi           hardware.Config
	SimDayLength time.Duration

	RemoteTransport string
	TelegramToken   string
	Rabbit          rabbitmq.RabbitMQConfig
	CommandTopic    string
	NotifyTopic     string
	MQTTEvents      bool

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	HistorySize  int

	HTTPAddr string
	GRPCAddr string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getenvMs reads a millisecond count that must fit the 32-bit loop clock. Negative or
// oversized values keep the default.
func getenvMs(key string, def clock.Millis) clock.Millis {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return clock.Millis(n)
		}
	}
	return def
}

func getenvDurationMs(key string, def time.Duration) time.Duration {
	return time.Duration(getenvInt(key, int(def/time.Millisecond))) * time.Millisecond
}

func loadConfig() Config {
	s := controller.DefaultSettings()
	s.BedID = getenv("GARDEN_BED_ID", s.BedID)
	s.AuthorizedSender = getenv("AUTHORIZED_CHAT_ID", "")
	s.Thresholds.SoilDry = getenvInt("SOIL_DRY_THRESHOLD", s.Thresholds.SoilDry)
	s.Thresholds.MaxTemperatureC = getenvFloat("MAX_TEMPERATURE_C", s.Thresholds.MaxTemperatureC)
	s.Thresholds.Light = getenvInt("LIGHT_THRESHOLD", s.Thresholds.Light)
	s.ManualDuration = getenvMs("MANUAL_WATERING_DURATION_MS", s.ManualDuration)
	s.AutomaticDuration = getenvMs("AUTOMATIC_WATERING_DURATION_MS", s.AutomaticDuration)
	s.SensorCheckInterval = getenvMs("SENSOR_CHECK_INTERVAL_MS", s.SensorCheckInterval)
	s.ReportInterval = getenvMs("REPORT_INTERVAL_MS", s.ReportInterval)
	s.MaxCommandsPerIteration = getenvInt("MAX_COMMANDS_PER_ITERATION", s.MaxCommandsPerIteration)
	s.LoopInterval = getenvDurationMs("LOOP_INTERVAL_MS", s.LoopInterval)
	s.SensorTimeout = getenvDurationMs("SENSOR_TIMEOUT_MS", s.SensorTimeout)
	s.SendTimeout = getenvDurationMs("SEND_TIMEOUT_MS", s.SendTimeout)
	s.ConnectTimeout = getenvDurationMs("CONNECT_TIMEOUT_MS", s.ConnectTimeout)

	b := controller.DefaultBreakerSettings()
	b.Failures = uint32(getenvInt("BREAKER_FAILURES", int(b.Failures)))
	b.Open = getenvDurationMs("BREAKER_OPEN_MS", b.Open)

	pi := hardware.DefaultConfig()
	pi.PumpPin = getenv("PUMP_PIN", pi.PumpPin)
	pi.PumpActiveLow = getenvBool("PUMP_ACTIVE_LOW", pi.PumpActiveLow)
	pi.I2CBus = getenvInt("I2C_BUS", pi.I2CBus)
	pi.SoilChannel = getenvInt("SOIL_ADC_CHANNEL", pi.SoilChannel)
	pi.LightChannel = getenvInt("LIGHT_ADC_CHANNEL", pi.LightChannel)

	return Config{
		Settings: s,
		Breaker:  b,

		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "json")),
		LogLevel:  getenv("LOG_LEVEL", "info"),

		Hardware:     strings.ToLower(getenv("HARDWARE", hardwareSim)),
		Pi:           pi,
		SimDayLength: time.Duration(getenvInt("SIM_DAY_LENGTH_MIN", 24*60)) * time.Minute,

		RemoteTransport: strings.ToLower(getenv("REMOTE_TRANSPORT", transportTelegram)),
		TelegramToken:   getenv("TELEGRAM_BOT_TOKEN", ""),
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:           getenv("RABBITMQ_HOST", "localhost"),
			Port:           getenvInt("RABBITMQ_PORT", 1883),
			User:           getenv("RABBITMQ_USER", "guest"),
			Password:       getenv("RABBITMQ_PASSWORD", "guest"),
			ClientID:       fmt.Sprintf("gardenbot-%s-%s", s.BedID, getenv("HOSTNAME", "local")),
			ConnectTimeout: s.ConnectTimeout,
			MaxRetries:     getenvInt("RABBITMQ_MAX_RETRIES", 5),
		},
		CommandTopic: getenv("COMMAND_TOPIC", ""),
		NotifyTopic:  getenv("NOTIFY_TOPIC", ""),
		MQTTEvents:   getenvBool("MQTT_EVENTS", false),

		InfluxURL:    getenv("INFLUX_URL", ""),
		InfluxToken:  getenv("INFLUX_TOKEN", ""),
		InfluxOrg:    getenv("INFLUX_ORG", "org"),
		InfluxBucket: getenv("INFLUX_BUCKET", "garden"),
		HistorySize:  getenvInt("HISTORY_CACHE_SIZE", 512),

		HTTPAddr: ":" + getenv("HTTP_PORT", "8080"),
		GRPCAddr: ":" + getenv("GRPC_PORT", "50051"),
	}
}

// UsesMQTT reports whether a broker connection is needed.
func (c Config) UsesMQTT() bool {
	return c.RemoteTransport == transportMQTT || c.MQTTEvents
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Hardware {
	case hardwareSim, hardwareRaspi:
	default:
		errs = append(errs, fmt.Errorf("HARDWARE must be %q or %q, got %q", hardwareSim, hardwareRaspi, c.Hardware))
	}
	switch c.RemoteTransport {
	case transportTelegram:
		if c.TelegramToken == "" {
			errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required for the telegram transport"))
		}
	case transportMQTT:
	default:
		errs = append(errs, fmt.Errorf("REMOTE_TRANSPORT must be %q or %q, got %q", transportTelegram, transportMQTT, c.RemoteTransport))
	}
	if c.Breaker.Failures == 0 {
		errs = append(errs, errors.New("BREAKER_FAILURES must be positive"))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, errors.New("HISTORY_CACHE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
