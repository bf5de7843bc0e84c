package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/hardware"
	"github.com/LeonardoBeccarini/gardenbot/internal/remote"
	sensor_simulator "github.com/LeonardoBeccarini/gardenbot/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/gardenbot/internal/services/event"
	controller "github.com/LeonardoBeccarini/gardenbot/internal/services/irrigation-controller"
	"github.com/LeonardoBeccarini/gardenbot/internal/services/persistence"
	"github.com/LeonardoBeccarini/gardenbot/pkg/rabbitmq"
)

type device interface {
	controller.SensorGateway
	controller.Actuator
	io.Closer
}

func setupLogging(format, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "gardenbot").Logger()
}

func openDevice(cfg Config) (device, error) {
	if cfg.Hardware == hardwareRaspi {
		pi, err := hardware.Open(cfg.Pi)
		if err != nil {
			return nil, err
		}
		return pi, nil
	}
	return sensor_simulator.NewGarden(sensor_simulator.Options{DayLength: cfg.SimDayLength}), nil
}

func main() {
	cfg := loadConfig()
	setupLogging(cfg.LogFormat, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	s := cfg.Settings

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===================== Hardware =====================
	dev, err := openDevice(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("hardware", cfg.Hardware).Msg("device init failed")
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warn().Err(err).Msg("device close")
		}
	}()

	// ===================== MQTT =====================
	var mq mqtt.Client
	if cfg.UsesMQTT() {
		mq, err = rabbitmq.NewRabbitMQConn(&cfg.Rabbit, ctx)
		if err != nil {
			log.Fatal().Err(err).Str("host", cfg.Rabbit.Host).Msg("MQTT connect failed")
		}
		defer rabbitmq.CloseRabbitMQConn(mq)
	}

	// ===================== Remote channel =====================
	var rc controller.RemoteChannel
	switch cfg.RemoteTransport {
	case transportMQTT:
		mc := remote.DefaultMQTTConfig(s.BedID)
		if cfg.CommandTopic != "" {
			mc.CommandTopic = cfg.CommandTopic
		}
		if cfg.NotifyTopic != "" {
			mc.NotifyTopic = cfg.NotifyTopic
		}
		ch := remote.NewMQTTChannel(mq, mc)
		if err := ch.Start(); err != nil {
			log.Fatal().Err(err).Str("topic", mc.CommandTopic).Msg("command subscribe failed")
		}
		rc = ch
	default:
		tg := remote.NewTelegramChannel(remote.DefaultTelegramConfig(cfg.TelegramToken))
		connectCtx, cancel := context.WithTimeout(ctx, s.ConnectTimeout)
		if err := tg.Reconnect(connectCtx); err != nil {
			// the loop's link keeps retrying
			log.Warn().Err(err).Msg("telegram not reachable at startup")
		}
		cancel()
		go tg.Run(ctx)
		rc = tg
	}

	// ===================== Events & history =====================
	var writer *event.Writer
	var history *persistence.Service
	if cfg.InfluxURL != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		writer = event.NewWriter(influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket))
		history = persistence.NewService(s.BedID, cfg.HistorySize, influx.QueryAPI(cfg.InfluxOrg), cfg.InfluxBucket)
	} else {
		history = persistence.NewService(s.BedID, cfg.HistorySize, nil, "")
	}
	var factory event.PublisherFactory
	if cfg.MQTTEvents {
		factory = func(topic string) rabbitmq.IPublisher {
			return rabbitmq.NewPublisher(mq, topic, s.SendTimeout)
		}
	}
	sink := event.NewSink(s.BedID, event.DefaultTopics(), factory, writer).WithRecorder(history)
	defer sink.Close()

	// ===================== Controller =====================
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := controller.NewMetrics(reg)

	outbox := controller.NewOutbox(rc, s.AuthorizedSender, s.SendTimeout, cfg.Breaker, metrics)
	ctrl := controller.NewController(s, dev, dev, outbox, sink, metrics)
	sched := controller.NewScheduler(controller.Loop{
		Settings:   s,
		Clock:      clock.NewSystem(),
		Controller: ctrl,
		Dispatcher: controller.NewDispatcher(ctrl, outbox, s.AuthorizedSender, metrics),
		Remote:     rc,
		Outbox:     outbox,
		Link:       controller.NewLink(rc, controller.NewReconnectBackOff(), s.ConnectTimeout, metrics),
		Board:      controller.NewStatusBoard(),
		Metrics:    metrics,
	})

	// ===================== HTTP =====================
	var writes controller.WriteHealth
	if writer != nil {
		writes = writer
	}
	router := controller.NewRouter(sched.Board(), reg, writes)
	router.Handle("/history/readings", persistence.NewHTTPHandler(history)).Methods(http.MethodGet)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// ===================== gRPC health =====================
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("gRPC listen failed")
	}
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC listening")
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve")
		}
	}()
	go controller.SyncHealth(ctx, sched.Board(), hs, time.Second)

	// ===================== Loop =====================
	log.Info().
		Str("bed", s.BedID).
		Str("hardware", cfg.Hardware).
		Str("remote", cfg.RemoteTransport).
		Msg("gardenbot starting")
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("loop stopped")
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Shutdown()
	grpcSrv.GracefulStop()
	_ = httpSrv.Shutdown(shCtx)
	log.Info().Msg("gardenbot: shutdown complete")
}
