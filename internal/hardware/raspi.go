// Package hardware drives the real bed on a Raspberry Pi: an SHT2x climate sensor on
// I2C, soil and light probes on an MCP3008 ADC over SPI and the pump relay on GPIO.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/raspi"
)

// Config holds pin and channel assignments.
type Config struct {
	PumpPin       string // header pin of the relay, e.g. "32"
	PumpActiveLow bool   // relay boards that close on a low level
	I2CBus        int
	SoilChannel   int // MCP3008 channel of the soil probe
	LightChannel  int // MCP3008 channel of the photoresistor
	// ADCShift left-shifts 10-bit MCP3008 counts so thresholds calibrated on a
	// 12-bit ADC keep working.
	ADCShift uint
}

func DefaultConfig() Config {
	return Config{
		PumpPin:      "32",
		I2CBus:       1,
		SoilChannel:  0,
		LightChannel: 1,
		ADCShift:     2,
	}
}

// Pi is the hardware gateway. It implements the controller's SensorGateway and Actuator.
type Pi struct {
	cfg     Config
	adaptor *raspi.Adaptor
	climate *i2c.SHT2xDriver
	adc     *spi.MCP3008Driver
	pump    *gpio.RelayDriver

	mu sync.Mutex // one bus transaction at a time
}

// Open connects the adaptor and starts every driver. On error everything already
// started is halted.
func Open(cfg Config) (*Pi, error) {
	r := raspi.NewAdaptor()
	p := &Pi{
		cfg:     cfg,
		adaptor: r,
		climate: i2c.NewSHT2xDriver(r, i2c.WithBus(cfg.I2CBus)),
		adc:     spi.NewMCP3008Driver(r),
		pump:    newPumpRelay(r, cfg),
	}

	if err := r.Connect(); err != nil {
		return nil, fmt.Errorf("raspi connect: %w", err)
	}
	if err := p.climate.Start(); err != nil {
		_ = r.Finalize()
		return nil, fmt.Errorf("sht2x start: %w", err)
	}
	if err := p.adc.Start(); err != nil {
		_ = p.climate.Halt()
		_ = r.Finalize()
		return nil, fmt.Errorf("mcp3008 start: %w", err)
	}
	if err := p.pump.Start(); err != nil {
		_ = p.adc.Halt()
		_ = p.climate.Halt()
		_ = r.Finalize()
		return nil, fmt.Errorf("relay start: %w", err)
	}

	log.Info().
		Str("pump_pin", cfg.PumpPin).
		Bool("active_low", cfg.PumpActiveLow).
		Int("soil_ch", cfg.SoilChannel).
		Int("light_ch", cfg.LightChannel).
		Msg("raspberry pi hardware ready")
	return p, nil
}

// newPumpRelay builds the relay driver; active-low boards get an inverted relay.
func newPumpRelay(w gpio.DigitalWriter, cfg Config) *gpio.RelayDriver {
	var opts []interface{}
	if cfg.PumpActiveLow {
		opts = append(opts, gpio.WithRelayInverted())
	}
	return gpio.NewRelayDriver(w, cfg.PumpPin, opts...)
}

func (p *Pi) ReadTemperatureHumidity(ctx context.Context) (float64, float64, error) {
	type reading struct {
		t, h float64
	}
	r, err := bounded(ctx, func() (reading, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		t, err := p.climate.Temperature()
		if err != nil {
			return reading{}, err
		}
		h, err := p.climate.Humidity()
		if err != nil {
			return reading{}, err
		}
		return reading{float64(t), float64(h)}, nil
	})
	return r.t, r.h, err
}

func (p *Pi) ReadSoilMoisture(ctx context.Context) (int, error) {
	return p.readChannel(ctx, p.cfg.SoilChannel)
}

func (p *Pi) ReadLightLevel(ctx context.Context) (int, error) {
	return p.readChannel(ctx, p.cfg.LightChannel)
}

func (p *Pi) readChannel(ctx context.Context, ch int) (int, error) {
	return bounded(ctx, func() (int, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		v, err := p.adc.Read(ch)
		if err != nil {
			return 0, err
		}
		return v << p.cfg.ADCShift, nil
	})
}

func (p *Pi) SetPump(ctx context.Context, on bool) error {
	_, err := bounded(ctx, func() (struct{}, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if on {
			return struct{}{}, p.pump.On()
		}
		return struct{}{}, p.pump.Off()
	})
	return err
}

// Close switches the pump off and releases the adaptor.
func (p *Pi) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(
		p.pump.Off(),
		p.pump.Halt(),
		p.adc.Halt(),
		p.climate.Halt(),
		p.adaptor.Finalize(),
	)
}

// bounded runs fn and gives up when ctx ends first. gobot drivers take no context;
// an abandoned call finishes in the background.
func bounded[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
