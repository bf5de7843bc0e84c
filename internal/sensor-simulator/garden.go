package sensor_simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrAnalogInjected is returned by soil and light reads while an analog fault is injected.
var ErrAnalogInjected = errors.New("simulated analog input fault")

// Options configures a simulated Garden.
type Options struct {
	InitialMoisture float64       // [0..1]
	DecayPerMin     float64       // moisture lost per minute with the pump off
	GainPerMin      float64       // moisture gained per minute with the pump on
	DayLength       time.Duration // full light cycle, default 24h
	Now             func() time.Time
}

// Garden simulates one bed: a soil probe that dries over time and wets while the pump
// runs, a light sensor following a day/night cycle and a climate sensor tracking the sun.
// Faults can be injected for testing.
type Garden struct {
	mu        sync.Mutex
	gen       *DataGenerator
	now       func() time.Time
	start     time.Time
	dayLength time.Duration
	pumpOn    bool

	climateFault bool
	analogFault  bool
}

func NewGarden(o Options) *Garden {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.DayLength <= 0 {
		o.DayLength = 24 * time.Hour
	}
	if o.InitialMoisture <= 0 {
		o.InitialMoisture = defaultSeed
	}
	start := o.Now()
	gen := NewDataGenerator(o.DecayPerMin, o.GainPerMin)
	gen.Seed(o.InitialMoisture, start)
	return &Garden{gen: gen, now: o.Now, start: start, dayLength: o.DayLength}
}

// sun is the height of the sun in [-1..1]; the cycle starts at sunrise.
func (g *Garden) sun() float64 {
	elapsed := g.now().Sub(g.start)
	phase := float64(elapsed%g.dayLength) / float64(g.dayLength)
	return math.Sin(2 * math.Pi * phase)
}

func (g *Garden) ReadTemperatureHumidity(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.climateFault {
		return math.NaN(), math.NaN(), nil
	}
	s := math.Max(g.sun(), 0)
	return 18 + 12*s, 75 - 30*s, nil
}

func (g *Garden) ReadSoilMoisture(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.analogFault {
		return 0, ErrAnalogInjected
	}
	return SoilRaw(g.gen.Next(g.now(), g.pumpOn)), nil
}

func (g *Garden) ReadLightLevel(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.analogFault {
		return 0, ErrAnalogInjected
	}
	return 200 + int(math.Round(3800*math.Max(g.sun(), 0))), nil
}

// SetPump drives the simulated relay. Moisture is settled up to now before the switch.
func (g *Garden) SetPump(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen.Next(g.now(), g.pumpOn)
	if g.pumpOn != on {
		log.Debug().Bool("on", on).Msg("simulated pump switched")
	}
	g.pumpOn = on
	return nil
}

func (g *Garden) PumpOn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pumpOn
}

// InjectClimateFault makes the climate sensor return NaN until cleared.
func (g *Garden) InjectClimateFault(on bool) {
	g.mu.Lock()
	g.climateFault = on
	g.mu.Unlock()
}

// InjectAnalogFault makes soil and light reads fail until cleared.
func (g *Garden) InjectAnalogFault(on bool) {
	g.mu.Lock()
	g.analogFault = on
	g.mu.Unlock()
}

// Close switches the pump off.
func (g *Garden) Close() error {
	return g.SetPump(context.Background(), false)
}
