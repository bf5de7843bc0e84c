package sensor_simulator

import (
	"math"
	"sync"
	"time"
)

// ====== Tunables ======
const (
	// defaultGainPerMin: +3% volumetric water per minute while the pump runs.
	defaultGainPerMin = 0.03

	// defaultDecayPerMin: -0.1% per minute while the pump is off.
	defaultDecayPerMin = 0.001

	// defaultSeed is the starting moisture when none is configured.
	defaultSeed = 0.30

	// adcMax is the full scale of the 12-bit soil probe.
	adcMax = 4095
)

// DataGenerator keeps the soil moisture of the bed and advances it over time.
type DataGenerator struct {
	mu          sync.Mutex
	seeded      bool
	last        time.Time
	moisture    float64 // [0..1]
	decayPerMin float64
	gainPerMin  float64
}

// NewDataGenerator creates a generator with the given drying and wetting rates per minute.
// Non-positive rates fall back to the defaults.
func NewDataGenerator(decayPerMin, gainPerMin float64) *DataGenerator {
	if decayPerMin <= 0 {
		decayPerMin = defaultDecayPerMin
	}
	if gainPerMin <= 0 {
		gainPerMin = defaultGainPerMin
	}
	return &DataGenerator{decayPerMin: decayPerMin, gainPerMin: gainPerMin}
}

// Seed sets the moisture at t. Values outside [0..1] are clamped.
func (g *DataGenerator) Seed(moisture float64, t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.moisture = clamp01(moisture)
	g.last = t
	g.seeded = true
}

// Next advances the model to now, wetting while watering and drying otherwise, and
// returns the moisture in [0..1].
func (g *DataGenerator) Next(now time.Time, watering bool) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.seeded {
		g.moisture = defaultSeed
		g.last = now
		g.seeded = true
	}

	dtMin := now.Sub(g.last).Minutes()
	if dtMin < 0 {
		dtMin = 0
	}
	if watering {
		g.moisture = clamp01(g.moisture + g.gainPerMin*dtMin)
	} else {
		g.moisture = clamp01(g.moisture - g.decayPerMin*dtMin)
	}
	g.last = now
	return g.moisture
}

// SoilRaw maps moisture to probe counts: a dry probe reads high.
func SoilRaw(moisture float64) int {
	return int(math.Round((1 - clamp01(moisture)) * adcMax))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
