package irrigation_controller

import "github.com/LeonardoBeccarini/gardenbot/internal/model/entities"

// Decision is the outcome of one automatic check.
type Decision int

const (
	DecisionNoWater Decision = iota
	DecisionWater
	// DecisionFault means the policy was not evaluated because a sensor failed.
	DecisionFault
	// DecisionSkipped means a session was already running.
	DecisionSkipped
)

func (d Decision) String() string {
	switch d {
	case DecisionNoWater:
		return "no-water"
	case DecisionWater:
		return "water"
	case DecisionFault:
		return "fault"
	case DecisionSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ShouldAutoWater waters dry soil at night unless it is too hot.
func ShouldAutoWater(s entities.SensorSnapshot, th entities.Thresholds) bool {
	return s.IsSoilDry(th) && s.IsNight(th) && !s.IsTooHot(th)
}

// Evaluate applies the policy fail-closed: any sensor fault yields DecisionFault
// whatever the other readings say.
func Evaluate(s entities.SensorSnapshot, th entities.Thresholds) Decision {
	if !s.Valid() {
		return DecisionFault
	}
	if ShouldAutoWater(s, th) {
		return DecisionWater
	}
	return DecisionNoWater
}
