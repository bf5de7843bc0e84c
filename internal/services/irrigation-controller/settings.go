package irrigation_controller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
)

// ===================== Settings =====================

// Settings is the runtime configuration of one bed controller.
type Settings struct {
	BedID            string
	AuthorizedSender string

	Thresholds entities.Thresholds

	ManualDuration      clock.Millis
	AutomaticDuration   clock.Millis
	SensorCheckInterval clock.Millis
	ReportInterval      clock.Millis

	// MaxCommandsPerIteration bounds the inbound drain of a single loop step.
	MaxCommandsPerIteration int
	LoopInterval            time.Duration

	SensorTimeout  time.Duration
	SendTimeout    time.Duration
	ConnectTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		BedID:                   "bed1",
		Thresholds:              entities.DefaultThresholds(),
		ManualDuration:          30_000,
		AutomaticDuration:       60_000,
		SensorCheckInterval:     60_000,
		ReportInterval:          3_600_000,
		MaxCommandsPerIteration: 10,
		LoopInterval:            100 * time.Millisecond,
		SensorTimeout:           2 * time.Second,
		SendTimeout:             5 * time.Second,
		ConnectTimeout:          10 * time.Second,
	}
}

// Duration is the planned length of a session started by src.
func (s Settings) Duration(src entities.Source) clock.Millis {
	if src == entities.SourceAutomatic {
		return s.AutomaticDuration
	}
	return s.ManualDuration
}

// Validate rejects settings the loop cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.AuthorizedSender) == "" {
		errs = append(errs, errors.New("authorized sender is required"))
	}
	for name, v := range map[string]clock.Millis{
		"manual duration":       s.ManualDuration,
		"automatic duration":    s.AutomaticDuration,
		"sensor check interval": s.SensorCheckInterval,
		"report interval":       s.ReportInterval,
	} {
		if v == 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if s.MaxCommandsPerIteration <= 0 {
		errs = append(errs, errors.New("max commands per iteration must be positive"))
	}
	for name, v := range map[string]time.Duration{
		"loop interval":   s.LoopInterval,
		"sensor timeout":  s.SensorTimeout,
		"send timeout":    s.SendTimeout,
		"connect timeout": s.ConnectTimeout,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}
