package irrigation_controller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
)

const msgStartup = "Garden irrigation system started. Initializing..."

// ===================== Scheduler =====================

// Scheduler is the single cooperative loop that owns the Controller. Every Step runs,
// in order: expiry check, sensor cycle, report cycle, link upkeep, bounded command drain.
type Scheduler struct {
	settings   Settings
	clock      clock.Clock
	ctrl       *Controller
	dispatcher *Dispatcher
	remote     RemoteChannel
	outbox     *Outbox
	link       *Link
	board      *StatusBoard
	metrics    *Metrics

	lastSensorCheck clock.Millis
	lastReport      clock.Millis
}

// Loop bundles the collaborators of a Scheduler.
type Loop struct {
	Settings   Settings
	Clock      clock.Clock
	Controller *Controller
	Dispatcher *Dispatcher
	Remote     RemoteChannel
	Outbox     *Outbox
	Link       *Link
	Board      *StatusBoard
	Metrics    *Metrics
}

func NewScheduler(l Loop) *Scheduler {
	if l.Board == nil {
		l.Board = NewStatusBoard()
	}
	if l.Metrics == nil {
		l.Metrics = NewMetrics(nil)
	}
	return &Scheduler{
		settings:   l.Settings,
		clock:      l.Clock,
		ctrl:       l.Controller,
		dispatcher: l.Dispatcher,
		remote:     l.Remote,
		outbox:     l.Outbox,
		link:       l.Link,
		board:      l.Board,
		metrics:    l.Metrics,
	}
}

// Board is where the loop publishes its StatusView after every step.
func (s *Scheduler) Board() *StatusBoard { return s.board }

// Boot forces the pump off, starts both cadence timers and greets the owner.
func (s *Scheduler) Boot(ctx context.Context) {
	now := s.clock.Now()
	if err := s.ctrl.ForceOff(ctx); err != nil {
		log.Error().Err(err).Msg("could not force pump off at boot")
	}
	s.lastSensorCheck = now
	s.lastReport = now
	if err := s.outbox.Notify(ctx, msgStartup); err != nil {
		log.Warn().Err(err).Msg("startup notice not delivered")
		s.link.MarkDown(now)
	}
	s.publish(now)
	log.Info().
		Str("bed_id", s.settings.BedID).
		Uint32("sensor_check_ms", uint32(s.settings.SensorCheckInterval)).
		Uint32("report_ms", uint32(s.settings.ReportInterval)).
		Msg("scheduler started")
}

// Step runs one loop iteration.
func (s *Scheduler) Step(ctx context.Context) {
	start := time.Now()
	defer func() { s.metrics.StepDuration.Observe(time.Since(start).Seconds()) }()

	now := s.clock.Now()

	// 1. duration cutoff first so a slow step below cannot overrun the pump
	s.ctrl.CheckExpiry(ctx, now)

	// 2. the timer resets even when the check is skipped, no catch-up after watering
	if clock.Due(now, s.lastSensorCheck, s.settings.SensorCheckInterval) {
		s.ctrl.RunAutomaticCheck(ctx, now)
		s.lastSensorCheck = now
	}

	// periodic report
	if clock.Due(now, s.lastReport, s.settings.ReportInterval) {
		s.lastReport = now
		s.sendReport(ctx, now)
	}

	// remote link upkeep; an open breaker recovers on its own once its timeout ends
	s.link.Tick(ctx, now)

	// bounded drain, then yield
	s.drain(ctx, now)

	s.publish(now)
}

// Run boots and steps every LoopInterval until ctx is cancelled. An active session is
// stopped on the way out.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Boot(ctx)

	t := time.NewTicker(s.settings.LoopInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-t.C:
			s.Step(ctx)
		}
	}
}

func (s *Scheduler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.SendTimeout+s.settings.SensorTimeout)
	defer cancel()

	now := s.clock.Now()
	if s.ctrl.Active() {
		_ = s.ctrl.Stop(ctx, ReasonShutdown, now)
	}
	s.publish(now)
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) sendReport(ctx context.Context, now clock.Millis) {
	snap := s.ctrl.Capture(ctx, now, TriggerReport)
	text := FormatReport(Periodic, &snap, s.ctrl.View(now))

	if err := s.outbox.Notify(ctx, text); err != nil {
		s.metrics.Reports.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Msg("periodic report failed")
		if !errors.Is(err, ErrBreakerOpen) {
			s.link.MarkDown(now)
		}
		return
	}
	s.metrics.Reports.WithLabelValues("sent").Inc()
	log.Info().Msg("periodic report sent")
}

func (s *Scheduler) drain(ctx context.Context, now clock.Millis) {
	limit := s.settings.MaxCommandsPerIteration
	cmds, err := s.remote.PollInboundCommands(ctx, limit)
	if err != nil {
		log.Warn().Err(err).Msg("poll inbound commands failed")
		s.link.MarkDown(now)
		return
	}
	if len(cmds) > limit {
		// the remainder is dropped rather than stalling the loop
		log.Warn().Int("received", len(cmds)).Int("max", limit).Msg("remote channel returned more commands than requested")
		cmds = cmds[:limit]
	}
	for _, cmd := range cmds {
		s.dispatcher.Dispatch(ctx, cmd, now)
	}
}

func (s *Scheduler) publish(now clock.Millis) {
	v := s.ctrl.View(now)
	v.LinkUp = s.link.Up()
	v.BreakerOpen = s.outbox.Tripped()
	s.board.Publish(v)
	if v.Active {
		s.metrics.WateringActive.Set(1)
	} else {
		s.metrics.WateringActive.Set(0)
	}
}
