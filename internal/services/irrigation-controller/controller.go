package irrigation_controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

// Stop reasons.
const (
	ReasonDurationCompleted = "Duration completed"
	ReasonRemoteCommand     = "Remote command"
	ReasonShutdown          = "Shutdown"
)

// Sensor reading triggers.
const (
	TriggerAutoCheck = "auto-check"
	TriggerStatus    = "status"
	TriggerExpiry    = "expiry"
	TriggerReport    = "report"
)

const (
	msgAlreadyActive = "Watering is already active. Please wait or stop current watering."
	msgNotActive     = "Watering is not currently active."
	msgCheckSkipped  = "Automatic check skipped: watering is currently active."
)

// ===================== Controller =====================

// Controller owns the watering state machine of one bed. It is not safe for
// concurrent use: the scheduler loop is its only caller.
type Controller struct {
	settings Settings
	sensors  SensorGateway
	actuator Actuator
	notifier Notifier
	events   EventSink
	metrics  *Metrics
	newID    func() string

	session *entities.Session
	status  string
	last    *entities.SensorSnapshot
}

func NewController(settings Settings, sensors SensorGateway, actuator Actuator, notifier Notifier, events EventSink, metrics *Metrics) *Controller {
	if events == nil {
		events = nopSink{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Controller{
		settings: settings,
		sensors:  sensors,
		actuator: actuator,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
		newID:    uuid.NewString,
		status:   "Starting up.",
	}
}

// Active reports whether a session is running.
func (c *Controller) Active() bool { return c.session != nil }

// Session returns a copy of the running session.
func (c *Controller) Session() (entities.Session, bool) {
	if c.session == nil {
		return entities.Session{}, false
	}
	return *c.session, true
}

// Status is the latest human-readable summary.
func (c *Controller) Status() string { return c.status }

// LastSnapshot is the most recent sensor reading, if any.
func (c *Controller) LastSnapshot() (entities.SensorSnapshot, bool) {
	if c.last == nil {
		return entities.SensorSnapshot{}, false
	}
	return *c.last, true
}

// RemainingMs is false when idle. It clamps at zero after the planned end.
func (c *Controller) RemainingMs(now clock.Millis) (clock.Millis, bool) {
	if c.session == nil {
		return 0, false
	}
	return c.session.Remaining(now), true
}

// ForceOff drives the pump off without touching the state machine. Used at boot.
func (c *Controller) ForceOff(ctx context.Context) error {
	if err := c.actuator.SetPump(ctx, false); err != nil {
		c.metrics.ActuatorFailures.Inc()
		return fmt.Errorf("%w: %v", ErrActuator, err)
	}
	return nil
}

// TryStart moves Idle -> Watering. A second start while active is rejected with
// ErrAlreadyActive and leaves the running session untouched.
func (c *Controller) TryStart(ctx context.Context, src entities.Source, now clock.Millis) error {
	if c.session != nil {
		log.Info().Str("source", src.String()).Str("session_id", c.session.ID).Msg("start rejected: watering already active")
		c.notify(ctx, msgAlreadyActive)
		return ErrAlreadyActive
	}

	planned := c.settings.Duration(src)
	if err := c.actuator.SetPump(ctx, true); err != nil {
		c.metrics.ActuatorFailures.Inc()
		log.Error().Err(err).Str("source", src.String()).Msg("pump on failed")
		if offErr := c.actuator.SetPump(ctx, false); offErr != nil {
			log.Error().Err(offErr).Msg("pump off after failed start also failed")
		}
		c.status = fmt.Sprintf("Failed to start watering (%s).", src)
		c.notify(ctx, fmt.Sprintf("Failed to start watering: %v", err))
		return fmt.Errorf("%w: %v", ErrActuator, err)
	}

	c.session = &entities.Session{
		ID:        c.newID(),
		Source:    src,
		StartedAt: now,
		Planned:   planned,
	}
	c.status = fmt.Sprintf("Started watering (%s).", src)
	c.metrics.Sessions.WithLabelValues(src.String()).Inc()
	c.metrics.WateringActive.Set(1)

	log.Info().
		Str("session_id", c.session.ID).
		Str("source", src.String()).
		Uint32("planned_ms", uint32(planned)).
		Msg("watering started")

	c.publishStateChange(ctx, *c.session, entities.PumpOn, "")
	c.notify(ctx, fmt.Sprintf("Watering started (%s) for %d seconds.", src, planned.Seconds()))
	return nil
}

// Stop moves Watering -> Idle. Stopping while idle returns ErrNotActive.
func (c *Controller) Stop(ctx context.Context, reason string, now clock.Millis) error {
	if c.session == nil {
		log.Info().Str("reason", reason).Msg("stop ignored: watering not active")
		c.notify(ctx, msgNotActive)
		return ErrNotActive
	}

	s := *c.session
	c.session = nil
	c.pumpOff(ctx)
	c.status = "Stopped watering. Reason: " + reason
	c.metrics.WateringActive.Set(0)

	elapsed := s.Elapsed(now)
	log.Info().
		Str("session_id", s.ID).
		Str("source", s.Source.String()).
		Str("reason", reason).
		Uint32("elapsed_ms", uint32(elapsed)).
		Msg("watering stopped")

	c.publishStateChange(ctx, s, entities.PumpOff, reason)
	c.publishResult(ctx, s, reason, elapsed)
	c.notify(ctx, "Watering stopped. Reason: "+reason)
	return nil
}

// CheckExpiry stops the session once its planned duration has elapsed and refreshes
// the status from a fresh reading. It reports whether a stop happened.
func (c *Controller) CheckExpiry(ctx context.Context, now clock.Millis) bool {
	if c.session == nil || !c.session.Expired(now) {
		return false
	}
	src := c.session.Source
	_ = c.Stop(ctx, ReasonDurationCompleted, now)

	snap := c.capture(ctx, now, TriggerExpiry)
	if fault := snap.Fault(); fault != nil {
		c.status = fmt.Sprintf("%s watering completed. Sensor error: %v", src, fault)
	} else {
		c.status = fmt.Sprintf("%s watering completed. Temp: %.1f°C, Hum: %.1f%%, Soil: %d",
			src, snap.Temperature, snap.Humidity, snap.SoilRaw)
	}
	return true
}

// RunAutomaticCheck runs one cycle of the automatic policy.
func (c *Controller) RunAutomaticCheck(ctx context.Context, now clock.Millis) Decision {
	if c.session != nil {
		c.status = msgCheckSkipped
		log.Debug().Str("session_id", c.session.ID).Msg("automatic check skipped")
		return DecisionSkipped
	}

	snap := c.capture(ctx, now, TriggerAutoCheck)
	d := Evaluate(snap, c.settings.Thresholds)
	ev := log.Info().
		Str("decision", d.String()).
		Int("soil", snap.SoilRaw).
		Int("light", snap.LightRaw)
	if snap.ClimateOK() {
		ev = ev.Float64("temperature", snap.Temperature).Float64("humidity", snap.Humidity)
	}
	ev.Msg("automatic check")

	switch d {
	case DecisionFault:
		c.status = fmt.Sprintf("Sensor error: %v. Automatic watering not evaluated.", snap.Fault())
	case DecisionNoWater:
		c.status = fmt.Sprintf("No watering needed.\nTemp: %.1f°C, Hum: %.1f%%, Soil: %d",
			snap.Temperature, snap.Humidity, snap.SoilRaw)
	case DecisionWater:
		if err := c.TryStart(ctx, entities.SourceAutomatic, now); err != nil {
			log.Warn().Err(err).Msg("automatic start failed")
		}
	}
	return d
}

// Capture takes a fresh snapshot on behalf of a status request.
func (c *Controller) Capture(ctx context.Context, now clock.Millis, trigger string) entities.SensorSnapshot {
	return c.capture(ctx, now, trigger)
}

// View renders the read-only projection published to the status board.
func (c *Controller) View(now clock.Millis) StatusView {
	v := StatusView{
		BedID:     c.settings.BedID,
		Status:    c.status,
		UpdatedAt: time.Now().UTC(),
	}
	if c.session != nil {
		v.Active = true
		v.SessionID = c.session.ID
		v.Source = c.session.Source.String()
		v.RemainingMs = uint32(c.session.Remaining(now))
	}
	if c.last != nil {
		d := c.sensorData(*c.last, "")
		v.LastReading = &d
	}
	return v
}

// ===================== internals =====================

func (c *Controller) capture(ctx context.Context, now clock.Millis, trigger string) entities.SensorSnapshot {
	snap := CaptureSnapshot(ctx, c.sensors, now, c.settings.SensorTimeout)
	c.last = &snap

	if snap.ClimateOK() {
		c.metrics.SensorValue.WithLabelValues("temperature").Set(snap.Temperature)
		c.metrics.SensorValue.WithLabelValues("humidity").Set(snap.Humidity)
	}
	if snap.AnalogOK() {
		c.metrics.SensorValue.WithLabelValues("soil").Set(float64(snap.SoilRaw))
		c.metrics.SensorValue.WithLabelValues("light").Set(float64(snap.LightRaw))
	}
	if !snap.Valid() {
		c.metrics.SensorFaults.Inc()
		log.Warn().Err(snap.Fault()).Str("trigger", trigger).Msg("sensor fault")
	}

	if err := c.events.PublishReading(ctx, c.sensorData(snap, trigger)); err != nil {
		log.Warn().Err(err).Msg("publish sensor reading failed")
	}
	return snap
}

// pumpOff retries once; the state machine goes Idle either way.
func (c *Controller) pumpOff(ctx context.Context) {
	err := c.actuator.SetPump(ctx, false)
	if err == nil {
		return
	}
	c.metrics.ActuatorFailures.Inc()
	log.Error().Err(err).Msg("pump off failed, retrying")
	if err = c.actuator.SetPump(ctx, false); err != nil {
		c.metrics.ActuatorFailures.Inc()
		log.Error().Err(err).Msg("pump off retry failed")
	}
}

func (c *Controller) notify(ctx context.Context, text string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, text); err != nil {
		log.Warn().Err(err).Msg("notification not delivered")
	}
}

func (c *Controller) publishStateChange(ctx context.Context, s entities.Session, state entities.PumpState, reason string) {
	evt := messages.PumpStateChangeEvent{
		BedID:     c.settings.BedID,
		SessionID: s.ID,
		NewState:  state,
		Source:    s.Source.String(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if state == entities.PumpOn {
		evt.Duration = s.Planned.Duration()
	}
	if err := c.events.PublishStateChange(ctx, evt); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("publish state change failed")
	}
}

func (c *Controller) publishResult(ctx context.Context, s entities.Session, reason string, elapsed clock.Millis) {
	status := messages.ResultStopped
	if reason == ReasonDurationCompleted {
		status = messages.ResultCompleted
	}
	evt := messages.WateringResultEvent{
		BedID:     c.settings.BedID,
		SessionID: s.ID,
		Source:    s.Source.String(),
		Status:    status,
		Reason:    reason,
		PlannedMs: uint32(s.Planned),
		ElapsedMs: uint32(elapsed),
		Timestamp: time.Now().UTC(),
	}
	if err := c.events.PublishResult(ctx, evt); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("publish watering result failed")
	}
}

func (c *Controller) sensorData(snap entities.SensorSnapshot, trigger string) messages.SensorData {
	d := messages.SensorData{
		BedID:     c.settings.BedID,
		Trigger:   trigger,
		Timestamp: time.Now().UTC(),
	}
	if snap.ClimateOK() {
		t, h := snap.Temperature, snap.Humidity
		d.Temperature, d.Humidity = &t, &h
	}
	if snap.AnalogOK() {
		soil, light := snap.SoilRaw, snap.LightRaw
		d.SoilRaw, d.LightRaw = &soil, &light
	}
	if err := snap.Fault(); err != nil {
		d.Fault = err.Error()
	}
	return d
}
