package irrigation_controller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
)

type loopHarness struct {
	*harness
	clk   *clock.Manual
	link  *Link
	sched *Scheduler
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	h := newHarness(t)
	clk := clock.NewManual(0)
	link := NewLink(h.remote, deterministicBackOff(), time.Second, h.metrics)
	sched := NewScheduler(Loop{
		Settings:   testSettings(),
		Clock:      clk,
		Controller: h.ctrl,
		Dispatcher: h.disp,
		Remote:     h.remote,
		Outbox:     h.outbox,
		Link:       link,
		Metrics:    h.metrics,
	})
	return &loopHarness{harness: h, clk: clk, link: link, sched: sched}
}

func TestBootForcesPumpOffAndGreets(t *testing.T) {
	lh := newLoopHarness(t)
	lh.act.on = true

	lh.sched.Boot(context.Background())

	if lh.act.on {
		t.Error("pump should be forced off at boot")
	}
	if texts := lh.remote.texts(); len(texts) != 1 || texts[0] != msgStartup {
		t.Errorf("sent = %q", texts)
	}
	if _, ok := lh.sched.Board().Load(); !ok {
		t.Error("board not published at boot")
	}
}

func TestStepExpiryBeforeCommands(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sched.Boot(ctx)

	if err := lh.ctrl.TryStart(ctx, entities.SourceManualRemote, 0); err != nil {
		t.Fatal(err)
	}
	// a start queued behind the expiry: expiry runs first, so the new start succeeds
	lh.remote.push("owner", CmdStartManual)
	lh.clk.Set(30_000)
	lh.sched.Step(ctx)

	s, ok := lh.ctrl.Session()
	if !ok || s.StartedAt != 30_000 {
		t.Fatalf("session = %+v, %v; want a fresh session at 30000", s, ok)
	}
	for _, txt := range lh.remote.texts() {
		if txt == msgAlreadyActive {
			t.Fatal("command was dispatched before the expiry check")
		}
	}
}

func TestStepSensorCadence(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sensors.soil = 1000 // wet, no watering
	lh.sched.Boot(ctx)

	lh.clk.Set(59_999)
	lh.sched.Step(ctx)
	if lh.sensors.reads != 0 {
		t.Fatalf("sensor check ran early: %d reads", lh.sensors.reads)
	}

	lh.clk.Set(60_000)
	lh.sched.Step(ctx)
	if lh.sensors.reads != 1 {
		t.Fatalf("reads = %d, want 1", lh.sensors.reads)
	}
	if !strings.HasPrefix(lh.ctrl.Status(), "No watering needed.") {
		t.Errorf("status = %q", lh.ctrl.Status())
	}

	lh.clk.Set(119_999)
	lh.sched.Step(ctx)
	if lh.sensors.reads != 1 {
		t.Fatalf("reads = %d, want 1", lh.sensors.reads)
	}
}

func TestStepSensorTimerResetsWhenSkipped(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sched.Boot(ctx)

	_ = lh.ctrl.TryStart(ctx, entities.SourceAutomatic, 30_000)

	// due at 60s but watering until 90s: skipped, timer still reset
	lh.clk.Set(60_000)
	lh.sched.Step(ctx)
	if lh.ctrl.Status() != msgCheckSkipped {
		t.Fatalf("status = %q", lh.ctrl.Status())
	}
	reads := lh.sensors.reads

	// session ends at 90s, the expiry reads sensors once; no catch-up check
	lh.clk.Set(90_000)
	lh.sched.Step(ctx)
	if lh.ctrl.Active() {
		t.Fatal("session should have expired")
	}
	if got := lh.sensors.reads - reads; got != 1 {
		t.Fatalf("reads after expiry = %d, want 1 (expiry snapshot only)", got)
	}

	lh.clk.Set(119_999)
	lh.sched.Step(ctx)
	if lh.ctrl.Active() {
		t.Fatal("automatic check ran before its cadence")
	}

	lh.clk.Set(120_000)
	lh.sched.Step(ctx)
	if !lh.ctrl.Active() {
		t.Fatal("automatic check at 120s should start watering")
	}
}

func TestStepBoundedDrain(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sched.Boot(ctx)

	for i := 0; i < 25; i++ {
		lh.remote.push("owner", CmdMenu)
	}

	lh.sched.Step(ctx)
	if got := lh.remote.pending(); got != 15 {
		t.Fatalf("pending after one step = %d, want 15", got)
	}
	lh.sched.Step(ctx)
	lh.sched.Step(ctx)
	if got := lh.remote.pending(); got != 0 {
		t.Fatalf("pending after three steps = %d, want 0", got)
	}
}

func TestStepReportFailureTriggersReconnect(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sensors.soil = 1000
	lh.sched.Boot(ctx)

	lh.remote.sendErr = errBoom
	lh.remote.reconnectErr = errBoom
	lh.clk.Set(3_600_000)
	lh.sched.Step(ctx)

	if got := testutil.ToFloat64(lh.metrics.Reports.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed reports = %v, want 1", got)
	}
	if lh.link.Up() {
		t.Fatal("link should be down after a failed report")
	}
	if lh.remote.reconnectCalls != 1 {
		t.Fatalf("reconnect calls = %d, want 1", lh.remote.reconnectCalls)
	}
	v, _ := lh.sched.Board().Load()
	if v.LinkUp {
		t.Error("board should report the link down")
	}

	// the next attempt waits for the backoff; expiry keeps running meanwhile
	lh.clk.Set(3_600_500)
	lh.sched.Step(ctx)
	if lh.remote.reconnectCalls != 1 {
		t.Fatalf("reconnect retried before backoff: %d", lh.remote.reconnectCalls)
	}

	lh.remote.reconnectErr = nil
	lh.clk.Set(3_601_000)
	lh.sched.Step(ctx)
	if !lh.link.Up() {
		t.Fatal("link should recover")
	}
}

func TestStepOpenBreakerWithHealthyRemote(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sensors.soil = 1000
	lh.sched.Boot(ctx)

	// three failed status replies to the owner open the breaker
	lh.remote.sendErr = errBoom
	for i := 0; i < 3; i++ {
		lh.remote.push("owner", CmdStatus)
	}
	lh.sched.Step(ctx)
	if !lh.outbox.Tripped() {
		t.Fatal("breaker should be open")
	}

	lh.remote.sendErr = nil
	for i := 1; i <= 100; i++ {
		lh.clk.Set(clockAt(i * 100))
		lh.sched.Step(ctx)
	}

	if lh.remote.reconnectCalls != 0 {
		t.Fatalf("reconnect calls over 10s of steps = %d, want 0", lh.remote.reconnectCalls)
	}
	v, _ := lh.sched.Board().Load()
	if !v.LinkUp || !v.BreakerOpen {
		t.Errorf("board link_up = %v, breaker_open = %v; want true, true", v.LinkUp, v.BreakerOpen)
	}
}

func TestStepReportThroughOpenBreakerKeepsLink(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sensors.soil = 1000
	lh.sched.Boot(ctx)

	lh.remote.sendErr = errBoom
	for i := 0; i < 3; i++ {
		lh.remote.push("owner", CmdStatus)
	}
	lh.sched.Step(ctx)
	lh.remote.sendErr = nil

	lh.clk.Set(3_600_000)
	lh.sched.Step(ctx)

	if got := testutil.ToFloat64(lh.metrics.Reports.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed reports = %v, want 1", got)
	}
	if !lh.link.Up() || lh.remote.reconnectCalls != 0 {
		t.Errorf("link up = %v, reconnect calls = %d; the breaker alone must not mark the link down",
			lh.link.Up(), lh.remote.reconnectCalls)
	}
}

func TestStepReportSuccess(t *testing.T) {
	ctx := context.Background()
	lh := newLoopHarness(t)
	lh.sched.Boot(ctx)

	lh.clk.Set(3_600_000)
	lh.sched.Step(ctx)

	if got := testutil.ToFloat64(lh.metrics.Reports.WithLabelValues("sent")); got != 1 {
		t.Fatalf("sent reports = %v", got)
	}
	texts := lh.remote.texts()
	if !strings.HasPrefix(texts[len(texts)-1], "Hourly Report:") {
		t.Errorf("last message = %q", texts[len(texts)-1])
	}
}

func TestRunStopsActiveSessionOnShutdown(t *testing.T) {
	lh := newLoopHarness(t)
	lh.remote.push("owner", CmdStartManual)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lh.sched.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		v, ok := lh.sched.Board().Load()
		if ok && v.Active {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loop never started watering")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	v, _ := lh.sched.Board().Load()
	if v.Active {
		t.Error("session still active after shutdown")
	}
	if !strings.Contains(v.Status, ReasonShutdown) {
		t.Errorf("status = %q", v.Status)
	}
}

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Reports.WithLabelValues("sent").Inc()
	m.Sessions.WithLabelValues("Automatic").Inc()

	if n, err := testutil.GatherAndCount(reg, "gardenbot_reports_total", "gardenbot_watering_sessions_total"); err != nil || n != 2 {
		t.Errorf("GatherAndCount() = %d, %v", n, err)
	}
}
