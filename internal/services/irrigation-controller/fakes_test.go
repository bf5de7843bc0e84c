package irrigation_controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

type fakeSensors struct {
	temp, hum  float64
	climateErr error
	soil       int
	light      int
	analogErr  error
	reads      int
}

func (f *fakeSensors) ReadTemperatureHumidity(context.Context) (float64, float64, error) {
	f.reads++
	return f.temp, f.hum, f.climateErr
}

func (f *fakeSensors) ReadSoilMoisture(context.Context) (int, error) { return f.soil, f.analogErr }

func (f *fakeSensors) ReadLightLevel(context.Context) (int, error) { return f.light, f.analogErr }

// night, dry, mild: the automatic policy waters
func wateringWeather() *fakeSensors {
	return &fakeSensors{temp: 25, hum: 60, soil: 3000, light: 500}
}

func faultyClimate() *fakeSensors {
	return &fakeSensors{temp: math.NaN(), hum: math.NaN(), soil: 3000, light: 500}
}

type fakeActuator struct {
	on    bool
	calls []bool
	fail  error
}

func (f *fakeActuator) SetPump(_ context.Context, on bool) error {
	f.calls = append(f.calls, on)
	if f.fail != nil && on {
		return f.fail
	}
	f.on = on
	return nil
}

type recordingNotifier struct {
	texts []string
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingNotifier) last() string {
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

type sent struct {
	to, text string
	menu     []string
}

// fakeRemote is a RemoteChannel with a scripted inbox.
type fakeRemote struct {
	mu        sync.Mutex
	inbox     []messages.Command
	sent      []sent
	sendErr   error
	pollErr   error
	connected bool

	reconnectErr   error
	reconnectCalls int
}

func newFakeRemote() *fakeRemote { return &fakeRemote{connected: true} }

func (f *fakeRemote) push(sender, text string) {
	f.mu.Lock()
	f.inbox = append(f.inbox, messages.Command{SenderID: sender, Text: text, ReceivedAt: time.Now()})
	f.mu.Unlock()
}

func (f *fakeRemote) PollInboundCommands(_ context.Context, max int) ([]messages.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	n := len(f.inbox)
	if n > max {
		n = max
	}
	out := append([]messages.Command(nil), f.inbox[:n]...)
	f.inbox = f.inbox[n:]
	return out, nil
}

func (f *fakeRemote) SendNotification(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{to: to, text: text})
	return nil
}

func (f *fakeRemote) SendMenu(_ context.Context, to, text string, options []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{to: to, text: text, menu: options})
	return nil
}

func (f *fakeRemote) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRemote) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnectCalls++
	if f.reconnectErr != nil {
		return f.reconnectErr
	}
	f.connected = true
	f.sendErr = nil
	return nil
}

func (f *fakeRemote) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inbox)
}

func (f *fakeRemote) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type recordingSink struct {
	changes  []messages.PumpStateChangeEvent
	results  []messages.WateringResultEvent
	readings []messages.SensorData
}

func (r *recordingSink) PublishStateChange(_ context.Context, e messages.PumpStateChangeEvent) error {
	r.changes = append(r.changes, e)
	return nil
}

func (r *recordingSink) PublishResult(_ context.Context, e messages.WateringResultEvent) error {
	r.results = append(r.results, e)
	return nil
}

func (r *recordingSink) PublishReading(_ context.Context, d messages.SensorData) error {
	r.readings = append(r.readings, d)
	return nil
}

var errBoom = errors.New("boom")

func testSettings() Settings {
	s := DefaultSettings()
	s.AuthorizedSender = "owner"
	s.SensorTimeout = time.Second
	s.SendTimeout = time.Second
	s.ConnectTimeout = time.Second
	return s
}

func newTestController(t *testing.T, sensors *fakeSensors) (*Controller, *fakeActuator, *recordingNotifier, *recordingSink) {
	t.Helper()
	act := &fakeActuator{}
	n := &recordingNotifier{}
	sink := &recordingSink{}
	c := NewController(testSettings(), sensors, act, n, sink, nil)
	ids := 0
	c.newID = func() string {
		ids++
		return fmt.Sprintf("session-%d", ids)
	}
	return c, act, n, sink
}

func clockAt(ms int) clock.Millis { return clock.Millis(ms) }
