package event

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
	"github.com/LeonardoBeccarini/gardenbot/pkg/rabbitmq"
)

type PublisherFactory func(topic string) rabbitmq.IPublisher

// Recorder keeps readings for local queries.
type Recorder interface {
	Record(d messages.SensorData)
}

// Topics are topic templates; {bed} is replaced with the bed id.
type Topics struct {
	StateChange string
	Result      string
	Reading     string
}

func DefaultTopics() Topics {
	return Topics{
		StateChange: "event/pumpStateChange/{bed}",
		Result:      "event/wateringResult/{bed}",
		Reading:     "sensor/data/{bed}",
	}
}

// Sink fans controller events out to MQTT (QoS 1 JSON) and InfluxDB. Either side may
// be absent.
type Sink struct {
	stateChange rabbitmq.IPublisher
	result      rabbitmq.IPublisher
	reading     rabbitmq.IPublisher
	writer      *Writer
	recorder    Recorder
}

func NewSink(bedID string, topics Topics, factory PublisherFactory, writer *Writer) *Sink {
	s := &Sink{writer: writer}
	if factory != nil {
		r := strings.NewReplacer("{bed}", bedID)
		s.stateChange = factory(r.Replace(topics.StateChange))
		s.result = factory(r.Replace(topics.Result))
		s.reading = factory(r.Replace(topics.Reading))
	}
	return s
}

func (s *Sink) PublishStateChange(ctx context.Context, evt messages.PumpStateChangeEvent) error {
	s.writer.Write(StateChangeToPoint(evt))
	return publishJSON(ctx, s.stateChange, evt)
}

func (s *Sink) PublishResult(ctx context.Context, evt messages.WateringResultEvent) error {
	s.writer.Write(ResultToPoint(evt))
	return publishJSON(ctx, s.result, evt)
}

func (s *Sink) PublishReading(ctx context.Context, d messages.SensorData) error {
	s.writer.Write(ReadingToPoint(d))
	if s.recorder != nil {
		s.recorder.Record(d)
	}
	return publishJSON(ctx, s.reading, d)
}

// WithRecorder attaches a reading recorder.
func (s *Sink) WithRecorder(r Recorder) *Sink {
	s.recorder = r
	return s
}

// Close flushes pending points.
func (s *Sink) Close() {
	s.writer.Flush()
}

func publishJSON(ctx context.Context, p rabbitmq.IPublisher, v interface{}) error {
	if p == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := p.PublishMessageQos(1, false, b); err != nil {
		log.Debug().Err(err).Msg("event publish failed")
		return err
	}
	return nil
}
