package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/model"
)

// Measurement written by the event sink for sensor snapshots.
const measurementSensors = "garden_sensors"

// Service answers history queries for one bed. Recent readings are kept in a
// bounded in-memory ring; InfluxDB, when configured, serves longer windows.
type Service struct {
	bedID  string
	query  api.QueryAPI
	bucket string

	mu    sync.Mutex
	ring  []model.SensorData
	next  int
	count int
}

// NewService keeps up to size readings in memory. query may be nil.
func NewService(bedID string, size int, query api.QueryAPI, bucket string) *Service {
	if size <= 0 {
		size = 1
	}
	return &Service{
		bedID:  bedID,
		query:  query,
		bucket: bucket,
		ring:   make([]model.SensorData, size),
	}
}

// Record stores a reading, evicting the oldest when full.
func (s *Service) Record(d model.SensorData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = d
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
}

// LatestCache returns the cached readings, oldest first.
func (s *Service) LatestCache() []model.SensorData {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SensorData, 0, s.count)
	start := (s.next - s.count + len(s.ring)) % len(s.ring)
	for i := 0; i < s.count; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

// HasInflux reports whether an InfluxDB query API is configured.
func (s *Service) HasInflux() bool { return s.query != nil }

// QueryFromInflux returns the readings of the last minutes, oldest first.
func (s *Service) QueryFromInflux(ctx context.Context, minutes int) ([]model.SensorData, error) {
	if s.query == nil {
		return nil, ErrNoInflux
	}
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q and r.bed_id == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"])`, s.bucket, minutes, measurementSensors, s.bedID)

	res, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("influx result close")
		}
	}()

	var out []model.SensorData
	for res.Next() {
		rec := res.Record()
		d := model.SensorData{BedID: s.bedID, Timestamp: rec.Time().UTC()}
		if v, ok := rec.ValueByKey("trigger").(string); ok {
			d.Trigger = v
		}
		if v, ok := rec.ValueByKey("fault").(string); ok {
			d.Fault = v
		}
		d.Temperature = floatField(rec.ValueByKey("temperature"))
		d.Humidity = floatField(rec.ValueByKey("humidity"))
		d.SoilRaw = intField(rec.ValueByKey("soil_raw"))
		d.LightRaw = intField(rec.ValueByKey("light_raw"))
		out = append(out, d)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx result: %w", err)
	}
	return out, nil
}

func floatField(v interface{}) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func intField(v interface{}) *int {
	switch n := v.(type) {
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	}
	return nil
}

// within drops readings older than the window.
func within(list []model.SensorData, minutes int, now time.Time) []model.SensorData {
	cutoff := now.Add(-time.Duration(minutes) * time.Minute)
	out := list[:0:0]
	for _, d := range list {
		if !d.Timestamp.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out
}
