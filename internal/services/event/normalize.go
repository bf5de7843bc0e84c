package event

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

// Measurements written by the controller.
const (
	MeasurementPumpState = "pump_state"
	MeasurementSession   = "watering_session"
	MeasurementSensors   = "garden_sensors"
)

func StateChangeToPoint(evt messages.PumpStateChangeEvent) *write.Point {
	tags := map[string]string{
		"bed_id": evt.BedID,
		"source": evt.Source,
		"state":  string(evt.NewState),
	}
	on := int64(0)
	if evt.NewState == entities.PumpOn {
		on = 1
	}
	fields := map[string]interface{}{
		"on":          on,
		"session_id":  evt.SessionID,
		"duration_ms": evt.Duration.Milliseconds(),
	}
	if evt.Reason != "" {
		fields["reason"] = evt.Reason
	}
	return influxdb2.NewPoint(MeasurementPumpState, tags, fields, evt.Timestamp)
}

func ResultToPoint(evt messages.WateringResultEvent) *write.Point {
	tags := map[string]string{
		"bed_id": evt.BedID,
		"source": evt.Source,
		"status": evt.Status,
	}
	fields := map[string]interface{}{
		"session_id": evt.SessionID,
		"reason":     evt.Reason,
		"planned_ms": int64(evt.PlannedMs),
		"elapsed_ms": int64(evt.ElapsedMs),
	}
	return influxdb2.NewPoint(MeasurementSession, tags, fields, evt.Timestamp)
}

// ReadingToPoint writes only the fields that were read successfully; a fault adds a
// fault field instead.
func ReadingToPoint(d messages.SensorData) *write.Point {
	tags := map[string]string{
		"bed_id":  d.BedID,
		"trigger": d.Trigger,
	}
	fields := map[string]interface{}{}
	if d.Temperature != nil {
		fields["temperature"] = *d.Temperature
	}
	if d.Humidity != nil {
		fields["humidity"] = *d.Humidity
	}
	if d.SoilRaw != nil {
		fields["soil_raw"] = int64(*d.SoilRaw)
	}
	if d.LightRaw != nil {
		fields["light_raw"] = int64(*d.LightRaw)
	}
	if d.Fault != "" {
		fields["fault"] = d.Fault
	}
	if len(fields) == 0 {
		fields["count"] = int64(1)
	}
	return influxdb2.NewPoint(MeasurementSensors, tags, fields, d.Timestamp)
}
