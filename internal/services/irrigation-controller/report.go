package irrigation_controller

import (
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
)

// ReportKind selects the layout of FormatReport.
type ReportKind int

const (
	// OnDemand answers a Get Status command.
	OnDemand ReportKind = iota
	// Periodic is the hourly report built around the stored status message.
	Periodic
)

// FormatReport renders a report. It never prints numeric fields of a failed sensor;
// an explicit error line takes their place.
func FormatReport(kind ReportKind, snap *entities.SensorSnapshot, view StatusView) string {
	var b strings.Builder

	switch kind {
	case Periodic:
		if snap != nil && !snap.Valid() {
			b.WriteString("Hourly Report (sensor error):\n")
		} else {
			b.WriteString("Hourly Report:\n")
		}
		if view.Status != "" {
			b.WriteString(view.Status)
			b.WriteString("\n")
		}
		writeClimate(&b, snap)
		writeSoil(&b, snap)
	default:
		b.WriteString("Current Status:\n")
		writeClimate(&b, snap)
		writeSoil(&b, snap)
		writeLight(&b, snap)
	}

	if view.Active {
		fmt.Fprintf(&b, "Watering Active! Remaining: %d seconds.", clock.Millis(view.RemainingMs).Seconds())
	} else {
		b.WriteString("Watering Inactive.")
	}
	return b.String()
}

func writeClimate(b *strings.Builder, snap *entities.SensorSnapshot) {
	switch {
	case snap == nil:
		b.WriteString("Temperature/Humidity: no reading\n")
	case !snap.ClimateOK():
		b.WriteString("Temperature/Humidity: sensor error\n")
	default:
		fmt.Fprintf(b, "Temp: %.1f°C\nHumidity: %.1f%%\n", snap.Temperature, snap.Humidity)
	}
}

func writeSoil(b *strings.Builder, snap *entities.SensorSnapshot) {
	switch {
	case snap == nil:
		b.WriteString("Soil Moisture: no reading\n")
	case !snap.AnalogOK():
		b.WriteString("Soil Moisture: sensor error\n")
	default:
		fmt.Fprintf(b, "Soil Moisture: %d\n", snap.SoilRaw)
	}
}

func writeLight(b *strings.Builder, snap *entities.SensorSnapshot) {
	switch {
	case snap == nil:
		b.WriteString("Light Level: no reading\n")
	case !snap.AnalogOK():
		b.WriteString("Light Level: sensor error\n")
	default:
		fmt.Fprintf(b, "Light Level: %d\n", snap.LightRaw)
	}
}
