package irrigation_controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gardenbot"

// Metrics groups the controller's Prometheus collectors. A nil Registerer yields
// working but unregistered collectors.
type Metrics struct {
	Sessions         *prometheus.CounterVec
	WateringActive   prometheus.Gauge
	SensorFaults     prometheus.Counter
	ActuatorFailures prometheus.Counter
	Reports          *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	Reconnects       *prometheus.CounterVec
	Sends            *prometheus.CounterVec
	SensorValue      *prometheus.GaugeVec
	StepDuration     prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "watering_sessions_total",
			Help:      "Watering sessions started, by source.",
		}, []string{"source"}),
		WateringActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "watering_active",
			Help:      "1 while the pump is on.",
		}),
		SensorFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sensor_faults_total",
			Help:      "Snapshots with at least one failed sensor.",
		}),
		ActuatorFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actuator_failures_total",
			Help:      "Pump commands the relay driver rejected.",
		}),
		Reports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reports_total",
			Help:      "Periodic reports, by result.",
		}, []string{"result"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Inbound remote commands, by command and authorization.",
		}, []string{"command", "authorized"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnect_attempts_total",
			Help:      "Remote link reconnect attempts, by result.",
		}, []string{"result"}),
		Sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound remote messages, by result.",
		}, []string{"result"}),
		SensorValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sensor_value",
			Help:      "Last valid sensor reading, by kind.",
		}, []string{"kind"}),
		StepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "loop_step_seconds",
			Help:      "Duration of one scheduler step.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}
