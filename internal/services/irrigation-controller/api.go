package irrigation_controller

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// influxErrorWindow is how long a time-series write error keeps /healthz degraded.
const influxErrorWindow = 30 * time.Second

// WriteHealth reports the time since the time-series writer last failed.
type WriteHealth interface {
	LastErrorAge() time.Duration
}

// NewRouter exposes the ops surface. Handlers only read the StatusBoard. writes may be
// nil when no time-series store is configured.
func NewRouter(board *StatusBoard, gatherer prometheus.Gatherer, writes WriteHealth) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/healthz", healthHandler(board, writes)).Methods(http.MethodGet)
	r.Handle("/readyz", readyHandler(board)).Methods(http.MethodGet)
	r.Handle("/status", statusHandler(board)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func healthHandler(board *StatusBoard, writes WriteHealth) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status         string `json:"status"`
			LoopStarted    bool   `json:"loop_started"`
			LinkUp         bool   `json:"link_up"`
			BreakerOpen    bool   `json:"breaker_open"`
			WateringActive bool   `json:"watering_active"`
			InfluxOK       *bool  `json:"influx_ok,omitempty"`
		}
		v, ok := board.Load()
		st := status{LoopStarted: ok, LinkUp: v.LinkUp, BreakerOpen: v.BreakerOpen, WateringActive: v.Active}
		influxOK := true
		if writes != nil {
			influxOK = writes.LastErrorAge() > influxErrorWindow
			st.InfluxOK = &influxOK
		}
		switch {
		case ok && v.LinkUp && influxOK:
			st.Status = "ok"
		case ok:
			st.Status = "degraded"
		default:
			st.Status = "starting"
		}
		writeJSON(w, http.StatusOK, st)
	})
}

// readyHandler answers 200 only while the remote link is up.
func readyHandler(board *StatusBoard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		v, ok := board.Load()
		ready := ok && v.LinkUp
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, struct {
			Ready bool `json:"ready"`
		}{Ready: ready})
	})
}

func statusHandler(board *StatusBoard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		v, ok := board.Load()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "controller not started"})
			return
		}
		writeJSON(w, http.StatusOK, v)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
