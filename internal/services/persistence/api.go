package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/model"
)

const (
	defaultMinutes = 60 * 24
	queryTimeout   = 5 * time.Second
)

// NewHTTPHandler serves GET /history/readings.
//
// Query params:
//
//	source=auto|influx|cache   (default auto: Influx first, cache fallback)
//	minutes=<int>              (window, default 1440)
func NewHTTPHandler(svc *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		source := strings.ToLower(q.Get("source"))
		if source == "" {
			source = "auto"
		}
		switch source {
		case "auto", "influx", "cache":
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source must be auto, influx or cache"})
			return
		}
		minutes := defaultMinutes
		if s := q.Get("minutes"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				minutes = n
			}
		}

		var (
			list []model.SensorData
			used string
		)
		if source != "cache" && svc.HasInflux() {
			ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
			defer cancel()
			res, err := svc.QueryFromInflux(ctx, minutes)
			switch {
			case err != nil && source == "influx":
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			case err != nil:
				log.Warn().Err(err).Msg("history: influx unavailable, serving cache")
			case len(res) > 0 || source == "influx":
				list, used = res, "influx"
			}
		} else if source == "influx" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNoInflux.Error()})
			return
		}
		if used == "" {
			list, used = within(svc.LatestCache(), minutes, time.Now()), "cache"
		}
		if list == nil {
			list = []model.SensorData{}
		}

		w.Header().Set("X-Data-Source", used)
		writeJSON(w, http.StatusOK, list)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
