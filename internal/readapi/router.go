// Package readapi implements Chronicle's Read API: HTTP handlers for
// get_all_events, get_events_by_tx_hash, get_events_by_block_number, and
// get_events_by_range, parameterized by event_name.
package readapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chronicle-dev/chronicle/pkg/metrics"
)

// RateLimitConfig bounds how many requests a single client (by IP, see
// extractClientIP) may issue per interval. A zero MaxRPI disables rate
// limiting entirely.
type RateLimitConfig struct {
	MaxRPI   uint64
	Interval time.Duration
}

// ConfiguredRouter returns a fully configured Router serving the four
// getters over engine, each instrumented with the same otelhttp middleware
// pattern used across Chronicle's HTTP surface, optionally rate-limited.
func ConfiguredRouter(engine Store, rl RateLimitConfig) (*mux.Router, error) {
	c := &controller{engine: engine}

	r := mux.NewRouter()
	r.Use(otelHTTP("readapi"))

	if rl.MaxRPI > 0 {
		rateLimit, err := RateLimit(rl.MaxRPI, rl.Interval)
		if err != nil {
			return nil, fmt.Errorf("configuring rate limiter: %s", err)
		}
		r.Use(rateLimit)
	}

	r.HandleFunc("/events/{event_name}", c.getAllEvents).Methods(http.MethodGet)
	r.HandleFunc("/events/{event_name}/tx/{tx_hash}", c.getEventsByTxHash).Methods(http.MethodGet)
	r.HandleFunc("/events/{event_name}/block/{block_number}", c.getEventsByBlockNumber).Methods(http.MethodGet)
	r.HandleFunc("/events/{event_name}/range", c.getEventsByRange).Methods(http.MethodGet)
	r.HandleFunc("/healthz", c.healthz).Methods(http.MethodGet)

	return r, nil
}

func otelHTTP(operation string) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(&labeledHandler{h: h}, operation)
	}
}

type labeledHandler struct {
	h http.Handler
}

func (lh *labeledHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	labeler, _ := otelhttp.LabelerFromContext(r.Context())
	labeler.Add(metrics.BaseAttrs...)
	lh.h.ServeHTTP(rw, r)
}
