package readapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chronicle-dev/chronicle/pkg/errors"
	"github.com/chronicle-dev/chronicle/pkg/event"
)

// Store is the subset of *storage.Engine the Read API calls, narrowed so
// handlers are testable without a live Postgres.
type Store interface {
	GetAll(ctx context.Context, eventName string) ([]event.DisplayRecord, error)
	GetByTxHash(ctx context.Context, eventName, txHash string) ([]event.DisplayRecord, error)
	GetByBlockNumber(ctx context.Context, eventName, blockNumber string) ([]event.DisplayRecord, error)
	GetByRange(ctx context.Context, eventName string, from, to uint64, limit int64) ([]event.DisplayRecord, error)
}

type controller struct {
	engine Store
}

func (c *controller) healthz(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusOK)
}

func (c *controller) getAllEvents(rw http.ResponseWriter, r *http.Request) {
	eventName := mux.Vars(r)["event_name"]
	records, err := c.engine.GetAll(r.Context(), eventName)
	c.respond(rw, records, err)
}

func (c *controller) getEventsByTxHash(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	records, err := c.engine.GetByTxHash(r.Context(), vars["event_name"], vars["tx_hash"])
	c.respond(rw, records, err)
}

func (c *controller) getEventsByBlockNumber(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	records, err := c.engine.GetByBlockNumber(r.Context(), vars["event_name"], vars["block_number"])
	c.respond(rw, records, err)
}

func (c *controller) getEventsByRange(rw http.ResponseWriter, r *http.Request) {
	eventName := mux.Vars(r)["event_name"]
	q := r.URL.Query()

	from, err := event.ParseUint64(q.Get("from"))
	if err != nil {
		c.respondError(rw, http.StatusBadRequest, err)
		return
	}
	to, err := event.ParseUint64(q.Get("to"))
	if err != nil {
		c.respondError(rw, http.StatusBadRequest, err)
		return
	}

	var limit int64
	if l := q.Get("limit"); l != "" {
		parsed, err := event.ParseUint64(l)
		if err != nil {
			c.respondError(rw, http.StatusBadRequest, err)
			return
		}
		limit = int64(parsed)
	}

	records, err := c.engine.GetByRange(r.Context(), eventName, from, to, limit)
	c.respond(rw, records, err)
}

func (c *controller) respond(rw http.ResponseWriter, records []event.DisplayRecord, err error) {
	if err != nil {
		c.respondError(rw, http.StatusInternalServerError, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(records)
}

func (c *controller) respondError(rw http.ResponseWriter, status int, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(errors.ServiceError{Message: err.Error()})
}
