package readapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronicle-dev/chronicle/pkg/event"
)

type fakeStore struct {
	records []event.DisplayRecord
	err     error
}

func (f *fakeStore) GetAll(context.Context, string) ([]event.DisplayRecord, error) {
	return f.records, f.err
}

func (f *fakeStore) GetByTxHash(context.Context, string, string) ([]event.DisplayRecord, error) {
	return f.records, f.err
}

func (f *fakeStore) GetByBlockNumber(context.Context, string, string) ([]event.DisplayRecord, error) {
	return f.records, f.err
}

func (f *fakeStore) GetByRange(context.Context, string, uint64, uint64, int64) ([]event.DisplayRecord, error) {
	return f.records, f.err
}

func TestGetAllEvents(t *testing.T) {
	store := &fakeStore{records: []event.DisplayRecord{{Address: "0xabc", BlockNumber: "100"}}}
	router, err := ConfiguredRouter(store, RateLimitConfig{})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/events/transfer", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[{"address":"0xabc","block_number":"100","block_hash":"","transaction_hash":"",
		"transaction_index":"","log_index":"","topics":null,"data":""}]`, rr.Body.String())
}

func TestGetAllEventsStorageFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	router, err := ConfiguredRouter(store, RateLimitConfig{})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/events/transfer", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"message":"connection refused"}`, rr.Body.String())
}

func TestGetEventsByRangeRejectsInvalidParams(t *testing.T) {
	store := &fakeStore{}
	router, err := ConfiguredRouter(store, RateLimitConfig{})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/events/transfer/range?from=abc&to=10", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetEventsByRange(t *testing.T) {
	store := &fakeStore{records: []event.DisplayRecord{{Address: "0xabc", BlockNumber: "150"}}}
	router, err := ConfiguredRouter(store, RateLimitConfig{})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/events/transfer/range?from=100&to=200&limit=50", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthz(t *testing.T) {
	router, err := ConfiguredRouter(&fakeStore{}, RateLimitConfig{})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "/healthz", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
