package readapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sethvargo/go-limiter/httplimit"
	"github.com/sethvargo/go-limiter/memorystore"
)

// RateLimit returns a mux middleware capping each client to maxRPI requests
// per interval, keyed by X-Forwarded-For (behind a load balancer) or the
// connection's remote address.
func RateLimit(maxRPI uint64, interval time.Duration) (mux.MiddlewareFunc, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   maxRPI,
		Interval: interval,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate limit store: %s", err)
	}

	m, err := httplimit.NewMiddleware(store, extractClientIP)
	if err != nil {
		return nil, fmt.Errorf("creating rate limit middleware: %s", err)
	}

	return func(next http.Handler) http.Handler {
		return m.Handle(next)
	}, nil
}

func extractClientIP(r *http.Request) (string, error) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.Split(xff, ",")[0], nil
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("getting ip from remote addr: %s", err)
	}
	return ip, nil
}
