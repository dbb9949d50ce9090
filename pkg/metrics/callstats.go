package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"
)

// CallStats is a reusable per-method call counter + latency histogram pair,
// generalized from the storage layer's own instrumentation so any component
// can report call/latency metrics under its own meter name.
type CallStats struct {
	meterName        string
	callCount        syncint64.Counter
	latencyHistogram syncint64.Histogram
}

// NewCallStats registers a call counter and latency histogram under
// meterName, named "<meterName>.call.count" and "<meterName>.call.latency".
func NewCallStats(meterName string) (*CallStats, error) {
	meter := global.MeterProvider().Meter(meterName)

	callCount, err := meter.SyncInt64().Counter(meterName + ".call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.SyncInt64().Histogram(meterName + ".call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}

	return &CallStats{
		meterName:        meterName,
		callCount:        callCount,
		latencyHistogram: latencyHistogram,
	}, nil
}

// Record reports one call to method, with latency in milliseconds.
func (c *CallStats) Record(method string, latency time.Duration) {
	ctx := context.Background()
	attrs := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
	}, BaseAttrs...)

	c.callCount.Add(ctx, 1, attrs...)
	c.latencyHistogram.Record(ctx, latency.Milliseconds(), attrs...)
}
