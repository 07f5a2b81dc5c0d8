package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, queued map[string]int) (*metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mt, err := newMetrics(provider.Meter(instrumentationName), func() map[string]int { return queued })
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return mt, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, command string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", data)
	}
	for _, dp := range sum.DataPoints {
		if v, _ := dp.Attributes.Value(attribute.Key("command")); v.AsString() == command {
			return dp.Value
		}
	}
	return 0
}

func TestMetrics_ObserveCountsAndTimes(t *testing.T) {
	mt, reader := newTestMetrics(t, nil)

	mt.observe("marker.add", 5*time.Millisecond, nil)
	mt.observe("marker.add", time.Millisecond, errors.New("boom"))
	mt.drop("stats.render")

	data := collect(t, reader)
	if got := sumFor(t, data["clustermap.commands.handled"], "marker.add"); got != 2 {
		t.Errorf("expected 2 handled, got %d", got)
	}
	if got := sumFor(t, data["clustermap.commands.failed"], "marker.add"); got != 1 {
		t.Errorf("expected 1 failed, got %d", got)
	}
	if got := sumFor(t, data["clustermap.commands.dropped"], "stats.render"); got != 1 {
		t.Errorf("expected 1 dropped, got %d", got)
	}

	hist, ok := data["clustermap.commands.duration"].(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("expected one duration series, got %#v", data["clustermap.commands.duration"])
	}
	if hist.DataPoints[0].Count != 2 || hist.DataPoints[0].Sum != 6 {
		t.Errorf("expected 2 samples summing to 6ms, got %d and %f", hist.DataPoints[0].Count, hist.DataPoints[0].Sum)
	}
}

func TestMetrics_QueueSizeGauge(t *testing.T) {
	_, reader := newTestMetrics(t, map[string]int{"stats.render": 4})

	gauge, ok := collect(t, reader)["clustermap.commands.queue.size"].(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 1 {
		t.Fatalf("expected one queue size point, got %#v", gauge)
	}
	if gauge.DataPoints[0].Value != 4 {
		t.Errorf("expected queue size 4, got %d", gauge.DataPoints[0].Value)
	}
}

func TestDispatcher_QueueLengths(t *testing.T) {
	d, _ := newTestDispatcher(t)
	release := make(chan struct{})
	d.Register("slow", func(Command) (any, error) {
		<-release
		return nil, nil
	}, Buffered(4))

	for range 3 {
		if _, err := d.Dispatch(Command{Name: "slow"}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	// the worker holds one command, the rest wait in the queue
	deadline := time.Now().Add(time.Second)
	for d.queueLengths()["slow"] != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := d.queueLengths()["slow"]; got != 2 {
		t.Errorf("expected 2 queued, got %d", got)
	}
	close(release)
	d.Close()
}
