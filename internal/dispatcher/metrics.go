package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/clustermap/internal/dispatcher"

// metrics holds the command instruments. Every measurement carries the
// command name.
type metrics struct {
	queueSize metric.Int64ObservableGauge
	handled   metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
}

// newMetrics creates the instruments on m. queued reports the length of each
// buffered queue when the gauge is collected.
func newMetrics(m metric.Meter, queued func() map[string]int) (*metrics, error) {
	mt := &metrics{}
	var err error

	mt.queueSize, err = m.Int64ObservableGauge(
		"clustermap.commands.queue.size",
		metric.WithDescription("Current number of commands waiting in a buffered queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			for name, n := range queued() {
				o.ObserveInt64(mt.queueSize, int64(n), commandAttrs(name))
			}
			return nil
		},
		mt.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	mt.handled, err = m.Int64Counter(
		"clustermap.commands.handled",
		metric.WithDescription("Total commands handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating handled counter: %w", err)
	}

	mt.failed, err = m.Int64Counter(
		"clustermap.commands.failed",
		metric.WithDescription("Total commands whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	mt.dropped, err = m.Int64Counter(
		"clustermap.commands.dropped",
		metric.WithDescription("Total commands dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	mt.duration, err = m.Float64Histogram(
		"clustermap.commands.duration",
		metric.WithDescription("Time spent in command handlers"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	return mt, nil
}

func commandAttrs(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", name))
}

// observe records one finished command
func (mt *metrics) observe(name string, elapsed time.Duration, err error) {
	ctx := context.Background()
	attrs := commandAttrs(name)
	mt.handled.Add(ctx, 1, attrs)
	mt.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	if err != nil {
		mt.failed.Add(ctx, 1, attrs)
	}
}

// drop records a command rejected by a full queue
func (mt *metrics) drop(name string) {
	mt.dropped.Add(context.Background(), 1, commandAttrs(name))
}
