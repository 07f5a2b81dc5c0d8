package clustermap

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/clustermap/pkg/clustermap"

type metrics struct {
	added   metric.Int64Counter
	removed metric.Int64Counter
}

// newMetrics uses the global OTel meter (no-op if not configured)
func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)

	added, err := m.Int64Counter(
		"clustermap.markers.added",
		metric.WithDescription("Total markers added to cluster layers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating added counter: %w", err)
	}

	removed, err := m.Int64Counter(
		"clustermap.markers.removed",
		metric.WithDescription("Total markers removed from cluster layers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating removed counter: %w", err)
	}

	return &metrics{added: added, removed: removed}, nil
}
