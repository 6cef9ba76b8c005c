package observability

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// TimingMetric wraps a Server-Timing metric; the zero value is a no-op.
type TimingMetric struct {
	metric *servertiming.Metric
}

// Stop ends the timed section.
func (m *TimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartTiming starts a Server-Timing metric when the request context carries
// timing headers, which the router middleware installs.
func StartTiming(ctx context.Context, name, desc string) *TimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &TimingMetric{}
	}
	m := timing.NewMetric(name)
	if desc != "" {
		m = m.WithDesc(desc)
	}
	return &TimingMetric{metric: m.Start()}
}
