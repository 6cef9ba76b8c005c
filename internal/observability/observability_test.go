package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordSubmit(ctx, "video", "polling")
	m.RecordPoll(ctx, true)
	m.RecordDuration(ctx, "video", "completed", time.Second)
	m.RecordPersistWarning(ctx, "media")
}

func TestMetricsWithNoopProvider(t *testing.T) {
	m := NewMetrics(noop.NewMeterProvider())
	require.NotNil(t, m)
	m.RecordSubmit(context.Background(), "image", "completed")
	m.RecordPoll(context.Background(), false)
}

func TestStartTimingWithoutHeaderIsNoop(t *testing.T) {
	m := StartTiming(context.Background(), "upstream", "")
	m.Stop()
	assert.Nil(t, m.metric)
}

func TestStartTimingRecordsMetric(t *testing.T) {
	var h servertiming.Header
	ctx := servertiming.NewContext(context.Background(), &h)
	StartTiming(ctx, "upstream", "genai").Stop()
	require.Len(t, h.Metrics, 1)
	assert.Equal(t, "upstream", h.Metrics[0].Name)
	assert.Equal(t, "genai", h.Metrics[0].Desc)
}

func TestEndSpanWithError(t *testing.T) {
	_, span := StartSpan(context.Background(), "test_span")
	EndSpan(span, errors.New("boom"))
}
