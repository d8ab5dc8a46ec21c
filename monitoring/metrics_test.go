package monitoring

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsCollectorCounters(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncCounter(MetricPredictions)
	mc.IncCounter(MetricPredictions)
	mc.AddCounter(MetricRequestErrors, 3)
	mc.SetCounter(MetricCacheHits, 7)

	assert.Equal(t, 2.0, mc.Counter(MetricPredictions))
	assert.Equal(t, 3.0, mc.Counter(MetricRequestErrors))
	assert.Equal(t, 7.0, mc.Counter(MetricCacheHits))
	assert.Equal(t, 0.0, mc.Counter("unknown"))
}

func TestMetricsCollectorSummary(t *testing.T) {
	mc := NewMetricsCollector()
	mc.ObserveDuration(MetricPredictLatency, 2*time.Millisecond)
	mc.ObserveDuration(MetricPredictLatency, 4*time.Millisecond)

	summary, err := mc.GetMetricSummary(MetricPredictLatency)
	require.NoError(t, err)
	assert.Equal(t, 2, summary["count"])
	assert.Equal(t, 2.0, summary["min"])
	assert.Equal(t, 4.0, summary["max"])
	assert.Equal(t, 3.0, summary["average"])

	_, err = mc.GetMetricSummary("missing")
	assert.Error(t, err)

	mc.LogSummary(zap.NewNop())
}

func TestMetricsCollectorHistoryCap(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxSamples+10; i++ {
		mc.ObserveDuration(MetricPredictLatency, time.Millisecond)
	}
	summary, err := mc.GetMetricSummary(MetricPredictLatency)
	require.NoError(t, err)
	assert.Equal(t, maxSamples, summary["count"])
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", File: filepath.Join(t.TempDir(), "mediassist.log")})
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
