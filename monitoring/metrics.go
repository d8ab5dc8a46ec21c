package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeHistogram MetricType = "histogram"
)

// 预测服务指标名
const (
	MetricPredictions    = "predictions_total"
	MetricRequestErrors  = "request_errors_total"
	MetricPredictLatency = "predict_latency_ms"
	MetricCacheHits      = "cache_hits_total"
	MetricCacheMisses    = "cache_misses_total"
	MetricModelReloads   = "model_reloads_total"
)

// 每个直方图最多保留的样本数
const maxSamples = 1000

// Metric 指标
type Metric struct {
	Name      string     `json:"name"`
	Type      MetricType `json:"type"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// MetricsCollector 指标收集器：计数器累加，直方图保留最近样本
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	histograms map[string][]*Metric
	startTime  time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string][]*Metric),
		startTime:  time.Now(),
	}
}

// IncCounter 计数器加一
func (mc *MetricsCollector) IncCounter(name string) {
	mc.AddCounter(name, 1)
}

// AddCounter 计数器累加
func (mc *MetricsCollector) AddCounter(name string, delta float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name] += delta
}

// SetCounter 以外部累计值覆盖计数器（如缓存命中数）
func (mc *MetricsCollector) SetCounter(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name] = value
}

// Counter 读取计数器
func (mc *MetricsCollector) Counter(name string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name]
}

// ObserveDuration 以毫秒记录耗时样本
func (mc *MetricsCollector) ObserveDuration(name string, d time.Duration) {
	mc.RecordMetric(&Metric{
		Name:  name,
		Type:  MetricTypeHistogram,
		Value: float64(d) / float64(time.Millisecond),
	})
}

// RecordMetric 记录直方图样本
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metric.Timestamp = time.Now()
	samples := append(mc.histograms[metric.Name], metric)
	// 限制历史大小（保留最近 maxSamples 个）
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	mc.histograms[metric.Name] = samples
}

// GetMetricSummary 获取直方图摘要
func (mc *MetricsCollector) GetMetricSummary(name string) (map[string]interface{}, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	metrics, ok := mc.histograms[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	if len(metrics) == 0 {
		return map[string]interface{}{"count": 0}, nil
	}

	summary := map[string]interface{}{
		"name":   name,
		"count":  len(metrics),
		"latest": metrics[len(metrics)-1].Value,
	}
	lo, hi, sum := metrics[0].Value, metrics[0].Value, 0.0
	for _, m := range metrics {
		sum += m.Value
		if m.Value < lo {
			lo = m.Value
		}
		if m.Value > hi {
			hi = m.Value
		}
	}
	summary["min"] = lo
	summary["max"] = hi
	summary["average"] = sum / float64(len(metrics))
	return summary, nil
}

// LogSummary 输出全部计数器与直方图摘要
func (mc *MetricsCollector) LogSummary(logger *zap.Logger) {
	mc.mu.RLock()
	names := make([]string, 0, len(mc.counters))
	for name := range mc.counters {
		names = append(names, name)
	}
	fields := make([]zap.Field, 0, len(names)+1)
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, zap.Float64(name, mc.counters[name]))
	}
	fields = append(fields, zap.Duration("uptime", time.Since(mc.startTime)))
	histNames := make([]string, 0, len(mc.histograms))
	for name := range mc.histograms {
		histNames = append(histNames, name)
	}
	mc.mu.RUnlock()

	sort.Strings(histNames)
	for _, name := range histNames {
		if summary, err := mc.GetMetricSummary(name); err == nil {
			fields = append(fields, zap.Any(name, summary))
		}
	}
	logger.Info("metrics summary", fields...)
}
