package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and model-call Prometheus metrics.
var (
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "model_requests_total",
			Help:      "Total number of model provider requests",
		},
		[]string{"provider", "model", "operation", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fusegate",
			Name:      "model_request_duration_seconds",
			Help:      "Model provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model", "operation"},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "model_tokens_total",
			Help:      "Total model tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	ScoreCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "score_cache_total",
			Help:      "Score cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fusegate",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Per-stage pipeline latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	DegradedSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "degraded_signals_total",
			Help:      "Queries that lost an upstream signal, by signal",
		},
		[]string{"signal"},
	)

	ProbeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusegate",
			Name:      "probe_total",
			Help:      "Health probe results by component and status",
		},
		[]string{"component", "status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once
// from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ModelRequestsTotal)
	prometheus.MustRegister(ModelRequestDuration)
	prometheus.MustRegister(ModelTokensTotal)
	prometheus.MustRegister(ScoreCacheTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(DegradedSignalsTotal)
	prometheus.MustRegister(ProbeTotal)
	pipelineMetricsRegistered = true
}
