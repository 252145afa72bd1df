package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Every polochat metric is registered here on the default registry, which /v1/metrics
// serves. Names are referenced by deployments/observability, so renames need a matching
// rules change.

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polochat_http_requests_total",
			Help: "API requests by method, route pattern and status code.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polochat_http_request_duration_seconds",
			Help:    "API request latency by route pattern.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)
	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polochat_chat_turns_total",
			Help: "Total number of chat turns by terminal outcome.",
		},
		[]string{"outcome"},
	)
	chatStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polochat_chat_stage_duration_seconds",
			Help:    "Duration of each chat pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polochat_llm_request_duration_seconds",
			Help:    "Latency of language model calls by provider and status.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)
	sqlGuardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polochat_sqlguard_rejections_total",
			Help: "Total number of generated queries rejected before execution.",
		},
		[]string{"reason"},
	)
	queryResultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polochat_query_result_rows",
			Help:    "Rows returned by guarded read-only queries.",
			Buckets: []float64{0, 1, 2, 4, 6, 8, 16, 32, 64, 128, 256, 512},
		},
	)
	snapshotExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_exports_total",
			Help: "Total number of warehouse snapshot exports by status.",
		},
		[]string{"status"},
	)
	snapshotRowsExported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_rows_exported_total",
			Help: "Total number of rows written to snapshot parquet files.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		chatTurnsTotal,
		chatStageDurationSeconds,
		llmRequestDurationSeconds,
		sqlGuardRejectionsTotal,
		queryResultRows,
		snapshotExportsTotal,
		snapshotRowsExported,
	)
}

func ObserveChatTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(outcome).Inc()
}

func ObserveChatStage(stage string, elapsed time.Duration) {
	chatStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveLLMRequest(provider string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmRequestDurationSeconds.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

func ObserveSQLGuardRejection(reason string) {
	sqlGuardRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryResultRows.Observe(float64(rows))
}

func ObserveSnapshotExport(rows int64, err error) {
	if err != nil {
		snapshotExportsTotal.WithLabelValues("error").Inc()
		return
	}
	snapshotExportsTotal.WithLabelValues("ok").Inc()
	if rows > 0 {
		snapshotRowsExported.Add(float64(rows))
	}
}
