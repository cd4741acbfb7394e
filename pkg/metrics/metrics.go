// Package metrics 提供 Prometheus helper，包含本系统常用 counter/gauge/histogram
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数（按路径与状态码）
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 规范化处理的自然键分组数（按数据域）
	CanonicalGroupsTotal *prometheus.CounterVec
	// 规范化分组失败数（按数据域）
	CanonicalGroupErrorsTotal *prometheus.CounterVec
	// 规范化写入（created/updated/skipped，按数据域与结果）
	CanonicalUpsertsTotal *prometheus.CounterVec

	// 估值运行计数（按最终状态）
	ValuationRunsTotal *prometheus.CounterVec
	// 估值运行耗时
	ValuationRunDuration prometheus.Histogram
	// 存在数据质量问题的持仓数
	PositionIssuesTotal *prometheus.CounterVec
}

// New 创建指标实例并注册到私有 registry
func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		CanonicalGroupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "canonical_groups_total",
			Help:      "Natural-key groups processed by canonicalization",
		}, []string{"data_type"}),
		CanonicalGroupErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "canonical_group_errors_total",
			Help:      "Natural-key groups that failed during canonicalization",
		}, []string{"data_type"}),
		CanonicalUpsertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "canonical_upserts_total",
			Help:      "Canonical rows written, labelled created/updated/skipped",
		}, []string{"data_type", "outcome"}),
		ValuationRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "runs_total",
			Help:      "Valuation runs executed, labelled by final status",
		}, []string{"status"}),
		ValuationRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "run_duration_seconds",
			Help:      "Valuation run execution time",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PositionIssuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuation",
			Subsystem: serviceName,
			Name:      "position_issues_total",
			Help:      "Position results flagged with data quality issues",
		}, []string{"issue_type"}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CanonicalGroupsTotal,
		m.CanonicalGroupErrorsTotal,
		m.CanonicalUpsertsTotal,
		m.ValuationRunsTotal,
		m.ValuationRunDuration,
		m.PositionIssuesTotal,
	)

	return m
}

// Handler 返回 /metrics 的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
