// Package metrics 集中定义 Prometheus 指标，使用独立 Registry，
// 避免和默认注册表里的第三方指标混在一起。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// CacheRequests 按策略和结果（hit / miss / null / stale / error）统计缓存读取。
	CacheRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by strategy and result.",
	}, []string{"strategy", "result"})

	CacheRebuildRejected = factory.NewCounter(prometheus.CounterOpts{
		Name: "cache_rebuild_rejected_total",
		Help: "Logical-expire rebuilds rejected because the pool was saturated.",
	})

	SeckillAdmissions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_admissions_total",
		Help: "Seckill admission script outcomes.",
	}, []string{"result"})

	OrdersMaterialized = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_orders_materialized_total",
		Help: "Queued seckill orders by worker outcome.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler 暴露 /metrics。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
