// Package metrics 定义 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal 按路由与状态码统计请求数。
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uptask",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "uptask",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// EmailsTotal 邮件发送结果：sent / failed / throttled / dropped。
	EmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uptask",
		Name:      "emails_total",
		Help:      "Transactional emails by kind and result.",
	}, []string{"kind", "result"})

	// AuthEventsTotal 账号生命周期事件。
	AuthEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uptask",
		Name:      "auth_events_total",
		Help:      "Account lifecycle events.",
	}, []string{"event"})

	// RateLimitedTotal 被限流拒绝的请求数。
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uptask",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"scope"})

	// QueuePending 邮件队列中待处理的任务数。
	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uptask",
		Name:      "notify_queue_pending",
		Help:      "Pending jobs in the notification queue.",
	})
)
