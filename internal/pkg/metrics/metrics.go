// Package metrics 定义结账与库存相关的 Prometheus 指标，通过 /metrics 暴露。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

var (
	// CheckoutOutcomes 按操作与结果统计结账请求，例如 prepare/ok、finalize/payment_failed。
	CheckoutOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "outcomes_total",
		Help:      "Checkout operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	CheckoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "duration_seconds",
		Help:      "Latency of checkout operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	ReservationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservation",
		Name:      "transitions_total",
		Help:      "Stock reservations moved into a status.",
	}, []string{"status"})

	SweeperReleased = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "released_groups_total",
		Help:      "Reservation groups released by the expiry sweeper.",
	})

	LedgerConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "conflicts_total",
		Help:      "Ledger operations rejected by a guard or retried after a lock conflict.",
	}, []string{"reason"})
)

// Handler 返回默认注册表的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
