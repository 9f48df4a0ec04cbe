package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心业务指标。下单结果按 outcome 维度区分：paid / insufficient_stock /
// invalid_order / payment_failed。
var (
	CheckoutAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "checkout_attempts_total",
		Help:      "Checkout saga attempts by final outcome.",
	}, []string{"outcome"})

	ReservationsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "reservations_reaped_total",
		Help:      "Expired stock holds released by the reaper.",
	})

	OversellRisk = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "oversell_risk_total",
		Help:      "Commits that found their reservation already reaped.",
	})

	ActiveReservations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storefront",
		Name:      "reservations_active",
		Help:      "Stock holds currently outstanding.",
	})

	ChargeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "payment_charge_seconds",
		Help:      "Latency of external payment gateway charges.",
		Buckets:   prometheus.DefBuckets,
	})
)
