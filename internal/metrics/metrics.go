// Package metrics содержит метрики Prometheus движка исполнения подписок.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepRuns считает запуски фоновых свипов по типу задачи.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelsubs_sweep_runs_total",
		Help: "Total number of background sweep runs.",
	}, []string{"job"})

	// SubscriptionsExpired считает подписки, переведённые в expired свипом.
	SubscriptionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelsubs_subscriptions_expired_total",
		Help: "Total number of subscriptions expired by the sweep.",
	})

	// RemindersSent считает успешно отправленные напоминания.
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelsubs_reminders_sent_total",
		Help: "Total number of expiry reminders sent.",
	})

	// AdapterFailures считает сбои внешних адаптеров по имени адаптера.
	AdapterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelsubs_adapter_failures_total",
		Help: "Total number of external adapter call failures.",
	}, []string{"adapter"})

	// PaymentsCaptured считает успешно захваченные платежи.
	PaymentsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelsubs_payments_captured_total",
		Help: "Total number of captured payments.",
	})
)
