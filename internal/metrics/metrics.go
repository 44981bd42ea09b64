package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_mutations_total",
		Help: "Ledger mutations by operation and result.",
	}, []string{"operation", "result"})

	VersionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_version_conflicts_total",
		Help: "Compare-and-swap conflicts that caused a retry.",
	}, []string{"operation"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_events_published_total",
		Help: "Outbound events by topic and final result.",
	}, []string{"topic", "result"})

	PublishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_publish_retries_total",
		Help: "Transport send retries by topic.",
	}, []string{"topic"})

	PublishQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stock_ledger_publish_queue_depth",
		Help: "Events waiting in publisher queues.",
	})

	ConsumedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_consumed_messages_total",
		Help: "Inbound messages by topic and outcome.",
	}, []string{"topic", "outcome"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_cache_lookups_total",
		Help: "Read-through cache lookups by result.",
	}, []string{"result"})

	LowStockAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_low_stock_alerts_total",
		Help: "Low-stock alerts raised by severity.",
	}, []string{"severity"})
)
