package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatestHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "latest_head_block",
		Help:      "Shows the latest confirmed head block of the chain. Events up to this block are waiting to be indexed.",
	}, []string{"chain", "domain"})
	LatestIndexedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "latest_indexed_block",
		Help:      "Shows the chain cursor. Events up to this block are already reconciled and saved to the DB.",
	}, []string{"chain", "domain"})
	SyncedChain = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "synced",
		Help:      "Shows 1 if the chain is considered as synced up to chain head.",
	}, []string{"chain", "domain"})
	KnownMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "known_messages",
		Help:      "Number of messages dispatched from the chain and known to the indexer.",
	}, []string{"chain", "domain"})
	IndexedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "events_total",
		Help:      "Number of fetched events by kind.",
	}, []string{"chain", "domain", "kind"})
	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "pass_duration_seconds",
		Help:      "Duration of indexing passes by result.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"chain", "domain", "status"})
	ReconciledMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "reconciled_messages_total",
		Help:      "Number of messages advanced by the journal sweep.",
	})
	MessageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomad",
		Subsystem: "indexer",
		Name:      "message_latency_seconds",
		Help:      "Time spent by processed messages in each lifecycle stage.",
		Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
	}, []string{"origin", "destination", "stage"})
)
