package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var labels = []string{"network", "environment"}

func newGauge(name, help string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nomad",
		Subsystem: "health",
		Name:      name,
		Help:      help,
	}, labels)
}

var (
	DispatchedMessages   = newGauge("dispatched", "Number of messages dispatched from the network.")
	UpdatedMessages      = newGauge("updated", "Number of dispatched messages included in a signed update.")
	RelayedMessages      = newGauge("relayed", "Number of dispatched messages relayed to the destination.")
	ProcessedMessages    = newGauge("processed", "Number of dispatched messages processed on the destination.")
	UnprocessedMessages  = newGauge("unprocessed", "Number of dispatched messages which are not processed yet.")
	MeanUpdateTime       = newGauge("mean_update_time_seconds", "Mean time between dispatch and update.")
	MeanRelayTime        = newGauge("mean_relay_time_seconds", "Mean time between update and relay.")
	MeanProcessTime      = newGauge("mean_process_time_seconds", "Mean time between relay and process.")
	MeanE2ETime          = newGauge("mean_e2e_time_seconds", "Mean time between dispatch and process.")
	HomeFailed           = newGauge("home_failed", "Shows 1 if the Home contract of the network is in the failed state.")
	OldestUnprocessed    = newGauge("oldest_unprocessed_block", "Dispatch block of the oldest unprocessed message, 0 when there is none.")
	OldestUnprocessedAge = newGauge("oldest_unprocessed_age_seconds", "Age of the oldest unprocessed message, 0 when there is none.")
	LastCheck            = newGauge("last_check_timestamp_seconds", "Unix time of the last successful health check of the network.")
)
