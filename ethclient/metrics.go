package ethclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nomad",
		Subsystem: "rpc",
		Name:      "request_results_total",
	}, []string{"chain", "url", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nomad",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"chain", "url", "query"})
)

func ObserveError(chain, url, query string, err error) {
	if err != nil {
		var rpcErr rpc.Error
		if errors.Is(err, context.DeadlineExceeded) {
			RequestResults.WithLabelValues(chain, url, query, "timeout").Inc()
		} else if errors.As(err, &rpcErr) {
			RequestResults.WithLabelValues(chain, url, query, fmt.Sprintf("error-%d", rpcErr.ErrorCode())).Inc()
		} else {
			RequestResults.WithLabelValues(chain, url, query, "error-"+ClassifyError(err).String()).Inc()
		}
	} else {
		RequestResults.WithLabelValues(chain, url, query, "ok").Inc()
	}
}

func ObserveDuration(chain, url, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(chain, url, query)).ObserveDuration
}
