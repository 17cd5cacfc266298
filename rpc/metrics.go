package rpc

import (
	"github.com/prometheus/client_golang/prometheus"

	prom "github.com/harmony-one/metachain/api/service/prometheus"
)

// rpc name const
const (
	// eth
	ChainID          = "ChainId"
	BlockNumber      = "BlockNumber"
	GetBlockByNumber = "GetBlockByNumber"
	NewHeads         = "NewHeads"

	// net
	PeerCount  = "PeerCount"
	NetVersion = "Version"

	// web3
	ClientVersion = "ClientVersion"
)

// info type const
const (
	QueryNumber  = "query_number"
	FailedNumber = "failed_number"
)

func init() {
	prom.PromRegistry().MustRegister(
		requestCounterVec,
		requestDurationHistVec,
	)
}

var (
	requestCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metachain",
			Subsystem: "rpc",
			Name:      "request_count",
			Help:      "counters for each RPC method",
		},
		[]string{"method", "info"},
	)

	requestDurationHistVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metachain",
			Subsystem: "rpc",
			Name:      "delay_histogram",
			Help:      "delays histogram in seconds",
			// buckets: 50ms, 100ms, 200ms, 400ms, 800ms, 1600ms, 3200ms, +INF
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		},
		[]string{"method"},
	)
)

// DoMetricRPCRequest counts the request and starts its duration timer
func DoMetricRPCRequest(method string) *prometheus.Timer {
	DoMetricRPCQueryInfo(method, QueryNumber)
	pLabel := prometheus.Labels{
		"method": method,
	}
	return prometheus.NewTimer(requestDurationHistVec.With(pLabel))
}

// DoRPCRequestDuration records the request duration
func DoRPCRequestDuration(method string, timer *prometheus.Timer) {
	if timer != nil {
		timer.ObserveDuration()
	}
}

// DoMetricRPCQueryInfo increments the counter of the given info type
func DoMetricRPCQueryInfo(method string, info string) {
	pLabel := prometheus.Labels{
		"method": method,
		"info":   info,
	}
	requestCounterVec.With(pLabel).Inc()
}
