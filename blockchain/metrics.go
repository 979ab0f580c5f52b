package blockchain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksConnected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supernova_blocks_connected_total",
		Help: "Blocks connected to the best chain",
	})

	reorgDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "supernova_reorg_depth",
		Help:    "Depth of completed chain reorganizations",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})
)
