package mempool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supernova_mempool_transactions",
		Help: "Transactions currently pooled",
	})

	mempoolBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supernova_mempool_bytes",
		Help: "Serialized bytes currently pooled",
	})
)
