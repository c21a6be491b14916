package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unaggregatedCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attestpipe_aggregation_unaggregated_count",
		Help: "Number of distinct unaggregated votes currently held in the attestation pool.",
	})
	aggregatedBucketCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attestpipe_aggregation_aggregated_bucket_count",
		Help: "Number of distinct vote-content buckets currently holding aggregates.",
	})
	trimmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestpipe_aggregation_trimmed_total",
		Help: "Entries dropped from the attestation pool at finality, by kind.",
	}, []string{"kind"})
)
