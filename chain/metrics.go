package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aggregate counters. Individual drop reasons are not exported anywhere a
// network peer could observe; operators see totals only.
var (
	blocksAppliedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_pipeline_blocks_applied_total",
		Help: "Blocks that passed the state transition and were indexed.",
	})
	blocksRejectedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_pipeline_blocks_rejected_total",
		Help: "Blocks dropped by validation.",
	})
	blocksWaitingCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_pipeline_blocks_waiting_total",
		Help: "Blocks parked for a missing parent or a future slot.",
	})
	attestationsDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_pool_attestations_dropped_total",
		Help: "Attestations discarded by the pool.",
	})
	attestationsPooledCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_pool_attestations_added_total",
		Help: "Attestations staged in the pool.",
	})
)
