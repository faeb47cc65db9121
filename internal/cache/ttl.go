package cache

import "github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"

// TTL policy bounds and thresholds, in seconds. The exact curve is a
// business tunable; the hard requirements are determinism and a positive,
// bounded output.
const (
	ttlBaseSeconds   = 6 * 60 * 60  // default lifetime
	ttlDenseSeconds  = 60 * 60      // busy batches change often, expire sooner
	ttlSparseSeconds = 24 * 60 * 60 // near-empty batches rarely improve, keep longer
	ttlMinSeconds    = 30 * 60
	ttlMaxSeconds    = 24 * 60 * 60

	denseBatchSize  = 50
	sparseBatchSize = 3
)

// ComputeTTLSeconds derives a cache lifetime from an aggregated batch.
// Same batch, same TTL.
func ComputeTTLSeconds(events []types.EventRecord) int {
	ttl := ttlBaseSeconds
	switch {
	case len(events) >= denseBatchSize:
		ttl = ttlDenseSeconds
	case len(events) <= sparseBatchSize:
		ttl = ttlSparseSeconds
	}

	if ttl < ttlMinSeconds {
		ttl = ttlMinSeconds
	}
	if ttl > ttlMaxSeconds {
		ttl = ttlMaxSeconds
	}
	return ttl
}
