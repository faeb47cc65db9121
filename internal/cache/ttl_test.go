package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

func batchOf(n int) []types.EventRecord {
	return make([]types.EventRecord, n)
}

// TestComputeTTLSeconds tests the activity-scaled TTL curve: dense batches
// expire sooner, sparse batches last longer, everything stays bounded.
func TestComputeTTLSeconds(t *testing.T) {
	cases := []struct {
		name  string
		batch int
		want  int
	}{
		{"empty batch keeps the long TTL", 0, ttlSparseSeconds},
		{"sparse batch", 3, ttlSparseSeconds},
		{"just above sparse", 4, ttlBaseSeconds},
		{"typical batch", 20, ttlBaseSeconds},
		{"just below dense", 49, ttlBaseSeconds},
		{"dense batch", 50, ttlDenseSeconds},
		{"very dense batch", 500, ttlDenseSeconds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTTLSeconds(batchOf(tc.batch))
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, ttlMinSeconds)
			assert.LessOrEqual(t, got, ttlMaxSeconds)
		})
	}
}

// TestComputeTTLDeterministic tests that the same batch always yields the
// same TTL.
func TestComputeTTLDeterministic(t *testing.T) {
	batch := batchOf(17)
	first := ComputeTTLSeconds(batch)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeTTLSeconds(batch))
	}
}
