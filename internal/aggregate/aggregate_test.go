package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

func event(title, date, venue string) types.EventRecord {
	return types.EventRecord{Title: title, Date: date, Venue: venue}
}

// TestMergeStableOrder tests that the merged output does not depend on map
// iteration order: categories are flattened alphabetically.
func TestMergeStableOrder(t *testing.T) {
	perCategory := map[string][]types.EventRecord{
		"theater": {event("Hamlet", "2026-08-30", "Burgtheater")},
		"film":    {event("Premiere", "2026-08-30", "Gartenbaukino")},
		"musik":   {event("Jazzabend", "2026-08-30", "Porgy & Bess")},
	}

	merged := Merge(perCategory)
	require.Len(t, merged, 3)
	assert.Equal(t, "Premiere", merged[0].Title)   // film
	assert.Equal(t, "Jazzabend", merged[1].Title)  // musik
	assert.Equal(t, "Hamlet", merged[2].Title)     // theater
}

// TestDeduplicateFirstWins tests that duplicates collapse onto the first
// occurrence in input order.
func TestDeduplicateFirstWins(t *testing.T) {
	first := event("Jazzabend", "2026-08-30", "Porgy & Bess")
	first.Category = "musik"
	second := event("Jazzabend", "2026-08-30", "Porgy & Bess")
	second.Category = "konzerte"

	out := Deduplicate([]types.EventRecord{first, second, event("Hamlet", "2026-08-30", "Burgtheater")})
	require.Len(t, out, 2)
	assert.Equal(t, "musik", out[0].Category, "first occurrence wins")
	assert.Equal(t, "Hamlet", out[1].Title)
}

// TestDeduplicateIdempotent tests that a second pass changes nothing.
func TestDeduplicateIdempotent(t *testing.T) {
	in := []types.EventRecord{
		event("A", "2026-08-30", "V1"),
		event("a", "2026-08-30", "v1"), // same fingerprint, different casing
		event("B", "2026-08-30", "V2"),
	}

	once := Deduplicate(in)
	twice := Deduplicate(once)
	assert.Equal(t, once, twice)
	assert.Len(t, once, 2)
}

// TestFingerprint tests the dedup identity: case-insensitive on title and
// venue, exact on date.
func TestFingerprint(t *testing.T) {
	a := Fingerprint(event("Jazzabend", "2026-08-30", "Porgy & Bess"))
	b := Fingerprint(event("  JAZZABEND ", "2026-08-30", "porgy & bess"))
	c := Fingerprint(event("Jazzabend", "2026-08-31", "Porgy & Bess"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "different dates are different events")
}
