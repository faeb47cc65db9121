// Package aggregate merges and deduplicates event records collected from
// multiple per-category fetches.
package aggregate

import (
	"sort"
	"strings"

	"github.com/alexandercfriedrich/where2go-clean-sub008/pkg/types"
)

// Merge flattens per-category results into a single slice. Categories are
// walked in sorted order so the output is stable regardless of the order
// in which fetches completed.
func Merge(perCategory map[string][]types.EventRecord) []types.EventRecord {
	categories := make([]string, 0, len(perCategory))
	for category := range perCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var merged []types.EventRecord
	for _, category := range categories {
		merged = append(merged, perCategory[category]...)
	}
	return merged
}

// Deduplicate drops events whose fingerprint was already seen, keeping the
// first occurrence in input order. Idempotent: running it twice yields the
// same slice.
func Deduplicate(events []types.EventRecord) []types.EventRecord {
	seen := make(map[string]struct{}, len(events))
	out := make([]types.EventRecord, 0, len(events))

	for _, event := range events {
		fp := Fingerprint(event)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, event)
	}
	return out
}

// Fingerprint builds the dedup identity of an event: the normalized
// (title, date, venue) triple. Two listings of the same event from
// different categories or sources collapse onto one fingerprint.
func Fingerprint(event types.EventRecord) string {
	return strings.ToLower(strings.TrimSpace(event.Title)) + "|" +
		strings.TrimSpace(event.Date) + "|" +
		strings.ToLower(strings.TrimSpace(event.Venue))
}
