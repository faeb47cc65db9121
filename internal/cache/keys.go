package cache

import (
	"regexp"
	"strings"
)

// nonAlnum matches every run of characters outside [a-z0-9]. Keys are
// normalized after lowercasing, so uppercase never reaches the pattern.
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSegment lowercases a key segment and collapses every run of
// non-alphanumeric characters into a single underscore.
//
// The rule must stay bit-exact: invalidation tooling rebuilds the same
// keys independently. "DJ Sets/Electronic" and "dj_sets_electronic"
// normalize identically.
func NormalizeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Normalize builds the canonical cache key for a (city, date, category)
// triple: `city_date_category`, each segment normalized.
func Normalize(city, date, category string) string {
	return NormalizeSegment(city) + "_" + NormalizeSegment(date) + "_" + NormalizeSegment(category)
}

// RequestKey identifies a (city, date) request without the category, used
// by the duplicate-job index and by prefix invalidation.
func RequestKey(city, date string) string {
	return NormalizeSegment(city) + "_" + NormalizeSegment(date)
}

// UniqueCategories drops duplicate spellings of the same category (equal
// normalized segments), keeping the first occurrence in order. Totals and
// progress counts must always be derived from the unique set.
func UniqueCategories(categories []string) []string {
	seen := make(map[string]struct{}, len(categories))
	out := make([]string, 0, len(categories))
	for _, category := range categories {
		key := NormalizeSegment(category)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, category)
	}
	return out
}
