// Package domain defines the types and interfaces for the citation verifier
package domain

// CacheCap is the maximum number of cached identifier entries
const CacheCap = 200

// Entry is one cached verification outcome.
// ObservedAt orders entries for the capacity prune; entries observed in the
// same call carry strictly increasing stamps so insertion order survives
type Entry struct {
	Verified   bool  `json:"verified"`
	ObservedAt int64 `json:"observed_at"` // unix milliseconds
}

// Cache is the persisted daily container
type Cache struct {
	Day   string           `json:"day"`
	Items map[string]Entry `json:"items"`
}

// EmptyCache returns a fresh container for day
func EmptyCache(day string) Cache {
	return Cache{Day: day, Items: map[string]Entry{}}
}
