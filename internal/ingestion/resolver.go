package ingestion

import "strings"

// MatchFunc decides whether a normalized lookup key is an acceptable
// fallback for a normalized candidate when no exact key exists.
type MatchFunc func(key, candidate string) bool

// ContainsMatch accepts keys that start with the candidate, are a prefix of
// it, or contain it. It tolerates variants such as "ALMACENDESTINO" for
// "ALMACEN" but short candidates can hit unrelated headers ("NO" matches
// "NOMINA").
func ContainsMatch(key, candidate string) bool {
	return strings.HasPrefix(key, candidate) ||
		strings.HasPrefix(candidate, key) ||
		strings.Contains(key, candidate)
}

// ExactOnly disables fallback matching.
func ExactOnly(string, string) bool {
	return false
}

// Lookup maps normalized header keys to trimmed cell values. Iteration
// follows insertion order so fallback matching is deterministic.
type Lookup struct {
	keys   []string
	values map[string]string
}

// NewLookup returns an empty lookup sized for n headers.
func NewLookup(n int) *Lookup {
	return &Lookup{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// Add stores value under the normalized form of header. The first header
// that normalizes to a given key wins; later duplicates are ignored.
func (l *Lookup) Add(header, value string) {
	key := NormalizeHeader(header)
	if _, exists := l.values[key]; exists {
		return
	}
	l.keys = append(l.keys, key)
	l.values[key] = strings.TrimSpace(value)
}

// Get returns the value stored under an already normalized key.
func (l *Lookup) Get(key string) (string, bool) {
	value, ok := l.values[key]
	return value, ok
}

// Len reports the number of distinct keys.
func (l *Lookup) Len() int {
	return len(l.keys)
}

// Resolver finds canonical field values in a row lookup.
type Resolver struct {
	match MatchFunc
}

// NewResolver builds a resolver using match for the fallback pass.
// A nil match uses ContainsMatch.
func NewResolver(match MatchFunc) Resolver {
	if match == nil {
		match = ContainsMatch
	}
	return Resolver{match: match}
}

// Resolve returns the first non-blank value for the candidates, in priority
// order. Each candidate is tried as an exact key first and then against
// every non-blank entry through the match func before moving to the next
// candidate.
func (r Resolver) Resolve(lookup *Lookup, candidates ...string) (string, bool) {
	if lookup == nil {
		return "", false
	}
	match := r.match
	if match == nil {
		match = ContainsMatch
	}

	for _, candidate := range candidates {
		want := NormalizeHeader(candidate)
		if want == "" {
			continue
		}

		if value, ok := lookup.values[want]; ok && value != "" {
			return value, true
		}

		for _, key := range lookup.keys {
			if key == "" {
				continue
			}
			value := lookup.values[key]
			if value == "" {
				continue
			}
			if match(key, want) {
				return value, true
			}
		}
	}

	return "", false
}
