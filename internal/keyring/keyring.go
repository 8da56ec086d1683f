// Package keyring rotates among a provider's configured API keys.
//
// The rotation index is shared by every in-flight request for a provider,
// so consecutive requests load-balance across keys rather than all starting
// from the first one. Keys that already failed within a request are passed
// back as an exclusion set and skipped.
package keyring

import (
	"errors"
	"sync"
)

// ErrExhausted is returned when every configured key is excluded.
var ErrExhausted = errors.New("all provider API keys exhausted")

// Ring holds the per-provider rotation state for the process lifetime.
type Ring struct {
	mu   sync.Mutex
	next map[string]int
}

// New creates an empty ring.
func New() *Ring {
	return &Ring{next: make(map[string]int)}
}

// NextKey returns the next key for a provider, round-robin from the shared
// index, skipping keys in excluded. The shared index advances by one on
// every successful selection. Returns ErrExhausted when every key is
// excluded.
func (r *Ring) NextKey(provider string, keys []string, excluded map[string]struct{}) (string, error) {
	if len(keys) == 0 {
		return "", ErrExhausted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(excluded) >= len(keys) {
		return "", ErrExhausted
	}

	// The exclusion check above guarantees at least one viable key within
	// one full revolution.
	for i := 0; i < len(keys); i++ {
		k := keys[r.next[provider]%len(keys)]
		r.next[provider]++
		if _, skip := excluded[k]; !skip {
			return k, nil
		}
	}
	return "", ErrExhausted
}
