package poller

import (
	// External Packages
	lru "github.com/hashicorp/golang-lru/v2"
)

// seenSet remembers forwarded hashes. It is bounded so a long session does not
// grow without limit; the oldest hashes are evicted first.
type seenSet struct {
	cache *lru.Cache[string, struct{}]
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = 50000
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &seenSet{cache: cache}
}

// markNew records hash and reports whether it was not seen before.
func (s *seenSet) markNew(hash string) bool {
	found, _ := s.cache.ContainsOrAdd(hash, struct{}{})
	return !found
}

func (s *seenSet) len() int { return s.cache.Len() }
