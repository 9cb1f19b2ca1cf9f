package feed

import (
	// Go Internal Packages
	"context"
	"sync"

	// Local Packages
	models "rwa-stream/models"
)

// Feed keeps the most recent parsed transactions for display. When full the
// oldest entry is overwritten.
type Feed struct {
	mu    sync.RWMutex
	items []models.ParsedTransaction
	next  int
	count int
	total int64
}

func New(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 50
	}
	return &Feed{items: make([]models.ParsedTransaction, capacity)}
}

func (f *Feed) Name() string { return "feed" }

func (f *Feed) Write(_ context.Context, tx *models.ParsedTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[f.next] = *tx
	f.next = (f.next + 1) % len(f.items)
	if f.count < len(f.items) {
		f.count++
	}
	f.total++
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything buffered.
func (f *Feed) Recent(limit int) []models.ParsedTransaction {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := f.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.ParsedTransaction, 0, n)
	for i := 1; i <= n; i++ {
		idx := (f.next - i + len(f.items)) % len(f.items)
		out = append(out, f.items[idx])
	}
	return out
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Total counts every transaction ever written, including evicted ones.
func (f *Feed) Total() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.total
}
