package service

import (
	"maps"
	"sort"
	"sync"
	"time"

	"pricestream/internal/domain"
)

// PriceStore holds the latest price per symbol. The connection supervisor is
// the only writer; readers get immutable snapshots.
type PriceStore struct {
	mu            sync.RWMutex
	entries       map[string]domain.PriceEntry
	lastUpdated   string
	lastUpdatedAt time.Time
	version       uint64
	trackPrevious bool
}

// NewPriceStore creates an empty store. With trackPrevious the replaced price
// is kept in LastPrice.
func NewPriceStore(trackPrevious bool) *PriceStore {
	return &PriceStore{
		entries:       make(map[string]domain.PriceEntry),
		trackPrevious: trackPrevious,
	}
}

// Merge applies all updates of one frame under a single lock, so readers see
// either none or all of them. Returns false when updates is empty.
func (s *PriceStore) Merge(updates []domain.PriceUpdate, at time.Time) bool {
	if len(updates) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		entry := domain.PriceEntry{Symbol: u.Symbol, Price: u.Price, UpdatedAt: at}
		if prev, ok := s.entries[u.Symbol]; ok && s.trackPrevious {
			last := prev.Price
			entry.LastPrice = &last
		}
		s.entries[u.Symbol] = entry
	}
	s.lastUpdated = updates[len(updates)-1].Symbol
	s.lastUpdatedAt = at
	s.version++
	return true
}

// Snapshot returns a copy of the current state
func (s *PriceStore) Snapshot() domain.PriceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.PriceSnapshot{
		Entries:       maps.Clone(s.entries),
		LastUpdated:   s.lastUpdated,
		LastUpdatedAt: s.lastUpdatedAt,
		Version:       s.version,
	}
}

// Get returns the entry for a specific symbol
func (s *PriceStore) Get(symbol string) (domain.PriceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	return e, ok
}

// Symbols returns all known symbols sorted
func (s *PriceStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for sym := range s.entries {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Version increments once per Merge
func (s *PriceStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
