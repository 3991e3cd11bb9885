package domain

import (
	"sort"
	"time"
)

// PriceEntry is the latest price for one symbol.
type PriceEntry struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	LastPrice *float64  `json:"last_price,omitempty"` // Only set when previous prices are tracked
	UpdatedAt time.Time `json:"updated_at"`
}

// Direction returns "up", "down", or "flat" compared with the previous price
func (e PriceEntry) Direction() string {
	if e.LastPrice == nil {
		return "flat"
	}
	switch {
	case e.Price > *e.LastPrice:
		return "up"
	case e.Price < *e.LastPrice:
		return "down"
	default:
		return "flat"
	}
}

// PriceSnapshot is an immutable point-in-time copy of the price store.
type PriceSnapshot struct {
	Entries       map[string]PriceEntry `json:"entries"`
	LastUpdated   string                `json:"last_updated,omitempty"`
	LastUpdatedAt time.Time             `json:"last_updated_at"`
	Version       uint64                `json:"version"`
}

// Price returns the latest price for symbol.
func (s PriceSnapshot) Price(symbol string) (float64, bool) {
	e, ok := s.Entries[symbol]
	return e.Price, ok
}

// Prices flattens the snapshot into symbol -> price.
func (s PriceSnapshot) Prices() map[string]float64 {
	out := make(map[string]float64, len(s.Entries))
	for sym, e := range s.Entries {
		out[sym] = e.Price
	}
	return out
}

// Sorted returns the entries ordered by symbol.
func (s PriceSnapshot) Sorted() []PriceEntry {
	out := make([]PriceEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Highlighted reports whether symbol was the most recent update and that
// update is younger than window. Consumers use it for transient highlights.
func (s PriceSnapshot) Highlighted(symbol string, now time.Time, window time.Duration) bool {
	if s.LastUpdated == "" || s.LastUpdated != symbol {
		return false
	}
	return now.Sub(s.LastUpdatedAt) < window
}
