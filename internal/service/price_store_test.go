package service

import (
	"sync"
	"testing"
	"time"

	"pricestream/internal/domain"
)

func TestPriceStore_BatchedMerge(t *testing.T) {
	store := NewPriceStore(false)
	at := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	changed := store.Merge([]domain.PriceUpdate{
		{Symbol: "AAPL", Price: 100.0},
		{Symbol: "MSFT", Price: 50.0},
	}, at)
	if !changed {
		t.Fatal("Merge should report a change")
	}

	snap := store.Snapshot()
	if snap.Version != 1 {
		t.Errorf("Expected one mutation, got version %d", snap.Version)
	}
	prices := snap.Prices()
	if len(prices) != 2 || prices["AAPL"] != 100.0 || prices["MSFT"] != 50.0 {
		t.Errorf("Unexpected prices: %v", prices)
	}
	if snap.LastUpdated != "MSFT" || !snap.LastUpdatedAt.Equal(at) {
		t.Errorf("Unexpected last updated marker: %s at %v", snap.LastUpdated, snap.LastUpdatedAt)
	}
}

func TestPriceStore_EmptyMergeIsNoop(t *testing.T) {
	store := NewPriceStore(false)
	if store.Merge(nil, time.Now()) {
		t.Error("empty merge should not change the store")
	}
	if store.Version() != 0 {
		t.Errorf("Expected version 0, got %d", store.Version())
	}
}

func TestPriceStore_TrackPrevious(t *testing.T) {
	t.Run("Enabled", func(t *testing.T) {
		store := NewPriceStore(true)
		store.Merge([]domain.PriceUpdate{{Symbol: "BTC-USD", Price: 43000}}, time.Now())
		store.Merge([]domain.PriceUpdate{{Symbol: "BTC-USD", Price: 43100}}, time.Now())

		e, ok := store.Get("BTC-USD")
		if !ok {
			t.Fatal("BTC-USD should exist")
		}
		if e.LastPrice == nil || *e.LastPrice != 43000 {
			t.Fatalf("Expected previous price 43000, got %v", e.LastPrice)
		}
		if e.Direction() != "up" {
			t.Errorf("Expected up, got %s", e.Direction())
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		store := NewPriceStore(false)
		store.Merge([]domain.PriceUpdate{{Symbol: "AAPL", Price: 1}}, time.Now())
		store.Merge([]domain.PriceUpdate{{Symbol: "AAPL", Price: 2}}, time.Now())

		e, _ := store.Get("AAPL")
		if e.LastPrice != nil {
			t.Error("LastPrice should stay nil")
		}
	})
}

func TestPriceStore_SnapshotIsImmutable(t *testing.T) {
	store := NewPriceStore(false)
	store.Merge([]domain.PriceUpdate{{Symbol: "AAPL", Price: 1}}, time.Now())

	snap := store.Snapshot()
	store.Merge([]domain.PriceUpdate{{Symbol: "AAPL", Price: 2}, {Symbol: "TSLA", Price: 3}}, time.Now())

	if p, _ := snap.Price("AAPL"); p != 1 {
		t.Errorf("snapshot changed after merge: %v", p)
	}
	if len(snap.Entries) != 1 {
		t.Errorf("snapshot gained entries: %v", snap.Entries)
	}
	if got := store.Symbols(); len(got) != 2 || got[0] != "AAPL" {
		t.Errorf("Unexpected symbols: %v", got)
	}
}

// Readers must never see half of a batch.
func TestPriceStore_NoTearing(t *testing.T) {
	store := NewPriceStore(false)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 2000; i++ {
			p := float64(i)
			store.Merge([]domain.PriceUpdate{
				{Symbol: "AAPL", Price: p},
				{Symbol: "MSFT", Price: p},
			}, time.Now())
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Snapshot()
				a, okA := snap.Price("AAPL")
				m, okM := snap.Price("MSFT")
				if okA != okM || a != m {
					t.Errorf("torn read: AAPL=%v MSFT=%v", a, m)
					return
				}
			}
		}()
	}
	wg.Wait()
}
