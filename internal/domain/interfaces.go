package domain

import (
	"context"
	"time"
)

// FeedClient is the caller-facing surface of a streaming connection.
// Every method returns immediately; outcomes arrive through Update.
type FeedClient interface {
	Connect()
	Subscribe(symbols ...string)
	Unsubscribe(symbols ...string)
	Disconnect()
	State() ConnectionState
	LastError() error
	Prices() PriceSnapshot
}

// MarketHoursOracle answers whether the market is open, for display only.
type MarketHoursOracle interface {
	IsOpen(now time.Time) (bool, string)
	NextOpen(now time.Time) time.Time
}

// WatchlistRepository persists the symbols a feed should stream
type WatchlistRepository interface {
	Watchlist(ctx context.Context, feed string) ([]WatchedSymbol, error)
	AddSymbols(ctx context.Context, feed string, symbols []string) error
	RemoveSymbols(ctx context.Context, feed string, symbols []string) error
}

// PricePublisher fans out store changes to an external sink
type PricePublisher interface {
	Publish(ctx context.Context, feed string, snap PriceSnapshot) error
}
