package domain

import (
	"time"
)

// WatchedSymbol is a persisted watchlist entry for one feed
type WatchedSymbol struct {
	Symbol     string    `gorm:"primaryKey" json:"symbol"` // Wire identifier, e.g. BINANCE:BTCUSDT
	Feed       string    `gorm:"primaryKey" json:"feed"`
	IsFavorite bool      `json:"is_favorite" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
