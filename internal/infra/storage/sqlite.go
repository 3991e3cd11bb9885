package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"pricestream/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage persists the watchlist and key/value settings in SQLite
type Storage struct {
	db *gorm.DB
}

var _ domain.WatchlistRepository = (*Storage)(nil)

// NewStorage opens (and migrates) the database at path. An empty path uses
// the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		var err error
		path, err = getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go SQLite driver
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.WatchedSymbol{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "PriceStream", "data", "pricestream.db"), nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Watchlist Operations
// ======================================================================================

// Watchlist returns the symbols stored for feed, favorites first
func (s *Storage) Watchlist(ctx context.Context, feed string) ([]domain.WatchedSymbol, error) {
	var rows []domain.WatchedSymbol
	err := s.db.WithContext(ctx).
		Where("feed = ?", feed).
		Order("is_favorite DESC").
		Order("symbol ASC").
		Find(&rows).Error
	return rows, err
}

// AddSymbols inserts symbols for feed. Existing rows are left untouched.
func (s *Storage) AddSymbols(ctx context.Context, feed string, symbols []string) error {
	symbols = domain.CleanSymbols(symbols)
	if len(symbols) == 0 {
		return nil
	}

	rows := make([]domain.WatchedSymbol, 0, len(symbols))
	for _, sym := range symbols {
		rows = append(rows, domain.WatchedSymbol{Symbol: sym, Feed: feed})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// RemoveSymbols deletes symbols for feed. Unknown symbols are ignored.
func (s *Storage) RemoveSymbols(ctx context.Context, feed string, symbols []string) error {
	symbols = domain.CleanSymbols(symbols)
	if len(symbols) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("feed = ? AND symbol IN ?", feed, symbols).
		Delete(&domain.WatchedSymbol{}).Error
}

// ToggleFavorite toggles the favorite status of a watched symbol
func (s *Storage) ToggleFavorite(ctx context.Context, feed, symbol string) (bool, error) {
	var row domain.WatchedSymbol
	if err := s.db.WithContext(ctx).First(&row, "feed = ? AND symbol = ?", feed, symbol).Error; err != nil {
		return false, err
	}

	row.IsFavorite = !row.IsFavorite
	err := s.db.WithContext(ctx).Save(&row).Error
	return row.IsFavorite, err
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(ctx context.Context, key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.WithContext(ctx).Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap(ctx context.Context) (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.WithContext(ctx).Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
