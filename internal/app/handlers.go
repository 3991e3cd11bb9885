package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"pricestream/internal/domain"
	"pricestream/internal/infra"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Feed is the supervisor surface the handlers drive
type Feed interface {
	domain.FeedClient
	SendText(text string)
	Reconnecting() bool
	Subscriptions() (pending, active []string)
}

// Store persists the watchlist and runtime settings
type Store interface {
	domain.WatchlistRepository
	ToggleFavorite(ctx context.Context, feed, symbol string) (bool, error)
	SaveConfig(ctx context.Context, key, value string) error
	LoadConfigMap(ctx context.Context) (map[string]string, error)
}

// SettingHighlightMS is the stored override of display.highlight_ms
const SettingHighlightMS = "highlight_ms"

// Handlers serves status and watchlist control for one feed
type Handlers struct {
	feedName  string
	feed      Feed
	store     Store
	oracle    domain.MarketHoursOracle
	metrics   *infra.Metrics
	highlight atomic.Int64 // time.Duration
	now       func() time.Time
}

// NewHandlers creates the handler set. metrics may be nil.
func NewHandlers(feedName string, feed Feed, store Store, oracle domain.MarketHoursOracle,
	metrics *infra.Metrics, highlight time.Duration) *Handlers {
	h := &Handlers{
		feedName: feedName,
		feed:     feed,
		store:    store,
		oracle:   oracle,
		metrics:  metrics,
		now:      time.Now,
	}
	h.highlight.Store(int64(highlight))
	return h
}

// PriceView is one row of the status price table
type PriceView struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	LastPrice   *float64  `json:"last_price,omitempty"`
	Direction   string    `json:"direction"`
	Highlighted bool      `json:"highlighted"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MarketView describes the market-hours oracle's answer
type MarketView struct {
	Open     bool      `json:"open"`
	Message  string    `json:"message"`
	NextOpen time.Time `json:"next_open"`
}

// Status is the /status document
type Status struct {
	Feed         string                 `json:"feed"`
	State        string                 `json:"state"`
	Reconnecting bool                   `json:"reconnecting"`
	LastError    string                 `json:"last_error,omitempty"`
	Pending      []string               `json:"pending"`
	Active       []string               `json:"active"`
	Prices       []PriceView            `json:"prices"`
	LastUpdated  string                 `json:"last_updated,omitempty"`
	Market       *MarketView            `json:"market,omitempty"`
	Metrics      *infra.MetricsSnapshot `json:"metrics,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

type symbolsRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
}

type settingRequest struct {
	Value string `json:"value" binding:"required"`
}

type messageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"feed":   h.feedName,
		"state":  h.phase().String(),
	})
}

// Status reports connection state, subscriptions and prices
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.buildStatus())
}

func (h *Handlers) phase() domain.ConnectionState {
	return domain.Update{State: h.feed.State(), Reconnecting: h.feed.Reconnecting()}.Phase()
}

func (h *Handlers) buildStatus() Status {
	now := h.now()
	snap := h.feed.Prices()
	pending, active := h.feed.Subscriptions()

	st := Status{
		Feed:         h.feedName,
		State:        h.phase().String(),
		Reconnecting: h.feed.Reconnecting(),
		Pending:      nonNil(pending),
		Active:       nonNil(active),
		Prices:       make([]PriceView, 0, len(snap.Entries)),
		LastUpdated:  snap.LastUpdated,
		Timestamp:    now,
	}
	if err := h.feed.LastError(); err != nil {
		st.LastError = err.Error()
	}

	highlight := time.Duration(h.highlight.Load())
	for _, e := range snap.Sorted() {
		st.Prices = append(st.Prices, PriceView{
			Symbol:      e.Symbol,
			Price:       e.Price,
			LastPrice:   e.LastPrice,
			Direction:   e.Direction(),
			Highlighted: snap.Highlighted(e.Symbol, now, highlight),
			UpdatedAt:   e.UpdatedAt,
		})
	}

	if h.oracle != nil {
		open, msg := h.oracle.IsOpen(now)
		st.Market = &MarketView{Open: open, Message: msg, NextOpen: h.oracle.NextOpen(now)}
	}
	if h.metrics != nil {
		m := h.metrics.Snapshot()
		st.Metrics = &m
	}
	return st
}

// ListWatchlist returns the persisted symbols, favorites first
func (h *Handlers) ListWatchlist(c *gin.Context) {
	rows, err := h.store.Watchlist(c.Request.Context(), h.feedName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": h.feedName, "symbols": rows})
}

// AddSymbols persists symbols and subscribes to them
func (h *Handlers) AddSymbols(c *gin.Context) {
	var req symbolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbols := domain.CleanSymbols(req.Symbols)
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidSymbol.Error()})
		return
	}

	if err := h.store.AddSymbols(c.Request.Context(), h.feedName, symbols); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.feed.Subscribe(symbols...)
	c.JSON(http.StatusAccepted, gin.H{"subscribed": symbols})
}

// RemoveSymbol drops a symbol from the watchlist and unsubscribes
func (h *Handlers) RemoveSymbol(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidSymbol.Error()})
		return
	}

	if err := h.store.RemoveSymbols(c.Request.Context(), h.feedName, []string{symbol}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.feed.Unsubscribe(symbol)
	c.JSON(http.StatusAccepted, gin.H{"unsubscribed": symbol})
}

// ToggleFavorite flips the favorite flag of a watched symbol
func (h *Handlers) ToggleFavorite(c *gin.Context) {
	symbol := c.Param("symbol")
	fav, err := h.store.ToggleFavorite(c.Request.Context(), h.feedName, symbol)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not in watchlist"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "is_favorite": fav})
}

// Reconnect restarts the connection. Active symbols are re-sent once ready.
func (h *Handlers) Reconnect(c *gin.Context) {
	h.feed.Connect()
	c.JSON(http.StatusAccepted, gin.H{"status": "connecting"})
}

// Disconnect closes the connection and cancels any pending reconnect
func (h *Handlers) Disconnect(c *gin.Context) {
	h.feed.Disconnect()
	c.JSON(http.StatusAccepted, gin.H{"status": "disconnecting"})
}

// SendMessage writes a raw text frame, used by chat feeds
func (h *Handlers) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.feed.State().IsConnected() {
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrNotConnected.Error()})
		return
	}
	h.feed.SendText(req.Text)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// ListSettings returns the stored runtime settings
func (h *Handlers) ListSettings(c *gin.Context) {
	settings, err := h.store.LoadConfigMap(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSetting validates, applies and persists one runtime setting
func (h *Handlers) UpdateSetting(c *gin.Context) {
	key := c.Param("key")
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch key {
	case SettingHighlightMS:
		d, err := parseHighlight(req.Value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := h.store.SaveConfig(c.Request.Context(), key, req.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.highlight.Store(int64(d))
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting " + key})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

// parseHighlight reads a non-negative millisecond count
func parseHighlight(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || ms < 0 {
		return 0, &domain.ConfigError{Field: SettingHighlightMS, Err: fmt.Errorf("invalid milliseconds %q", value)}
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
