package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pricestream/internal/codec"
	"pricestream/internal/domain"
	"pricestream/internal/engine"
	"pricestream/internal/infra"
	"pricestream/internal/infra/publisher"
	"pricestream/internal/infra/storage"
	"pricestream/internal/markethours"
)

// Bootstrap orchestrates the application startup and shutdown sequence
type Bootstrap struct {
	Config     *infra.Config
	Logger     *slog.Logger
	Metrics    *infra.Metrics
	Storage    *storage.Storage
	Oracle     *markethours.Oracle
	Supervisor *engine.Supervisor
	Publisher  *publisher.Async

	configPath string
	feed       string
	redis      *publisher.RedisPublisher
	server     *http.Server

	// Only touched from the supervisor goroutine via onUpdate
	lastPhase   domain.ConnectionState
	lastVersion uint64
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{configPath: configPath}
}

// Initialize loads config and builds every component. Nothing connects yet
// except Redis, which is optional.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping PriceStream...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)

	// 3. Metrics
	b.Metrics = infra.NewMetrics()

	// 4. Provider dialect
	dialect, err := codec.Lookup(cfg.Feed.Provider)
	if err != nil {
		return err
	}
	b.feed = dialect.Name()

	// 5. Storage (DB), seeded with the configured symbols
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	if err := store.AddSymbols(ctx, b.feed, cfg.Feed.Symbols); err != nil {
		return err
	}
	if err := b.applyStoredSettings(ctx); err != nil {
		return err
	}
	slog.Info("✅ Database initialized", slog.String("feed", b.feed))

	// 6. Market hours
	oracle, err := markethours.NewOracle(cfg.MarketHours.Holidays)
	if err != nil {
		return err
	}
	b.Oracle = oracle

	// 7. Optional Redis fan-out
	if cfg.Redis.Enabled {
		rp, err := publisher.NewRedisPublisher(ctx, publisher.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Channel:   cfg.Redis.Channel,
			TTL:       time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		})
		if err != nil {
			slog.Warn("Redis unavailable, fan-out disabled", slog.Any("error", err))
		} else {
			b.redis = rp
			b.Publisher = publisher.NewAsync(rp, "redis", publisher.DefaultQueueSize, b.Metrics, b.Logger)
			slog.Info("✅ Redis publisher ready", slog.String("addr", cfg.Redis.Addr))
		}
	}

	// 8. Supervisor
	ready, reconnect, ping, maxBackoff, writeTimeout, handshake := cfg.Timings()
	b.Supervisor = engine.NewSupervisor(engine.Config{
		Feed:           b.feed,
		URL:            cfg.Feed.URL,
		Token:          cfg.Feed.Token,
		ReadyDelay:     ready,
		ReconnectDelay: reconnect,
		PingInterval:   ping,
		MaxBackoff:     maxBackoff,
		WriteTimeout:   writeTimeout,
		Greeting:       cfg.Feed.Greeting,
	}, dialect, engine.Options{
		Dialer:   engine.NewWebsocketDialer(handshake, cfg.Feed.UserAgent),
		Logger:   b.Logger,
		Metrics:  b.Metrics,
		OnUpdate: b.onUpdate,
	})

	return nil
}

// Run connects the feed and blocks until ctx is cancelled, then shuts down.
func (b *Bootstrap) Run(ctx context.Context) error {
	if b.Publisher != nil {
		b.Publisher.Start(ctx)
	}
	b.Supervisor.Start(ctx)

	open, status := b.Oracle.IsOpen(time.Now())
	slog.Info("🕒 Market hours", slog.Bool("open", open), slog.String("status", status))

	rows, err := b.Storage.Watchlist(ctx, b.feed)
	if err != nil {
		return errors.Join(err, b.Shutdown())
	}
	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		symbols = append(symbols, row.Symbol)
	}

	b.Supervisor.Connect()
	b.Supervisor.Subscribe(symbols...)
	slog.InfoContext(ctx, "✅ Feed supervisor started", slog.Int("symbols", len(symbols)))

	if addr := b.Config.Server.Addr; addr != "" {
		handlers := NewHandlers(b.feed, b.Supervisor, b.Storage, b.Oracle, b.Metrics,
			time.Duration(b.Config.Display.HighlightMS)*time.Millisecond)
		b.server = NewServer(addr, handlers, b.Metrics.Handler())
		go func() {
			slog.Info("🌐 Status server started", slog.String("addr", addr))
			if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Status server failed", slog.Any("error", err))
			}
		}()
	}

	slog.InfoContext(ctx, "✨ PriceStream fully operational. Press Ctrl+C to exit.")

	<-ctx.Done()
	return b.Shutdown()
}

// Shutdown stops components in reverse start order
func (b *Bootstrap) Shutdown() error {
	slog.Info("👋 Shutting down gracefully...")

	var errs []error
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, b.server.Shutdown(ctx))
		cancel()
	}
	if b.Supervisor != nil {
		b.Supervisor.Close()
	}
	if b.Publisher != nil {
		b.Publisher.Stop()
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.Storage != nil {
		errs = append(errs, b.Storage.Close())
	}
	return errors.Join(errs...)
}

// applyStoredSettings overrides config values with settings saved through
// the HTTP API. Invalid stored values are ignored.
func (b *Bootstrap) applyStoredSettings(ctx context.Context) error {
	settings, err := b.Storage.LoadConfigMap(ctx)
	if err != nil {
		return err
	}
	if v, ok := settings[SettingHighlightMS]; ok {
		d, err := parseHighlight(v)
		if err != nil {
			slog.Warn("Ignoring stored setting", slog.String("key", SettingHighlightMS), slog.Any("error", err))
		} else {
			b.Config.Display.HighlightMS = int(d / time.Millisecond)
		}
	}
	return nil
}

// onUpdate runs on the supervisor goroutine and must not block.
func (b *Bootstrap) onUpdate(u domain.Update) {
	phase := u.Phase()
	if phase != b.lastPhase {
		attrs := []any{slog.String("from", b.lastPhase.String()), slog.String("to", phase.String())}
		if u.Err != nil {
			attrs = append(attrs, slog.Any("error", u.Err))
		}
		slog.Info("Connection state changed", attrs...)
		b.lastPhase = phase
	}

	if m := u.Message; m != nil {
		switch m.Kind {
		case domain.MessageChat:
			slog.Info("💬 Message received", slog.String("text", m.Text))
		case domain.MessageError:
			slog.Warn("Provider error", slog.String("message", m.Text))
		}
	}

	if u.Prices.Version == b.lastVersion {
		return
	}
	b.lastVersion = u.Prices.Version
	for _, e := range publisher.ChangedEntries(u.Prices) {
		slog.Debug("Price updated",
			slog.String("symbol", e.Symbol),
			slog.Float64("price", e.Price),
			slog.String("direction", e.Direction()))
	}
	if b.Publisher != nil {
		b.Publisher.Offer(b.feed, u.Prices)
	}
}
