package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"pricestream/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisOptions configures the Redis fan-out
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string        // Keys are <prefix>:<feed>:<symbol>
	Channel   string        // Pub/Sub channel for live updates
	TTL       time.Duration // Expiry of the latest-price keys
}

// RedisPublisher writes the latest price per symbol to Redis and announces
// every change on a Pub/Sub channel.
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
}

var _ domain.PricePublisher = (*RedisPublisher)(nil)

// pricePayload is the JSON document stored and published per symbol
type pricePayload struct {
	Feed      string          `json:"feed"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Direction string          `json:"direction"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewRedisPublisher connects and pings the server
func NewRedisPublisher(ctx context.Context, opts RedisOptions) (*RedisPublisher, error) {
	if opts.Addr == "" {
		return nil, &domain.ConfigError{Field: "redis.addr", Err: errors.New("redis not configured")}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, &domain.NetworkError{Op: "redis ping", Err: err, Retriable: true}
	}

	return newRedisPublisher(client, opts), nil
}

func newRedisPublisher(client *redis.Client, opts RedisOptions) *RedisPublisher {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "price"
	}
	if opts.Channel == "" {
		opts.Channel = "prices"
	}
	return &RedisPublisher{
		client:  client,
		prefix:  opts.KeyPrefix,
		channel: opts.Channel,
		ttl:     opts.TTL,
	}
}

// Key returns the Redis key holding the latest price of symbol on feed
func (p *RedisPublisher) Key(feed, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, feed, symbol)
}

// Publish writes the entries changed by the most recent merge in one
// pipeline. Snapshots without changes are skipped.
func (p *RedisPublisher) Publish(ctx context.Context, feed string, snap domain.PriceSnapshot) error {
	changed := ChangedEntries(snap)
	if len(changed) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, e := range changed {
		data, err := encodePayload(feed, e)
		if err != nil {
			return &domain.EncodingError{Op: "price payload", Err: err}
		}
		pipe.Set(ctx, p.Key(feed, e.Symbol), data, p.ttl)
		pipe.Publish(ctx, p.channel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// ChangedEntries returns the entries written by the most recent merge,
// ordered by symbol. Every entry of one batch carries the same timestamp.
func ChangedEntries(snap domain.PriceSnapshot) []domain.PriceEntry {
	if snap.LastUpdated == "" {
		return nil
	}
	var out []domain.PriceEntry
	for _, e := range snap.Sorted() {
		if e.UpdatedAt.Equal(snap.LastUpdatedAt) {
			out = append(out, e)
		}
	}
	return out
}

func encodePayload(feed string, e domain.PriceEntry) ([]byte, error) {
	if math.IsInf(e.Price, 0) || math.IsNaN(e.Price) {
		return nil, fmt.Errorf("non-finite price %v for %s", e.Price, e.Symbol)
	}
	return json.Marshal(pricePayload{
		Feed:      feed,
		Symbol:    e.Symbol,
		Price:     decimal.NewFromFloat(e.Price),
		Direction: e.Direction(),
		UpdatedAt: e.UpdatedAt,
	})
}
