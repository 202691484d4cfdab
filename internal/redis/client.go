package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ASMdeS/smart-impulse-portfolio/internal/config"
	"github.com/ASMdeS/smart-impulse-portfolio/internal/models"
)

// Client wraps the Redis client with portfolio-specific operations.
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Portfolio summary caching

// SetPortfolioSummary caches the latest cycle's headline metrics so the
// dashboard can serve them without touching postgres.
func (c *Client) SetPortfolioSummary(ctx context.Context, summary models.PortfolioSummary, ttl time.Duration) error {
	jsonData, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal portfolio summary: %w", err)
	}
	return c.rdb.Set(ctx, "portfolio:summary", jsonData, ttl).Err()
}

// GetPortfolioSummary retrieves the cached summary.
func (c *Client) GetPortfolioSummary(ctx context.Context) (*models.PortfolioSummary, error) {
	jsonData, err := c.rdb.Get(ctx, "portfolio:summary").Bytes()
	if err != nil {
		return nil, err
	}

	var summary models.PortfolioSummary
	if err := json.Unmarshal(jsonData, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal portfolio summary: %w", err)
	}
	return &summary, nil
}

// Close price caching

// SetClosePrice caches a ticker's latest close with TTL.
func (c *Client) SetClosePrice(ctx context.Context, ticker string, close decimal.Decimal, ttl time.Duration) error {
	key := fmt.Sprintf("stock:%s:close", ticker)
	return c.rdb.Set(ctx, key, close.String(), ttl).Err()
}

// GetClosePrice retrieves a ticker's cached close.
func (c *Client) GetClosePrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	key := fmt.Sprintf("stock:%s:close", ticker)
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return decimal.Zero, err
	}
	close, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse cached close for %s: %w", ticker, err)
	}
	return close, nil
}

// Pub/Sub operations for real-time dashboard updates

// PublishCycleUpdate notifies subscribers that a new cycle was persisted.
func (c *Client) PublishCycleUpdate(ctx context.Context, summary models.PortfolioSummary) error {
	jsonData, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle update: %w", err)
	}
	return c.rdb.Publish(ctx, "portfolio:updates", jsonData).Err()
}

// Subscribe returns a subscription to a channel
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// Delete removes a key
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}
