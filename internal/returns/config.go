package returns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// FeeType tags the restocking fee variant.
type FeeType string

const (
	FeeNone    FeeType = "none"
	FeeFlat    FeeType = "flat"
	FeePercent FeeType = "percent"
)

// RestockingFee is a tagged variant: flat amount, percent of gross, or none.
type RestockingFee struct {
	Type  FeeType `json:"type"`
	Value float64 `json:"value,omitempty"`
}

// Config is the return policy consulted by eligibility checks and fee
// suggestions.
type Config struct {
	WindowDays          int           `json:"window_days"`
	GraceDays           int           `json:"grace_days"`
	ShippingFee         float64       `json:"shipping_fee"`
	Restocking          RestockingFee `json:"restocking"`
	AutoCancelAfterDays int           `json:"auto_cancel_after_days"`
}

// ConfigProvider resolves the current return configuration.
type ConfigProvider interface {
	Get(ctx context.Context) (Config, error)
}

// PGConfigStore reads the singleton return_settings row, falling back to
// the supplied defaults when no row exists yet.
type PGConfigStore struct {
	pool     *pgxpool.Pool
	defaults Config
}

// NewPGConfigStore constructs PGConfigStore.
func NewPGConfigStore(pool *pgxpool.Pool, defaults Config) *PGConfigStore {
	return &PGConfigStore{pool: pool, defaults: defaults}
}

// Get implements ConfigProvider.
func (s *PGConfigStore) Get(ctx context.Context) (Config, error) {
	if s == nil {
		return Config{}, errors.New("returns: config store not initialised")
	}
	cfg := s.defaults
	var feeType *string
	var feeValue *float64
	err := s.pool.QueryRow(ctx, `
		SELECT window_days, grace_days, shipping_fee, restocking_fee_type, restocking_fee_value, auto_cancel_after_days
		FROM return_settings
		ORDER BY id LIMIT 1`,
	).Scan(&cfg.WindowDays, &cfg.GraceDays, &cfg.ShippingFee, &feeType, &feeValue, &cfg.AutoCancelAfterDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.defaults, nil
		}
		return Config{}, fmt.Errorf("returns: load settings: %w", err)
	}
	cfg.Restocking = RestockingFee{Type: FeeNone}
	if feeType != nil && *feeType != "" && *feeType != string(FeeNone) {
		cfg.Restocking.Type = FeeType(*feeType)
		if feeValue != nil {
			cfg.Restocking.Value = *feeValue
		}
	}
	return cfg, nil
}

const configCacheKey = "returns:config"

// CachedConfig wraps a provider with a Redis read-through cache.
type CachedConfig struct {
	inner ConfigProvider
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedConfig constructs CachedConfig.
func NewCachedConfig(inner ConfigProvider, rdb *redis.Client, ttl time.Duration) *CachedConfig {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedConfig{inner: inner, rdb: rdb, ttl: ttl}
}

// Get returns the cached configuration, loading through on miss. Cache
// failures degrade to the inner provider rather than failing the request.
func (c *CachedConfig) Get(ctx context.Context) (Config, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, configCacheKey).Bytes()
		if err == nil {
			var cfg Config
			if jsonErr := json.Unmarshal(raw, &cfg); jsonErr == nil {
				return cfg, nil
			}
		}
	}
	cfg, err := c.inner.Get(ctx)
	if err != nil {
		return Config{}, err
	}
	if c.rdb != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			_ = c.rdb.Set(ctx, configCacheKey, raw, c.ttl).Err()
		}
	}
	return cfg, nil
}

// Invalidate drops the cached configuration after a settings change.
func (c *CachedConfig) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, configCacheKey).Err()
}
