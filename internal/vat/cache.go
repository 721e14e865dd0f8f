package vat

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-orderlines/internal/obs"
)

// CachedProvider serves standard tables from Redis and falls through to Next
// on a miss. Redis failures are logged and never fail the lookup.
type CachedProvider struct {
	Next   TaxRateProvider
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *zerolog.Logger
}

// StandardTable implements TaxRateProvider.
func (c CachedProvider) StandardTable(ctx context.Context, channelID int64) (Table, error) {
	if c.Next == nil {
		return Table{}, errors.New("vat: cached provider has no upstream")
	}
	if c.Client == nil {
		return c.Next.StandardTable(ctx, channelID)
	}
	logger := obs.LoggerFor(ctx, c.Logger)
	key := c.key(channelID)

	var cached Table
	hit, err := c.getJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("vat_cache_read_failed")
	}
	if hit {
		return cached, nil
	}

	t, err := c.Next.StandardTable(ctx, channelID)
	if err != nil {
		return Table{}, err
	}
	if err := c.setJSON(ctx, key, t); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("vat_cache_write_failed")
	}
	return t, nil
}

func (c CachedProvider) key(channelID int64) string {
	base := "vat:standard:" + strconv.FormatInt(channelID, 10)
	if c.Prefix == "" {
		return base
	}
	return c.Prefix + ":" + base
}

func (c CachedProvider) ttl() time.Duration {
	if c.TTL <= 0 {
		return 10 * time.Minute
	}
	return c.TTL
}

func (c CachedProvider) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c CachedProvider) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, data, c.ttl()).Err()
}
