package cache

import (
	"context"
	"errors"
	"time"

	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"github.com/pot-code/learning-analytics/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// DefaultOperationTimeout deadline applied to every backend call
const DefaultOperationTimeout = 200 * time.Millisecond

// cache operations
const (
	opGet        = "get"
	opGetMany    = "get_many"
	opSet        = "set"
	opDelete     = "delete"
	opDelPattern = "delete_pattern"
	opExists     = "exists"
)

// ClientOption options for Client
type ClientOption struct {
	Timeout time.Duration
}

// Client fail-open cache client.
//
// It never returns backend errors: a failed or timed out call is logged
// and reported as a miss, false or 0. A Client without backend is a no-op.
type Client struct {
	kv      driver.KeyValueDB
	timeout time.Duration
}

// NewClient create a Client over kv, pass nil kv to disable caching
func NewClient(kv driver.KeyValueDB, options ...*ClientOption) *Client {
	timeout := DefaultOperationTimeout
	if len(options) > 0 {
		if option := options[0]; option.Timeout > 0 {
			timeout = option.Timeout
		}
	}
	return &Client{kv: kv, timeout: timeout}
}

// Enabled whether a backend is configured
func (c *Client) Enabled() bool {
	return c.kv != nil
}

// Get returns the value stored under key, ok is false on miss or any failure
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool) {
	if c.kv == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, driver.ErrKeyNotFound) {
			metrics.CacheOperations.WithLabelValues(opGet, metrics.ResultMiss).Inc()
		} else {
			c.fail(ctx, opGet, key, err)
		}
		return "", false
	}
	metrics.CacheOperations.WithLabelValues(opGet, metrics.ResultHit).Inc()
	return value, true
}

// GetMany returns the values stored under keys in one backend call, missing
// keys are absent. Any failure reports every key as a miss.
func (c *Client) GetMany(ctx context.Context, keys ...string) map[string]string {
	if c.kv == nil || len(keys) == 0 {
		return map[string]string{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	values, err := c.kv.MGet(ctx, keys...)
	if err != nil {
		c.fail(ctx, opGetMany, keys[0], err, zap.Strings("cache.keys", keys))
		return map[string]string{}
	}
	hits := float64(len(values))
	metrics.CacheOperations.WithLabelValues(opGetMany, metrics.ResultHit).Add(hits)
	metrics.CacheOperations.WithLabelValues(opGetMany, metrics.ResultMiss).Add(float64(len(keys)) - hits)
	return values
}

// SetWithExpiry stores value under key for ttl, reports whether the write succeeded
func (c *Client) SetWithExpiry(ctx context.Context, key string, value string, ttl time.Duration) bool {
	if c.kv == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.kv.SetEX(ctx, key, value, ttl); err != nil {
		c.fail(ctx, opSet, key, err)
		return false
	}
	metrics.CacheOperations.WithLabelValues(opSet, metrics.ResultOK).Inc()
	return true
}

// Delete removes keys, returns the number of keys removed
func (c *Client) Delete(ctx context.Context, keys ...string) int64 {
	if c.kv == nil || len(keys) == 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.kv.Del(ctx, keys...)
	if err != nil {
		c.fail(ctx, opDelete, keys[0], err, zap.Strings("cache.keys", keys))
		return n
	}
	metrics.CacheOperations.WithLabelValues(opDelete, metrics.ResultOK).Inc()
	return n
}

// DeleteByPattern removes every key matching a glob pattern, returns the number of keys removed
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) int64 {
	if c.kv == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.kv.DelPattern(ctx, pattern)
	if err != nil {
		c.fail(ctx, opDelPattern, pattern, err, zap.Int64("cache.deleted", n))
		return n
	}
	metrics.CacheOperations.WithLabelValues(opDelPattern, metrics.ResultOK).Inc()
	return n
}

// Exists reports whether key is present, false on any failure
func (c *Client) Exists(ctx context.Context, key string) bool {
	if c.kv == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ok, err := c.kv.Exists(ctx, key)
	if err != nil {
		c.fail(ctx, opExists, key, err)
		return false
	}
	metrics.CacheOperations.WithLabelValues(opExists, metrics.ResultOK).Inc()
	return ok
}

// Ping checks backend liveness, nil when caching is disabled
func (c *Client) Ping(ctx context.Context) error {
	if c.kv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.kv.Ping(ctx)
}

func (c *Client) fail(ctx context.Context, op, key string, err error, fields ...zap.Field) {
	logger := logging.ExtractLoggerFromContext(ctx)
	fields = append(fields,
		zap.String("cache.operation", op),
		zap.String("cache.key", key),
		zap.Error(err),
	)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		metrics.CacheOperations.WithLabelValues(op, metrics.ResultTimeout).Inc()
		logger.Debug("cache operation timed out", fields...)
		return
	}
	metrics.CacheOperations.WithLabelValues(op, metrics.ResultError).Inc()
	logger.Warn("cache operation failed", fields...)
}
