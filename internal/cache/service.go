package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// DefaultTTL lifetime of derived metrics such as completion rates
const DefaultTTL = time.Hour

// Service JSON cache on top of Client, with memoize-on-call and invalidate-on-call helpers
type Service struct {
	client *Client
	ttl    time.Duration
}

// NewService create a Service, non-positive defaultTTL falls back to DefaultTTL
func NewService(client *Client, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Service{client: client, ttl: defaultTTL}
}

// DefaultTTL ttl used when Set receives a non-positive one
func (s *Service) DefaultTTL() time.Duration {
	return s.ttl
}

// Get decodes the entry under key into dest. An entry that fails to
// decode is treated as a miss.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := s.client.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("discard undecodable cache entry",
			zap.String("cache.key", key), zap.Error(err))
		return false
	}
	return true
}

// GetMany decodes the entries under keys, missing and undecodable entries are absent
func GetMany[T any](ctx context.Context, s *Service, keys []string) map[string]T {
	raw := s.client.GetMany(ctx, keys...)
	result := make(map[string]T, len(raw))
	for key, v := range raw {
		var value T
		if err := json.Unmarshal([]byte(v), &value); err != nil {
			logging.ExtractLoggerFromContext(ctx).Warn("discard undecodable cache entry",
				zap.String("cache.key", key), zap.Error(err))
			continue
		}
		result[key] = value
	}
	return result
}

// Set encodes value as JSON and stores it under key
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.ttl
	}
	b, err := json.Marshal(value)
	if err != nil {
		logging.ExtractLoggerFromContext(ctx).Warn("failed to encode cache entry",
			zap.String("cache.key", key), zap.Error(err))
		return false
	}
	return s.client.SetWithExpiry(ctx, key, string(b), ttl)
}

// Invalidate deletes literal keys and expands glob patterns, in argument order
func (s *Service) Invalidate(ctx context.Context, keysOrPatterns ...string) int64 {
	var deleted int64
	for _, key := range keysOrPatterns {
		if IsPattern(key) {
			deleted += s.client.DeleteByPattern(ctx, key)
		} else {
			deleted += s.client.Delete(ctx, key)
		}
	}
	return deleted
}

// InvalidateAfter runs mutate and invalidates keysOrPatterns once it succeeds.
// A failed mutation invalidates nothing and its error is returned as is.
func (s *Service) InvalidateAfter(ctx context.Context, mutate func(ctx context.Context) error, keysOrPatterns ...string) error {
	if err := mutate(ctx); err != nil {
		return err
	}
	s.Invalidate(ctx, keysOrPatterns...)
	return nil
}

// IsPattern whether key contains glob meta characters
func IsPattern(key string) bool {
	return strings.ContainsAny(key, "*?[")
}

// GetOrCompute returns the cached value under key, or computes, stores and
// returns it. Concurrent misses may compute more than once; compute errors
// are returned and nothing is cached.
func GetOrCompute[T any](
	ctx context.Context,
	s *Service,
	key string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	var cached T
	if s.Get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Set(ctx, key, value, ttl)
	return value, nil
}
