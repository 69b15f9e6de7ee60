package driver

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound returned by KeyValueDB.Get when key is missing or expired
var ErrKeyNotFound = errors.New("key not found")

// KeyValueDB define a key-value storage interface
type KeyValueDB interface {
	SetEX(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// MGet values of keys in one round trip, missing keys are absent from the result
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	// DelPattern removes every key matching a glob pattern, eg. "completion_rate:*"
	DelPattern(ctx context.Context, pattern string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
