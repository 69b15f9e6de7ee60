package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
)

var errBackendDown = errors.New("connection refused")

// fakeKV records calls and can be switched into failing or hanging mode
type fakeKV struct {
	mu    sync.Mutex
	data  map[string]string
	calls []string
	err   error
	hang  bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) call(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	hang, err := f.hang, f.err
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeKV) SetEX(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := f.call(ctx, "set "+key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	if err := f.call(ctx, "get "+key); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", driver.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := f.call(ctx, "mget "+strings.Join(keys, " ")); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := f.data[key]; ok {
			result[key] = v
		}
	}
	return result, nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) (int64, error) {
	for _, key := range keys {
		if err := f.call(ctx, "del "+key); err != nil {
			return 0, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeKV) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if err := f.call(ctx, "delpattern "+pattern); err != nil {
		return 0, err
	}
	return 0, nil
}

func (f *fakeKV) Exists(ctx context.Context, key string) (bool, error) {
	if err := f.call(ctx, "exists "+key); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeKV) Ping(ctx context.Context) error {
	return f.call(ctx, "ping")
}

func (f *fakeKV) Close() error {
	return nil
}

func (f *fakeKV) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
