package completion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pot-code/learning-analytics/internal/cache"
	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
	"github.com/pot-code/learning-analytics/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	userID   string
	lessonID string
	status   progress.Status
}

// fakeCounter in-memory ProgressCounter counting every call
type fakeCounter struct {
	records    []*record
	published  int64
	err        error
	calls      map[string]int
	groupedIDs [][]string
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{calls: make(map[string]int)}
}

func (f *fakeCounter) add(userID, lessonID string, status progress.Status, n int) {
	for i := 0; i < n; i++ {
		f.records = append(f.records, &record{userID, lessonID, status})
	}
}

func (f *fakeCounter) CountProgressByStatus(ctx context.Context, lessonID string) (map[progress.Status]int64, error) {
	f.calls["lesson"]++
	if f.err != nil {
		return nil, f.err
	}
	counts := make(map[progress.Status]int64)
	for _, r := range f.records {
		if r.lessonID == lessonID {
			counts[r.status]++
		}
	}
	return counts, nil
}

func (f *fakeCounter) CountAllProgressByStatus(ctx context.Context) (map[progress.Status]int64, error) {
	f.calls["overall"]++
	if f.err != nil {
		return nil, f.err
	}
	counts := make(map[progress.Status]int64)
	for _, r := range f.records {
		counts[r.status]++
	}
	return counts, nil
}

func (f *fakeCounter) CountPublishedLessons(ctx context.Context) (int64, error) {
	f.calls["published"]++
	return f.published, f.err
}

func (f *fakeCounter) CountCompletedForUser(ctx context.Context, userID string) (int64, error) {
	f.calls["user"]++
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, r := range f.records {
		if r.userID == userID && r.status == progress.StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (f *fakeCounter) GroupedProgressCounts(ctx context.Context, lessonIDs []string) ([]*progress.StatusCount, error) {
	f.calls["grouped"]++
	f.groupedIDs = append(f.groupedIDs, append([]string(nil), lessonIDs...))
	if f.err != nil {
		return nil, f.err
	}
	wanted := make(map[string]bool)
	for _, id := range lessonIDs {
		wanted[id] = true
	}
	index := make(map[[2]string]*progress.StatusCount)
	var result []*progress.StatusCount
	for _, r := range f.records {
		if !wanted[r.lessonID] {
			continue
		}
		k := [2]string{r.lessonID, string(r.status)}
		if row, ok := index[k]; ok {
			row.Count++
			continue
		}
		row := &progress.StatusCount{LessonID: r.lessonID, Status: r.status, Count: 1}
		index[k] = row
		result = append(result, row)
	}
	return result, nil
}

func (f *fakeCounter) complete(lessonID string) {
	for _, r := range f.records {
		if r.lessonID == lessonID && r.status == progress.StatusInProgress {
			r.status = progress.StatusCompleted
			return
		}
	}
}

// failingKV cache backend that always errors
type failingKV struct{}

var errCacheDown = errors.New("cache unreachable")

func (failingKV) SetEX(ctx context.Context, key string, value string, expiration time.Duration) error {
	return errCacheDown
}
func (failingKV) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return nil, errCacheDown
}
func (failingKV) Get(ctx context.Context, key string) (string, error)     { return "", errCacheDown }
func (failingKV) Del(ctx context.Context, keys ...string) (int64, error)  { return 0, errCacheDown }
func (failingKV) DelPattern(ctx context.Context, p string) (int64, error) { return 0, errCacheDown }
func (failingKV) Exists(ctx context.Context, key string) (bool, error)    { return false, errCacheDown }
func (failingKV) Ping(ctx context.Context) error                          { return errCacheDown }
func (failingKV) Close() error                                            { return nil }

// hangingKV cache backend whose reads block until the deadline
type hangingKV struct {
	failingKV
	reads int32
}

func (h *hangingKV) Get(ctx context.Context, key string) (string, error) {
	atomic.AddInt32(&h.reads, 1)
	<-ctx.Done()
	return "", ctx.Err()
}

func (h *hangingKV) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	atomic.AddInt32(&h.reads, 1)
	<-ctx.Done()
	return nil, ctx.Err()
}

// brokenConn connection whose result sets fail after the query was accepted
type brokenConn struct {
	err error
}

func (c brokenConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, c.err
}

func (c brokenConn) QueryContext(ctx context.Context, query string, args ...interface{}) (driver.ISQLRows, error) {
	return brokenRows{c.err}, nil
}

func (c brokenConn) BeginTx(ctx context.Context, opts *driver.TxOptions) (driver.ITransactionalDB, error) {
	return c, nil
}

func (c brokenConn) Commit(ctx context.Context) error   { return nil }
func (c brokenConn) Rollback(ctx context.Context) error { return nil }
func (c brokenConn) Close(ctx context.Context) error    { return nil }
func (c brokenConn) Ping(ctx context.Context) error     { return nil }

type brokenRows struct {
	err error
}

func (r brokenRows) Next() bool                     { return false }
func (r brokenRows) Scan(dest ...interface{}) error { return r.err }
func (r brokenRows) Err() error                     { return r.err }
func (r brokenRows) Close() error                   { return nil }

func newTestEngine(counter ProgressCounter) *Engine {
	svc := cache.NewService(cache.NewClient(driver.NewMemoryKV(1024, 0)), time.Hour)
	return NewEngine(counter, svc)
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		completed, total int64
		want             int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{4, 10, 40},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},  // 12.5 rounds up
		{1, 200, 1}, // 0.5 rounds up
		{7, 40, 18}, // 17.5 rounds up
		{1, 400, 0}, // 0.25 rounds down
		{10, 10, 100},
		{12, 10, 100},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Percentage(c.completed, c.total), "%d/%d", c.completed, c.total)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "completion_rate:L1", LessonKey("L1"))
	assert.Equal(t, "completion_rate:user:U1", UserKey("U1"))
	assert.Equal(t, "completion_rate:overall", OverallKey)
}

func TestEngine_LessonRate(t *testing.T) {
	ctx := context.Background()

	t.Run("no records", func(t *testing.T) {
		e := newTestEngine(newFakeCounter())
		rate, err := e.LessonRate(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, 0, rate)
	})

	t.Run("cached after first call", func(t *testing.T) {
		counter := newFakeCounter()
		counter.add("U1", "L1", progress.StatusCompleted, 2)
		counter.add("U2", "L1", progress.StatusInProgress, 1)
		e := newTestEngine(counter)

		first, err := e.LessonRate(ctx, "L1")
		require.NoError(t, err)
		second, err := e.LessonRate(ctx, "L1")
		require.NoError(t, err)

		assert.Equal(t, 67, first)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, counter.calls["lesson"])
	})

	t.Run("invalidate then recompute", func(t *testing.T) {
		counter := newFakeCounter()
		counter.add("U1", "L", progress.StatusCompleted, 4)
		counter.add("U2", "L", progress.StatusInProgress, 6)
		e := newTestEngine(counter)

		rate, err := e.LessonRate(ctx, "L")
		require.NoError(t, err)
		assert.Equal(t, 40, rate)

		counter.complete("L")
		rate, err = e.LessonRate(ctx, "L")
		require.NoError(t, err)
		assert.Equal(t, 40, rate, "stale until invalidated")

		e.InvalidateLesson(ctx, "L")
		rate, err = e.LessonRate(ctx, "L")
		require.NoError(t, err)
		assert.Equal(t, 50, rate)
		_, err = e.LessonRate(ctx, "L")
		require.NoError(t, err)
		assert.Equal(t, 2, counter.calls["lesson"], "exactly one re-query after invalidation")
	})

	t.Run("persistence error propagates and is not cached", func(t *testing.T) {
		counter := newFakeCounter()
		counter.err = errors.New("db down")
		e := newTestEngine(counter)

		_, err := e.LessonRate(ctx, "L1")
		assert.Error(t, err)

		counter.err = nil
		rate, err := e.LessonRate(ctx, "L1")
		require.NoError(t, err)
		assert.Equal(t, 0, rate)
		assert.Equal(t, 2, counter.calls["lesson"])
	})
}

func TestEngine_UserRate(t *testing.T) {
	ctx := context.Background()

	t.Run("against published catalogue", func(t *testing.T) {
		counter := newFakeCounter()
		counter.published = 8
		counter.add("U1", "L1", progress.StatusCompleted, 1)
		counter.add("U1", "L2", progress.StatusCompleted, 1)
		counter.add("U1", "L3", progress.StatusInProgress, 1)
		counter.add("U2", "L1", progress.StatusCompleted, 1)
		e := newTestEngine(counter)

		rate, err := e.UserRate(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, 25, rate)
	})

	t.Run("nothing published", func(t *testing.T) {
		counter := newFakeCounter()
		counter.add("U1", "L1", progress.StatusCompleted, 1)
		e := newTestEngine(counter)

		rate, err := e.UserRate(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, 0, rate)
		assert.Zero(t, counter.calls["user"], "no completed count when catalogue is empty")
	})

	t.Run("invalidate user", func(t *testing.T) {
		counter := newFakeCounter()
		counter.published = 2
		counter.add("U1", "L1", progress.StatusInProgress, 1)
		e := newTestEngine(counter)

		rate, err := e.UserRate(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, 0, rate)

		counter.complete("L1")
		e.InvalidateUser(ctx, "U1")
		rate, err = e.UserRate(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, 50, rate)
	})
}

func TestEngine_OverallRate(t *testing.T) {
	ctx := context.Background()

	e := newTestEngine(newFakeCounter())
	rate, err := e.OverallRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rate)

	counter := newFakeCounter()
	counter.add("U1", "L1", progress.StatusCompleted, 3)
	counter.add("U2", "L2", progress.StatusInProgress, 1)
	counter.add("U3", "L2", progress.StatusNotStarted, 4)
	e = newTestEngine(counter)
	rate, err = e.OverallRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 38, rate) // 37.5
}

func TestEngine_BulkLessonRates(t *testing.T) {
	ctx := context.Background()

	t.Run("one grouped query for uncached lessons", func(t *testing.T) {
		counter := newFakeCounter()
		counter.add("U1", "B", progress.StatusCompleted, 1)
		counter.add("U2", "B", progress.StatusInProgress, 1)
		counter.add("U1", "C", progress.StatusCompleted, 3)
		e := newTestEngine(counter)
		require.True(t, e.cache.Set(ctx, LessonKey("A"), 40, time.Hour))

		rates, err := e.BulkLessonRates(ctx, []string{"A", "B", "C"})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"A": 40, "B": 50, "C": 100}, rates)
		require.Len(t, counter.groupedIDs, 1)
		got := counter.groupedIDs[0]
		sort.Strings(got)
		assert.Equal(t, []string{"B", "C"}, got)
		assert.Zero(t, counter.calls["lesson"])

		// results were cached individually
		rate, err := e.LessonRate(ctx, "B")
		require.NoError(t, err)
		assert.Equal(t, 50, rate)
		assert.Zero(t, counter.calls["lesson"])
	})

	t.Run("query count independent of size", func(t *testing.T) {
		counter := newFakeCounter()
		ids := make([]string, 0, 50)
		for i := 0; i < 50; i++ {
			id := string(rune('a'+i%26)) + string(rune('A'+i/26))
			ids = append(ids, id)
			counter.add("U1", id, progress.StatusCompleted, i%3)
			counter.add("U2", id, progress.StatusInProgress, 1)
		}
		e := newTestEngine(counter)

		rates, err := e.BulkLessonRates(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, rates, 50)
		assert.Equal(t, 1, counter.calls["grouped"])
	})

	t.Run("consistent with single lesson rate", func(t *testing.T) {
		counter := newFakeCounter()
		counter.add("U1", "X", progress.StatusCompleted, 2)
		counter.add("U2", "X", progress.StatusNotStarted, 1)
		counter.add("U3", "Y", progress.StatusInProgress, 5)
		counter.add("U3", "Z", progress.StatusCompleted, 1)
		ids := []string{"X", "Y", "Z", "W", "X"}

		bulk, err := newTestEngine(counter).BulkLessonRates(ctx, ids)
		require.NoError(t, err)

		single := newTestEngine(counter)
		for _, id := range ids {
			rate, err := single.LessonRate(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, rate, bulk[id], id)
		}
		assert.Equal(t, 0, bulk["W"], "lesson without records")
	})

	t.Run("all cached", func(t *testing.T) {
		counter := newFakeCounter()
		e := newTestEngine(counter)
		require.True(t, e.cache.Set(ctx, LessonKey("A"), 10, time.Hour))

		rates, err := e.BulkLessonRates(ctx, []string{"A"})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"A": 10}, rates)
		assert.Zero(t, counter.calls["grouped"])
	})

	t.Run("aggregation failure returns partial result", func(t *testing.T) {
		counter := newFakeCounter()
		counter.err = errors.New("db down")
		e := newTestEngine(counter)
		require.True(t, e.cache.Set(ctx, LessonKey("A"), 40, time.Hour))

		rates, err := e.BulkLessonRates(ctx, []string{"A", "B"})
		assert.Error(t, err)
		assert.Equal(t, map[string]int{"A": 40}, rates)
	})
}

func TestEngine_BrokenResultSet(t *testing.T) {
	ctx := context.Background()
	statementTimeout := errors.New("canceling statement due to statement timeout")
	e := newTestEngine(progress.NewProgressRepository(brokenConn{statementTimeout}))

	_, err := e.LessonRate(ctx, "L1")
	assert.ErrorIs(t, err, statementTimeout)
	_, err = e.UserRate(ctx, "U1")
	assert.ErrorIs(t, err, statementTimeout)
	_, err = e.OverallRate(ctx)
	assert.ErrorIs(t, err, statementTimeout)

	rates, err := e.BulkLessonRates(ctx, []string{"A", "B"})
	assert.ErrorIs(t, err, statementTimeout)
	assert.Empty(t, rates)

	var rate int
	for _, key := range []string{LessonKey("L1"), LessonKey("A"), LessonKey("B"), UserKey("U1"), OverallKey} {
		assert.False(t, e.cache.Get(ctx, key, &rate), "%s must not be cached", key)
	}
}

func TestEngine_BulkLessonRates_HangingCache(t *testing.T) {
	ctx := context.Background()
	counter := newFakeCounter()
	kv := new(hangingKV)
	client := cache.NewClient(kv, &cache.ClientOption{Timeout: 20 * time.Millisecond})
	e := NewEngine(counter, cache.NewService(client, 0))

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("L%d", i)
		counter.add("U1", ids[i], progress.StatusCompleted, 1)
	}

	start := time.Now()
	rates, err := e.BulkLessonRates(ctx, ids)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Len(t, rates, 20)
	assert.Equal(t, int32(1), atomic.LoadInt32(&kv.reads), "cached rates are read in one call")
	assert.Equal(t, 1, counter.calls["grouped"])
}

func TestEngine_FailOpen(t *testing.T) {
	ctx := context.Background()
	counter := newFakeCounter()
	counter.published = 4
	counter.add("U1", "L1", progress.StatusCompleted, 1)
	counter.add("U2", "L1", progress.StatusInProgress, 1)
	e := NewEngine(counter, cache.NewService(cache.NewClient(failingKV{}), 0))

	for i := 0; i < 2; i++ {
		rate, err := e.LessonRate(ctx, "L1")
		require.NoError(t, err)
		assert.Equal(t, 50, rate)

		rate, err = e.UserRate(ctx, "U1")
		require.NoError(t, err)
		assert.Equal(t, 25, rate)

		rate, err = e.OverallRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 50, rate)

		rates, err := e.BulkLessonRates(ctx, []string{"L1"})
		require.NoError(t, err)
		assert.Equal(t, 50, rates["L1"])
	}
	assert.Equal(t, 2, counter.calls["lesson"], "every call recomputes when the cache is down")
	assert.Equal(t, 2, counter.calls["grouped"])

	e.InvalidateProgress(ctx, "U1", "L1")
	assert.NoError(t, e.AfterProgressWrite(ctx, "U1", "L1", func(ctx context.Context) error { return nil }))
}

func TestEngine_AfterProgressWrite(t *testing.T) {
	ctx := context.Background()
	counter := newFakeCounter()
	counter.published = 1
	counter.add("U1", "L1", progress.StatusInProgress, 1)
	e := newTestEngine(counter)

	for _, read := range []func() (int, error){
		func() (int, error) { return e.LessonRate(ctx, "L1") },
		func() (int, error) { return e.UserRate(ctx, "U1") },
		func() (int, error) { return e.OverallRate(ctx) },
	} {
		rate, err := read()
		require.NoError(t, err)
		assert.Equal(t, 0, rate)
	}

	t.Run("failed write keeps cache", func(t *testing.T) {
		err := e.AfterProgressWrite(ctx, "U1", "L1", func(ctx context.Context) error {
			return errors.New("constraint violation")
		})
		assert.Error(t, err)
		var rate int
		assert.True(t, e.cache.Get(ctx, LessonKey("L1"), &rate))
	})

	t.Run("successful write purges lesson user and overall", func(t *testing.T) {
		err := e.AfterProgressWrite(ctx, "U1", "L1", func(ctx context.Context) error {
			counter.complete("L1")
			return nil
		})
		require.NoError(t, err)

		lesson, _ := e.LessonRate(ctx, "L1")
		user, _ := e.UserRate(ctx, "U1")
		overall, _ := e.OverallRate(ctx)
		assert.Equal(t, []int{100, 100, 100}, []int{lesson, user, overall})
	})
}
