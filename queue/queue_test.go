package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

func tx(name string) *model.Transaction { return &model.Transaction{Name: name} }

func receive(t *testing.T, q *Queue, timeout time.Duration) []model.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	b, err := q.ReceiveBatch(ctx)
	require.NoError(t, err)
	return b
}

func TestCapacityClampedToBatch(t *testing.T) {
	q := New(Config{MaxBatchEventCount: 5, MaxQueueEventCount: 2}, nil)
	assert.EqualValues(t, 5, q.Capacity())
	assert.Equal(t, 5, q.MaxBatch())
}

func TestConcurrentEnqueueRespectsCapacity(t *testing.T) {
	const max = 50
	q := New(Config{MaxBatchEventCount: max, MaxQueueEventCount: max, FlushInterval: time.Hour}, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Enqueue(context.Background(), tx("t"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			assert.True(t, errors.Is(err, errorx.ErrQueueFull))
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, max, accepted)
	assert.Equal(t, 150, rejected)
	assert.EqualValues(t, max, q.Len())
	assert.EqualValues(t, 150, q.Dropped())

	// 取走之后又能入队
	b := receive(t, q, time.Second)
	assert.Len(t, b, max)
	assert.EqualValues(t, 0, q.Len())
	require.NoError(t, q.Enqueue(context.Background(), tx("again")))
}

func TestEagerSignalsPerEvent(t *testing.T) {
	q := New(Config{MaxBatchEventCount: 2, MaxQueueEventCount: 10}, nil)
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), tx(n)))
	}
	assert.EqualValues(t, 3, q.Signals())

	first := receive(t, q, time.Second)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].(*model.Transaction).Name)
	assert.Equal(t, "b", first[1].(*model.Transaction).Name)

	second := receive(t, q, time.Second)
	require.Len(t, second, 1)
	assert.Equal(t, "c", second[0].(*model.Transaction).Name)
}

func TestEagerWakesBlockedReceiver(t *testing.T) {
	q := New(Config{MaxBatchEventCount: 10, MaxQueueEventCount: 10}, nil)

	got := make(chan []model.Event, 1)
	go func() {
		b, err := q.ReceiveBatch(context.Background())
		if err == nil {
			got <- b
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), tx("a")))

	select {
	case b := <-got:
		assert.Len(t, b, 1)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken")
	}
}

func TestIntervalReleasesPartialBatch(t *testing.T) {
	const interval = 50 * time.Millisecond
	q := New(Config{MaxBatchEventCount: 10, MaxQueueEventCount: 100, FlushInterval: interval}, nil)

	start := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), tx("a")))
	require.NoError(t, q.Enqueue(context.Background(), tx("b")))

	b := receive(t, q, time.Second)
	assert.Len(t, b, 2)
	assert.GreaterOrEqual(t, time.Since(start), interval-5*time.Millisecond)
	assert.Less(t, time.Since(start), 10*interval)
	assert.GreaterOrEqual(t, q.Signals(), int64(1))
}

func TestIntervalFullBatchIsImmediate(t *testing.T) {
	q := New(Config{MaxBatchEventCount: 3, MaxQueueEventCount: 100, FlushInterval: time.Hour}, nil)
	for i := 0; i < 7; i++ {
		require.NoError(t, q.Enqueue(context.Background(), tx("x")))
	}

	assert.Len(t, receive(t, q, time.Second), 3)
	assert.Len(t, receive(t, q, time.Second), 3)

	// 剩下一个要等 flush 周期
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.ReceiveBatch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, q.Len())

	q.TriggerBatch()
	assert.Len(t, receive(t, q, time.Second), 1)
}

func TestBatchesNeverExceedMax(t *testing.T) {
	const maxBatch = 4
	q := New(Config{MaxBatchEventCount: maxBatch, MaxQueueEventCount: 1000}, nil)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = q.Enqueue(context.Background(), tx("x"))
			}
		}()
	}
	wg.Wait()

	total := 0
	for total < 200 {
		b := receive(t, q, time.Second)
		require.NotEmpty(t, b)
		require.LessOrEqual(t, len(b), maxBatch)
		total += len(b)
	}
	assert.Equal(t, 200, total)
}

func TestReceiveCanceled(t *testing.T) {
	q := New(Config{MaxBatchEventCount: 2, MaxQueueEventCount: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.ReceiveBatch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(Config{MaxBatchEventCount: 2, MaxQueueEventCount: 2}, nil)
	q.Close()
	err := q.Enqueue(context.Background(), tx("late"))
	assert.True(t, errorx.IsCode(err, errorx.CodeDisposed))
	assert.True(t, errorx.IsBiz(err))
}

// countLogger 记录每个 tag 被打了几次
type countLogger struct {
	logx.Logger
	mu   sync.Mutex
	tags map[string]int
}

func (l *countLogger) Debug(_ context.Context, tag string, _ any, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tags[tag]++
}

func TestEnqueueDoesNotLogOnSuccess(t *testing.T) {
	l := &countLogger{Logger: logx.Nop(), tags: map[string]int{}}
	q := New(Config{MaxBatchEventCount: 100, MaxQueueEventCount: 100, FlushInterval: time.Hour}, l)

	for i := 0; i < 100; i++ {
		require.NoError(t, q.Enqueue(context.Background(), tx("a")))
	}
	require.Error(t, q.Enqueue(context.Background(), tx("over")))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, map[string]int{logx.TagQueueFull: 1}, l.tags)
}
