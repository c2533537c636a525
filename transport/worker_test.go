package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/intake"
	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/ndjson"
	"github.com/imattdu/orbit-apm/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newIntake(t *testing.T) (*httptest.Server, *intake.Store) {
	t.Helper()
	store := intake.NewStore()
	srv := httptest.NewServer(intake.NewRouter(intake.Options{Store: store}))
	t.Cleanup(srv.Close)
	return srv, store
}

func newWorker(t *testing.T, url string, qc queue.Config) *Worker {
	t.Helper()
	w, err := New(Config{
		URL:   url,
		Queue: qc,
		Serializer: ndjson.New(ndjson.Options{Metadata: model.Metadata{
			Service: model.Service{Name: "svc", Agent: model.Agent{Name: "go", Version: "test"}},
		}}),
		Metrics: NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(w.Dispose)
	return w
}

func TestEndToEndEagerBatches(t *testing.T) {
	srv, store := newIntake(t)
	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 2, MaxQueueEventCount: 10})

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: name, Name: name}))
	}
	assert.Equal(t, StateNotStarted, w.State())
	require.NoError(t, w.Start())
	assert.Equal(t, StateRunning, w.State())

	require.True(t, store.WaitFor(2, 5*time.Second))
	batches := store.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Events, 2)
	assert.Len(t, batches[1].Events, 1)
	assert.Equal(t, batches[0].MetadataRaw, batches[1].MetadataRaw)
	assert.Equal(t, "application/x-ndjson", batches[0].Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(w.metrics.BatchesSent.WithLabelValues("events")) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3.0, testutil.ToFloat64(w.metrics.EventsQueued.WithLabelValues("events", "transaction")))
	assert.EqualValues(t, 0, w.QueueLen())
}

func TestIntervalFlush(t *testing.T) {
	srv, store := newIntake(t)
	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{
		MaxBatchEventCount: 10, MaxQueueEventCount: 10, FlushInterval: 50 * time.Millisecond,
	})
	require.NoError(t, w.Start())

	require.NoError(t, w.QueueSpan(context.Background(), &model.Span{ID: "s", Name: "q"}))
	require.NoError(t, w.QueueError(context.Background(), &model.Error{ID: "e"}))
	require.True(t, store.WaitFor(1, 2*time.Second))
	assert.Equal(t, map[model.Kind]int{model.KindSpan: 1, model.KindError: 1}, store.Counts())

	// 空周期不会发请求
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, store.Len())
}

func TestQueueFullCounted(t *testing.T) {
	w := newWorker(t, "http://127.0.0.1:1/intake/v2/events", queue.Config{MaxBatchEventCount: 1, MaxQueueEventCount: 1})
	require.NoError(t, w.QueueMetrics(context.Background(), &model.MetricSet{}))
	err := w.QueueMetrics(context.Background(), &model.MetricSet{})
	assert.True(t, errors.Is(err, errorx.ErrQueueFull))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.EventsDropped.WithLabelValues("events", "metricset")))
}

func TestConcurrentDispose(t *testing.T) {
	srv, _ := newIntake(t)
	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 2, MaxQueueEventCount: 10})
	require.NoError(t, w.Start())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Dispose()
		}()
	}
	wg.Wait()

	assert.Equal(t, StateStopped, w.State())
	select {
	case <-w.Done():
	default:
		t.Fatal("worker not stopped")
	}

	err := w.QueueTransaction(context.Background(), &model.Transaction{ID: "late"})
	assert.True(t, errors.Is(err, errorx.ErrDisposed))
	assert.True(t, errorx.IsBiz(err))
	assert.True(t, errorx.IsCode(w.Start(), errorx.CodeDisposed))
}

func TestDisposeBeforeStart(t *testing.T) {
	w := newWorker(t, "http://127.0.0.1:1/intake/v2/events", queue.Config{MaxBatchEventCount: 2, MaxQueueEventCount: 2})
	require.NoError(t, w.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, w.State())
	assert.True(t, errorx.IsCode(w.Start(), errorx.CodeDisposed))
}

func TestDisposeFromFilter(t *testing.T) {
	srv, _ := newIntake(t)
	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 1, MaxQueueEventCount: 10})

	returned := make(chan error, 1)
	w.Filters().Transaction.Add(func(ctx context.Context, tx *model.Transaction) *model.Transaction {
		returned <- w.Shutdown(ctx)
		return tx
	})
	require.NoError(t, w.Start())
	require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "x"}))

	select {
	case err := <-returned:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown from filter deadlocked")
	}
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, StateStopped, w.State())
}

func TestDisposeInsideFilter(t *testing.T) {
	srv, store := newIntake(t)
	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 1, MaxQueueEventCount: 10})

	returned := make(chan struct{})
	w.Filters().Transaction.Add(func(_ context.Context, tx *model.Transaction) *model.Transaction {
		w.Dispose()
		close(returned)
		return tx
	})
	require.NoError(t, w.Start())
	require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "x"}))

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("Dispose inside filter did not return; state=%s", w.State())
	}
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, StateStopped, w.State())
	assert.Zero(t, store.Len())

	// 之后的 Dispose 立即返回
	w.Dispose()
	assert.Error(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "y"}))
}

func TestRejectedEventsCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte(`{"accepted":1,"errors":[{"message":"bad a"},{"message":"bad b"}]}`))
	}))
	defer srv.Close()

	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 3, MaxQueueEventCount: 10})
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: id}))
	}
	require.NoError(t, w.Start())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(w.metrics.BatchesFailed.WithLabelValues("events", reasonStatus)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.EventsRejected.WithLabelValues("events")))
	assert.Zero(t, testutil.ToFloat64(w.metrics.BatchesSent.WithLabelValues("events")))
}

func TestFailedBatchNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		hits.Inc()
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 5, MaxQueueEventCount: 10})
	require.NoError(t, w.Start())
	require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "x"}))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(w.metrics.BatchesFailed.WithLabelValues("events", reasonStatus)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, hits.Load())
	assert.EqualValues(t, 0, w.QueueLen())
	assert.Equal(t, StateRunning, w.State())
}

func TestShutdownCancelsInFlightSend(t *testing.T) {
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	}))
	defer srv.Close()

	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 1, MaxQueueEventCount: 10})
	require.NoError(t, w.Start())
	require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "x"}))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never arrived")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.Equal(t, StateStopped, w.State())
}

func TestFilteredEventsCounted(t *testing.T) {
	srv, store := newIntake(t)
	w := newWorker(t, srv.URL+intake.EventsPath, queue.Config{MaxBatchEventCount: 2, MaxQueueEventCount: 10})
	w.Filters().Transaction.Add(func(_ context.Context, tx *model.Transaction) *model.Transaction {
		if tx.Name == "healthcheck" {
			return nil
		}
		return tx
	})

	require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "1", Name: "healthcheck"}))
	require.NoError(t, w.QueueSpan(context.Background(), &model.Span{ID: "2", TransactionID: "1", Name: "child"}))
	require.NoError(t, w.Start())

	require.True(t, store.WaitFor(1, 2*time.Second))
	assert.Equal(t, map[model.Kind]int{model.KindSpan: 1}, store.Counts())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(w.metrics.EventsFiltered.WithLabelValues("events")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDedicatedWorker(t *testing.T) {
	srv, store := newIntake(t)
	w, err := New(Config{
		Name:      "rum",
		URL:       srv.URL + intake.EventsPath,
		Dedicated: true,
		Queue:     queue.Config{MaxBatchEventCount: 1, MaxQueueEventCount: 4},
	})
	require.NoError(t, err)
	defer w.Dispose()

	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	require.NoError(t, w.QueueTransaction(context.Background(), &model.Transaction{ID: "1"}))
	require.True(t, store.WaitFor(1, 2*time.Second))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errorx.IsCode(err, errorx.CodeConfig))
}
