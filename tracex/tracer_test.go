package tracex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/orbit-apm/cctx"
	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/model"
)

type recorder struct {
	mu       sync.Mutex
	txs      []*model.Transaction
	spans    []*model.Span
	errs     []*model.Error
	failSpan bool
}

func (r *recorder) QueueTransaction(_ context.Context, tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *recorder) QueueSpan(_ context.Context, s *model.Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSpan {
		return errorx.ErrQueueFull
	}
	r.spans = append(r.spans, s)
	return nil
}

func (r *recorder) QueueError(_ context.Context, e *model.Error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
	return nil
}

func TestTransactionEndQueuesOnce(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)

	ctx, tx := tr.StartTransaction(context.Background(), "GET /users", "request")
	assert.Same(t, tx, TransactionFromContext(ctx))
	assert.Nil(t, SpanFromContext(ctx))
	assert.Equal(t, tx.TraceID(), TraceIDFromContext(ctx))

	tx.SetResult("HTTP 2xx")
	tx.End()
	tx.End()
	tx.SetResult("ignored after end")

	require.Len(t, rec.txs, 1)
	got := rec.txs[0]
	assert.Equal(t, "GET /users", got.Name)
	assert.Equal(t, "HTTP 2xx", got.Result)
	assert.Len(t, got.ID, 16)
	assert.Len(t, got.TraceID, 32)
	assert.GreaterOrEqual(t, got.Duration, 0.0)
	assert.True(t, tx.Ended())
}

func TestSpansExplicitParent(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)

	ctx, tx := tr.StartTransaction(context.Background(), "job", "worker")
	ctx1, outer := tx.StartSpan(ctx, "outer", "app", "", "", nil)
	_, inner := outer.StartSpan(ctx1, "SELECT", "db", "postgresql", "query")

	assert.Same(t, outer, SpanFromContext(ctx1))
	assert.Same(t, tx, TransactionFromContext(ctx1))
	id, ok := cctx.GetAs[string](ctx1, FieldSpanID)
	require.True(t, ok)
	assert.Equal(t, outer.ID(), id)

	inner.SetHTTP("GET", "http://db", 200)
	inner.End()
	outer.End()
	tx.End()

	require.Len(t, rec.spans, 2)
	assert.Equal(t, outer.ID(), rec.spans[0].ParentID)
	assert.Equal(t, tx.ID(), rec.spans[1].ParentID)
	assert.Equal(t, tx.ID(), rec.spans[0].TransactionID)
	assert.Equal(t, tx.TraceID(), rec.spans[0].TraceID)
	assert.Equal(t, "postgresql", rec.spans[0].Subtype)
	assert.Equal(t, 200, rec.spans[0].Context.HTTP.StatusCode)

	require.Len(t, rec.txs, 1)
	assert.Equal(t, model.SpanCount{Started: 2}, rec.txs[0].SpanCount)
}

func TestDroppedSpansCounted(t *testing.T) {
	rec := &recorder{failSpan: true}
	tr := NewTracer(rec)

	ctx, tx := tr.StartTransaction(context.Background(), "job", "worker")
	for i := 0; i < 3; i++ {
		_, s := tx.StartSpan(ctx, fmt.Sprintf("s%d", i), "app", "", "", nil)
		s.End()
	}
	tx.End()

	require.Len(t, rec.txs, 1)
	assert.Equal(t, model.SpanCount{Started: 3, Dropped: 3}, rec.txs[0].SpanCount)
}

func TestCaptureErrorBinding(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)

	// 没有 transaction
	require.NoError(t, tr.CaptureError(context.Background(), errors.New("plain"), "main", true))
	require.Len(t, rec.errs, 1)
	assert.Empty(t, rec.errs[0].TransactionID)
	assert.Equal(t, "*errors.errorString", rec.errs[0].Exception.Type)

	ctx, tx := tr.StartTransaction(context.Background(), "GET /", "request")
	tx.SetRequest(&model.Request{Method: "GET", Headers: map[string]string{"Accept": "*/*"}})
	sctx, span := tx.StartSpan(ctx, "read", "fs", "", "", nil)

	wrapped := fmt.Errorf("load config: %w", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist})
	require.NoError(t, tr.CaptureError(sctx, wrapped, "config.Load", false))
	require.Len(t, rec.errs, 2)
	e := rec.errs[1]
	assert.Equal(t, tx.TraceID(), e.TraceID)
	assert.Equal(t, tx.ID(), e.TransactionID)
	assert.Equal(t, span.ID(), e.ParentID)
	assert.Equal(t, "*errors.errorString", e.Exception.Type)
	assert.False(t, e.Exception.Handled)
	require.NotNil(t, e.Context)
	assert.Equal(t, "GET", e.Context.Request.Method)

	require.NoError(t, tr.CaptureLog(ctx, "something odd", "warning"))
	require.Len(t, rec.errs, 3)
	assert.Equal(t, tx.ID(), rec.errs[2].ParentID)
	assert.Equal(t, "something odd", rec.errs[2].Log.Message)

	assert.NoError(t, tr.CaptureError(ctx, nil, "", true))
	assert.Len(t, rec.errs, 3)
}

func TestErrorTypeErrorx(t *testing.T) {
	assert.Equal(t, "errorx.Error[1001]", errorType(errorx.ErrQueueFull))
}

func TestConcurrentSpanEnd(t *testing.T) {
	rec := &recorder{}
	tr := NewTracer(rec)
	ctx, tx := tr.StartTransaction(context.Background(), "fanout", "worker")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, s := tx.StartSpan(ctx, "call", "external", "http", "", nil)
			s.End()
		}()
	}
	wg.Wait()
	tx.End()

	assert.Len(t, rec.spans, 20)
	assert.Equal(t, 20, rec.txs[0].SpanCount.Started)
}
