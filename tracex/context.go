package tracex

import (
	"context"

	"github.com/imattdu/orbit-apm/cctx"
)

type (
	txKey   struct{}
	spanKey struct{}
)

// 写进 cctx 的关联字段，logx 会带到每条日志里
const (
	FieldTraceID       = "trace_id"
	FieldTransactionID = "transaction_id"
	FieldSpanID        = "span_id"
)

// ContextWithTransaction 把 tx 设为当前 transaction，并清掉旧的当前 span
func ContextWithTransaction(ctx context.Context, tx *Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, txKey{}, tx)
	ctx = context.WithValue(ctx, spanKey{}, (*Span)(nil))
	return cctx.WithMany(ctx, map[string]any{
		FieldTraceID:       tx.TraceID(),
		FieldTransactionID: tx.ID(),
		FieldSpanID:        nil,
	})
}

// ContextWithSpan 把 s 设为当前 span（同时设置它所属的 transaction）
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, txKey{}, s.tx)
	ctx = context.WithValue(ctx, spanKey{}, s)
	return cctx.WithMany(ctx, map[string]any{
		FieldTraceID:       s.TraceID(),
		FieldTransactionID: s.tx.ID(),
		FieldSpanID:        s.ID(),
	})
}

func TransactionFromContext(ctx context.Context) *Tx {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{}).(*Tx)
	return tx
}

func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// TraceIDFromContext 没有则返回空串
func TraceIDFromContext(ctx context.Context) string {
	v, _ := cctx.GetAs[string](ctx, FieldTraceID)
	return v
}
