// Package tracex 是生产事件的一侧：创建 transaction / span / error，结束时交给 Reporter 入队。
//
// 父子关系总是显式传入（StartSpan 的 parent 参数）；ctx 查找表只是给拿不到句柄的
// 调用点用的便利，transport 不读取它。
package tracex

import (
	"context"

	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

// Reporter 接收已经结束的事件，transport.Worker 实现了它。
// 实现必须非阻塞。
type Reporter interface {
	QueueTransaction(ctx context.Context, tx *model.Transaction) error
	QueueSpan(ctx context.Context, span *model.Span) error
	QueueError(ctx context.Context, e *model.Error) error
}

type Tracer struct {
	reporter Reporter
	logger   logx.Logger
}

type Option func(*Tracer)

func WithLogger(l logx.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

func NewTracer(r Reporter, opts ...Option) *Tracer {
	t := &Tracer{reporter: r}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logx.OrNop(t.logger)
	return t
}

// StartTransaction 开始一个新 trace 的根 transaction，并把它放进返回的 ctx
func (t *Tracer) StartTransaction(ctx context.Context, name, typ string) (context.Context, *Tx) {
	if ctx == nil {
		ctx = context.Background()
	}
	now := nowFunc()
	tx := &Tx{
		tracer: t,
		start:  now,
		data: &model.Transaction{
			ID:        model.NewID(),
			TraceID:   model.NewTraceID(),
			Name:      name,
			Type:      typ,
			Timestamp: model.Timestamp(now),
			Sampled:   true,
		},
	}
	return ContextWithTransaction(ctx, tx), tx
}

// CaptureError 记录一个错误，关联到 ctx 里当前的 transaction / span（如果有）
func (t *Tracer) CaptureError(ctx context.Context, err error, culprit string, handled bool) error {
	if err == nil {
		return nil
	}
	e := &model.Error{
		ID:        model.NewID(),
		Timestamp: model.Timestamp(nowFunc()),
		Culprit:   culprit,
		Exception: &model.Exception{
			Message: err.Error(),
			Type:    errorType(err),
			Handled: handled,
		},
	}
	t.bind(ctx, e)
	return t.queueError(ctx, e)
}

// CaptureLog 记录一条错误日志（没有异常对象）
func (t *Tracer) CaptureLog(ctx context.Context, message, level string) error {
	e := &model.Error{
		ID:        model.NewID(),
		Timestamp: model.Timestamp(nowFunc()),
		Log:       &model.ErrorLog{Message: message, Level: level},
	}
	t.bind(ctx, e)
	return t.queueError(ctx, e)
}

// bind 把 error 挂到当前 span（优先）或 transaction 上
func (t *Tracer) bind(ctx context.Context, e *model.Error) {
	tx := TransactionFromContext(ctx)
	if tx == nil {
		return
	}
	e.TraceID = tx.data.TraceID
	e.TransactionID = tx.data.ID
	e.ParentID = tx.data.ID
	if s := SpanFromContext(ctx); s != nil && s.tx == tx {
		e.ParentID = s.data.ID
	}
	if c := tx.contextSnapshot(); c != nil {
		e.Context = c
	}
}

func (t *Tracer) queueError(ctx context.Context, e *model.Error) error {
	if t.reporter == nil {
		return nil
	}
	if err := t.reporter.QueueError(ctx, e); err != nil {
		t.logger.Debug(ctx, logx.TagEnqueue, err, logx.Kind, string(model.KindError))
		return err
	}
	return nil
}
