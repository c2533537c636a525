package tracex

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

var nowFunc = time.Now

// Tx transaction 句柄。End 之前可以并发修改，End 之后所有修改都被忽略。
type Tx struct {
	tracer *Tracer
	start  time.Time
	ended  atomic.Bool

	mu   sync.Mutex
	data *model.Transaction
}

func (tx *Tx) ID() string      { return tx.data.ID }
func (tx *Tx) TraceID() string { return tx.data.TraceID }
func (tx *Tx) Name() string    { return tx.data.Name }

// Ended End 是否已经调用过
func (tx *Tx) Ended() bool { return tx.ended.Load() }

func (tx *Tx) modify(f func(d *model.Transaction)) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended.Load() {
		return
	}
	f(tx.data)
}

func (tx *Tx) SetName(name string) {
	tx.modify(func(d *model.Transaction) { d.Name = name })
}

func (tx *Tx) SetResult(result string) {
	tx.modify(func(d *model.Transaction) { d.Result = result })
}

// SetOutcome success / failure / unknown
func (tx *Tx) SetOutcome(outcome string) {
	tx.modify(func(d *model.Transaction) { d.Outcome = outcome })
}

func (tx *Tx) SetLabel(k, v string) {
	tx.modify(func(d *model.Transaction) {
		if d.Context == nil {
			d.Context = &model.Context{}
		}
		if d.Context.Labels == nil {
			d.Context.Labels = model.Labels{}
		}
		d.Context.Labels[k] = v
	})
}

// SetRequest / SetResponse / SetUser 设置上下文，敏感头在序列化时脱敏

func (tx *Tx) SetRequest(req *model.Request) {
	tx.modify(func(d *model.Transaction) {
		if d.Context == nil {
			d.Context = &model.Context{}
		}
		d.Context.Request = req
	})
}

func (tx *Tx) SetResponse(resp *model.Response) {
	tx.modify(func(d *model.Transaction) {
		if d.Context == nil {
			d.Context = &model.Context{}
		}
		d.Context.Response = resp
	})
}

func (tx *Tx) SetUser(u *model.User) {
	tx.modify(func(d *model.Transaction) {
		if d.Context == nil {
			d.Context = &model.Context{}
		}
		d.Context.User = u
	})
}

// contextSnapshot error 复用 transaction 的 request 上下文
func (tx *Tx) contextSnapshot() *model.Context {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.data.Context == nil {
		return nil
	}
	c := *tx.data.Context
	c.Labels = c.Labels.Clone()
	return &c
}

// SpanCount 当前 span 计数
func (tx *Tx) SpanCount() model.SpanCount {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.data.SpanCount
}

// StartSpan 开始一个 span。parent 为 nil 时直接挂在 transaction 下。
func (tx *Tx) StartSpan(ctx context.Context, name, typ, subtype, action string, parent *Span) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	parentID := tx.data.ID
	if parent != nil {
		parentID = parent.data.ID
	}
	now := nowFunc()
	s := &Span{
		tx:    tx,
		start: now,
		data: &model.Span{
			ID:            model.NewID(),
			TransactionID: tx.data.ID,
			TraceID:       tx.data.TraceID,
			ParentID:      parentID,
			Name:          name,
			Type:          typ,
			Subtype:       subtype,
			Action:        action,
			Timestamp:     model.Timestamp(now),
		},
	}
	tx.modify(func(d *model.Transaction) { d.SpanCount.Started++ })
	return ContextWithSpan(ctx, s), s
}

func (tx *Tx) spanDropped() {
	tx.modify(func(d *model.Transaction) { d.SpanCount.Dropped++ })
}

// End 计算耗时并入队，只有第一次调用生效
func (tx *Tx) End() {
	tx.EndContext(context.Background())
}

// EndContext 同 End，ctx 只用于日志关联
func (tx *Tx) EndContext(ctx context.Context) {
	tx.mu.Lock()
	if !tx.ended.CompareAndSwap(false, true) {
		tx.mu.Unlock()
		return
	}
	tx.data.Duration = durationMillis(tx.start, nowFunc())
	data := tx.data
	tx.mu.Unlock()

	t := tx.tracer
	if t == nil || t.reporter == nil {
		return
	}
	if err := t.reporter.QueueTransaction(ctx, data); err != nil {
		t.logger.Debug(ctx, logx.TagEnqueue, err, logx.Kind, string(model.KindTransaction))
	}
}

func durationMillis(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
