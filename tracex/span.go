package tracex

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

// Span span 句柄
type Span struct {
	tx    *Tx
	start time.Time
	ended atomic.Bool

	mu   sync.Mutex
	data *model.Span
}

func (s *Span) ID() string       { return s.data.ID }
func (s *Span) TraceID() string  { return s.data.TraceID }
func (s *Span) ParentID() string { return s.data.ParentID }
func (s *Span) Transaction() *Tx { return s.tx }
func (s *Span) Ended() bool      { return s.ended.Load() }

func (s *Span) modify(f func(*model.Span)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended.Load() {
		return
	}
	f(s.data)
}

// StartSpan 以 s 为父开始一个子 span
func (s *Span) StartSpan(ctx context.Context, name, typ, subtype, action string) (context.Context, *Span) {
	return s.tx.StartSpan(ctx, name, typ, subtype, action, s)
}

func (s *Span) SetOutcome(outcome string) {
	s.modify(func(d *model.Span) { d.Outcome = outcome })
}

func (s *Span) SetLabel(k, v string) {
	s.modify(func(d *model.Span) {
		if d.Context == nil {
			d.Context = &model.SpanContext{}
		}
		if d.Context.Labels == nil {
			d.Context.Labels = model.Labels{}
		}
		d.Context.Labels[k] = v
	})
}

// SetHTTP 出站 HTTP 调用信息
func (s *Span) SetHTTP(method, url string, status int) {
	s.modify(func(d *model.Span) {
		if d.Context == nil {
			d.Context = &model.SpanContext{}
		}
		d.Context.HTTP = &model.SpanHTTP{URL: url, Method: method, StatusCode: status}
	})
}

func (s *Span) End() {
	s.EndContext(context.Background())
}

// EndContext 计算耗时并入队，只有第一次调用生效。入队失败计入 span_count.dropped。
func (s *Span) EndContext(ctx context.Context) {
	s.mu.Lock()
	if !s.ended.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	s.data.Duration = durationMillis(s.start, nowFunc())
	data := s.data
	s.mu.Unlock()

	t := s.tx.tracer
	if t == nil || t.reporter == nil {
		return
	}
	if err := t.reporter.QueueSpan(ctx, data); err != nil {
		s.tx.spanDropped()
		t.logger.Debug(ctx, logx.TagEnqueue, err, logx.Kind, string(model.KindSpan))
	}
}
