package filter

import (
	"context"

	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

// Set 按事件类型分组的过滤链，每个 transport worker 持有一份
type Set struct {
	Transaction *Chain[*model.Transaction]
	Span        *Chain[*model.Span]
	Error       *Chain[*model.Error]
	MetricSet   *Chain[*model.MetricSet]
}

func NewSet(logger logx.Logger) *Set {
	return &Set{
		Transaction: NewChain[*model.Transaction](string(model.KindTransaction), logger),
		Span:        NewChain[*model.Span](string(model.KindSpan), logger),
		Error:       NewChain[*model.Error](string(model.KindError), logger),
		MetricSet:   NewChain[*model.MetricSet](string(model.KindMetricSet), logger),
	}
}

// Apply 找到事件对应的链并执行；未知类型原样放行
func (s *Set) Apply(ctx context.Context, e model.Event) (model.Event, bool) {
	if s == nil {
		return e, true
	}
	switch v := e.(type) {
	case *model.Transaction:
		if out, ok := s.Transaction.Apply(ctx, v); ok {
			return out, true
		}
	case *model.Span:
		if out, ok := s.Span.Apply(ctx, v); ok {
			return out, true
		}
	case *model.Error:
		if out, ok := s.Error.Apply(ctx, v); ok {
			return out, true
		}
	case *model.MetricSet:
		if out, ok := s.MetricSet.Apply(ctx, v); ok {
			return out, true
		}
	default:
		return e, true
	}
	// 不返回 typed nil
	return nil, false
}
