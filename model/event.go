// Package model 定义上报给 intake v2 接口的事件结构。
//
// 事件在 End() 之前只由创建它的调用栈修改，入队之后不再修改。
package model

// Kind 是 ndjson 行里包裹事件的 key
type Kind string

const (
	KindMetadata    Kind = "metadata"
	KindTransaction Kind = "transaction"
	KindSpan        Kind = "span"
	KindError       Kind = "error"
	KindMetricSet   Kind = "metricset"
)

// Event 是可以入队的事件：Transaction / Span / Error / MetricSet
type Event interface {
	Kind() Kind
}

var (
	_ Event = (*Transaction)(nil)
	_ Event = (*Span)(nil)
	_ Event = (*Error)(nil)
	_ Event = (*MetricSet)(nil)
)

func (*Transaction) Kind() Kind { return KindTransaction }
func (*Span) Kind() Kind        { return KindSpan }
func (*Error) Kind() Kind       { return KindError }
func (*MetricSet) Kind() Kind   { return KindMetricSet }

// Labels 用户自定义标签
type Labels map[string]string

// Clone 复制一份，nil 返回 nil
func (l Labels) Clone() Labels {
	if l == nil {
		return nil
	}
	out := make(Labels, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}
