// Package filter 实现序列化前按事件类型执行的过滤链。
package filter

import (
	"context"
	"fmt"
	"sync"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/logx"
)

// Func 返回 nil 表示丢弃该事件；返回新值则传给下一个过滤器。
// ctx 来自 transport worker，可以用它调用 Shutdown 而不会死锁。
type Func[T comparable] func(ctx context.Context, item T) T

// Chain 一组有序过滤器，Add 与 Apply 可并发调用
type Chain[T comparable] struct {
	name   string
	logger logx.Logger

	mu      sync.RWMutex
	filters []Func[T]
}

func NewChain[T comparable](name string, logger logx.Logger) *Chain[T] {
	return &Chain[T]{name: name, logger: logx.OrNop(logger)}
}

// Add 追加过滤器，nil 忽略
func (c *Chain[T]) Add(f Func[T]) {
	if f == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
}

// Len 已注册过滤器数量
func (c *Chain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Apply 依次执行过滤器。ok=false 表示被丢弃。
// 过滤器 panic 时记日志并把当前值原样交给下一个过滤器。
func (c *Chain[T]) Apply(ctx context.Context, item T) (T, bool) {
	c.mu.RLock()
	filters := c.filters
	c.mu.RUnlock()

	var zero T
	for i, f := range filters {
		out, err := c.run(ctx, f, item)
		if err != nil {
			c.logger.Warn(ctx, logx.TagFilterPanic, err, logx.Kind, c.name, "filter_index", i)
			continue
		}
		if out == zero {
			c.logger.Debug(ctx, logx.TagFilterDrop, "filter returned nil, item won't be sent",
				logx.Kind, c.name, "filter_index", i)
			return zero, false
		}
		item = out
	}
	return item, true
}

func (c *Chain[T]) run(ctx context.Context, f Func[T], item T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorx.New(errorx.CodeFilterPanic, errorx.WithService(errorx.ServiceFilter),
				errorx.WithMessage(fmt.Sprint(r)))
		}
	}()
	return f(ctx, item), nil
}
