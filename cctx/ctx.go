// Package cctx 是挂在 context 上的不可变键值袋。
//
// agent 用它携带需要出现在每条日志里的关联字段（trace_id / transaction_id /
// span_id / worker），logx 会把袋子里的全部字段写进日志。
package cctx

import (
	"context"
)

// ----------------- 内部类型 -----------------

type bagKeyType struct{}

var bagKey bagKeyType

// bag 是不可变语义的键值容器：每次写入时都会复制一份
type bag map[string]any

// 提取 bag（可能为 nil）
func bagFrom(ctx context.Context) bag {
	if ctx == nil {
		return nil
	}
	if b, ok := ctx.Value(bagKey).(bag); ok && b != nil {
		return b
	}
	return nil
}

// 深拷贝：仅针对 map[string]any 与 []any 做递归 copy，其它类型按值赋
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepCopy(x[i])
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// ----------------- 对外 API -----------------

// With 在现有 ctx 上写入一条 k/v，返回新 ctx（不可变）
func With(ctx context.Context, key string, val any) context.Context {
	return WithMany(ctx, map[string]any{key: val})
}

// WithMany 一次写入多条键值（不可变）；值为 nil 或空串的 key 会被删除
func WithMany(ctx context.Context, kv map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	old := bagFrom(ctx)
	newMap := make(map[string]any, len(old)+len(kv))
	for k, v := range old {
		newMap[k] = v
	}
	for k, v := range kv {
		if v == nil || v == "" {
			delete(newMap, k)
			continue
		}
		newMap[k] = deepCopy(v)
	}
	return context.WithValue(ctx, bagKey, bag(newMap))
}

// Get 读取一个键
func Get(ctx context.Context, key string) (any, bool) {
	if b := bagFrom(ctx); b != nil {
		v, ok := b[key]
		return v, ok
	}
	return nil, false
}

// GetAs 读取并断言为 T
func GetAs[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	v, ok := Get(ctx, key)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	if !ok {
		return zero, false
	}
	return tv, true
}

// All 返回 Bag 的深拷贝
func All(ctx context.Context) map[string]any {
	if b := bagFrom(ctx); b != nil {
		return deepCopyMap(b)
	}
	return map[string]any{}
}

// Detach 返回一个不继承 parent 取消/超时、但保留 Bag 的 ctx。
// 用于请求结束后仍要执行的收尾（比如结束 transaction 并入队）。
func Detach(parent context.Context) context.Context {
	if parent == nil {
		return context.Background()
	}
	return context.WithoutCancel(parent)
}
