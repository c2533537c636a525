package logx

import (
	"context"
	"log/slog"

	"github.com/imattdu/orbit-apm/cctx"
	"github.com/imattdu/orbit-apm/errorx"
)

// encodeLog 把 ctx / tag / msg / kv 整合成一组 slog.Attr
func encodeLog(ctx context.Context, depth int, tag string, msg any, kv ...any) []slog.Attr {
	attrs := make([]slog.Attr, 0, 16)

	// tag
	if tag != "" {
		attrs = append(attrs, slog.String("tag", tag))
	}

	// caller
	c := getCaller(depth + 1)
	attrs = append(attrs,
		slog.String("file", c.file),
		slog.Int("line", c.line),
		slog.String("func", c.funcName),
	)

	// errorx 集成（如果 msg 是 *errorx.Error 或 error）
	switch v := msg.(type) {
	case *errorx.Error:
		attrs = append(attrs,
			slog.Int("code", v.Code.Code),
			slog.String("code_msg", v.Code.Message),
			slog.String("err_type", v.Type.Message),
			slog.String("service", v.Service.Message),
		)
		for k, vv := range v.Fields {
			attrs = append(attrs, slog.Any(k, vv))
		}
		if v.Message != "" {
			attrs = append(attrs, slog.String("msg", v.Message))
		}
		if v.Cause != nil {
			attrs = append(attrs, slog.String("error", v.Cause.Error()))
		}
	case error:
		attrs = append(attrs, slog.String("error", v.Error()))
	default:
		attrs = append(attrs, slog.Any("msg", v))
	}

	// cctx 中的通用字段（trace_id / transaction_id / span_id / worker 等）
	if ctx != nil {
		for k, v := range cctx.All(ctx) {
			attrs = append(attrs, slog.Any(k, v))
		}
	}

	// 额外 kv（必须是偶数个）
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(k, kv[i+1]))
	}

	return attrs
}
