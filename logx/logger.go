package logx

import (
	"context"
	"log/slog"
	"time"
)

// Logger 对外暴露给 agent 各组件使用的接口
type Logger interface {
	Debug(ctx context.Context, tag string, msg any, kv ...any)
	Info(ctx context.Context, tag string, msg any, kv ...any)
	Warn(ctx context.Context, tag string, msg any, kv ...any)
	Error(ctx context.Context, tag string, msg any, kv ...any)
	// Close 写完队列里剩余日志并关闭文件
	Close() error
}

type loggerImpl struct {
	slog *slog.Logger
	h    *handler
}

func (l *loggerImpl) Debug(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, 0, slog.LevelDebug, tag, msg, kv...)
}

func (l *loggerImpl) Info(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, 0, slog.LevelInfo, tag, msg, kv...)
}

func (l *loggerImpl) Warn(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, 0, slog.LevelWarn, tag, msg, kv...)
}

func (l *loggerImpl) Error(ctx context.Context, tag string, msg any, kv ...any) {
	l.log(ctx, 0, slog.LevelError, tag, msg, kv...)
}

func (l *loggerImpl) Close() error {
	if l == nil || l.h == nil {
		return nil
	}
	return l.h.close()
}

// depth: 额外的包装层数（包级快捷函数为 1）
func (l *loggerImpl) log(ctx context.Context, depth int, level slog.Level, tag string, msg any, kv ...any) {
	if l == nil || l.slog == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slog.Enabled(ctx, level) {
		return
	}

	// log -> Info/Debug... -> 调用方
	attrs := encodeLog(ctx, depth+2, tag, msg, kv...)
	rec := slog.NewRecord(time.Now(), level, "", 0)
	rec.AddAttrs(attrs...)

	// 直接用 handler 处理（自定义 handler 支持异步、切分等）
	_ = l.slog.Handler().Handle(ctx, rec)
}

// -------------------- 空 logger --------------------

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, any, ...any) {}
func (nopLogger) Info(context.Context, string, any, ...any)  {}
func (nopLogger) Warn(context.Context, string, any, ...any)  {}
func (nopLogger) Error(context.Context, string, any, ...any) {}
func (nopLogger) Close() error                               { return nil }

// Nop 丢弃所有日志
func Nop() Logger { return nopLogger{} }

// OrNop l 为 nil 时返回 Nop()
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// -------------------- 全局默认 logger --------------------

var defaultLogger Logger

// Init 根据 Config 初始化全局 logger（只在 main 里调用一次）
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// New 创建一个独立的 Logger 实例
func New(cfg Config) (Logger, error) {
	h, err := newHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{slog: slog.New(h), h: h}, nil
}

// L 返回全局 logger，未 Init 时为 nil
func L() Logger {
	return defaultLogger
}

// 方便直接调用的快捷函数

func Debug(ctx context.Context, tag string, msg any, kv ...any) {
	logDefault(ctx, slog.LevelDebug, tag, msg, kv...)
}

func Info(ctx context.Context, tag string, msg any, kv ...any) {
	logDefault(ctx, slog.LevelInfo, tag, msg, kv...)
}

func Warn(ctx context.Context, tag string, msg any, kv ...any) {
	logDefault(ctx, slog.LevelWarn, tag, msg, kv...)
}

func Error(ctx context.Context, tag string, msg any, kv ...any) {
	logDefault(ctx, slog.LevelError, tag, msg, kv...)
}

func logDefault(ctx context.Context, level slog.Level, tag string, msg any, kv ...any) {
	switch l := L().(type) {
	case nil:
	case *loggerImpl:
		l.log(ctx, 1, level, tag, msg, kv...)
	default:
		switch level {
		case slog.LevelDebug:
			l.Debug(ctx, tag, msg, kv...)
		case slog.LevelInfo:
			l.Info(ctx, tag, msg, kv...)
		case slog.LevelWarn:
			l.Warn(ctx, tag, msg, kv...)
		default:
			l.Error(ctx, tag, msg, kv...)
		}
	}
}
