package errorx

import (
	"errors"
	"fmt"
)

// Error 是统一错误类型：带 code、type、service、message、cause、扩展字段。
type Error struct {
	Code    CodeEntry      `json:"code"`    // 错误码
	Type    CodeEntry      `json:"type"`    // 错误类型：ErrTypeSys / ErrTypeBiz
	Service CodeEntry      `json:"service"` // 出错组件：queue / transport / ...
	Message string         `json:"message"` // 用于覆盖 CodeEntry.Message
	Cause   error          `json:"-"`
	Fields  map[string]any `json:"fields,omitempty"`
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("code=%d service=%s msg=%s cause=%v", e.Code.Code, e.Service.Message, msg, e.Cause)
	}
	return fmt.Sprintf("code=%d service=%s msg=%s", e.Code.Code, e.Service.Message, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 按 code 比较，支持 errors.Is(err, ErrDisposed)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code.Code == t.Code.Code
}

// -------------------- Option --------------------

type Option func(*Error)

func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

func WithType(t CodeEntry) Option {
	return func(e *Error) { e.Type = t }
}

func WithService(s CodeEntry) Option {
	return func(e *Error) { e.Service = s }
}

func WithField(k string, v any) Option {
	return func(e *Error) {
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
}

func WithFields(kv map[string]any) Option {
	return func(e *Error) {
		if len(kv) == 0 {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any, len(kv))
		}
		for k, v := range kv {
			e.Fields[k] = v
		}
	}
}

// -------------------- 构造函数 --------------------

func New(code CodeEntry, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Type:    ErrTypeSys,
		Service: ServiceDefault,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Newf(code CodeEntry, f string, args ...any) *Error {
	return New(code, WithMessage(fmt.Sprintf(f, args...)))
}

// NewBiz 调用方用法错误（比如已关闭后继续写入）
func NewBiz(code CodeEntry, opts ...Option) *Error {
	opts = append([]Option{WithType(ErrTypeBiz)}, opts...)
	return New(code, opts...)
}

// NewSys 系统错误（网络、编码等）
func NewSys(code CodeEntry, opts ...Option) *Error {
	opts = append([]Option{WithType(ErrTypeSys)}, opts...)
	return New(code, opts...)
}

// -------------------- Wrap --------------------

// Wrap 包装 err。已经是 *Error 时复制一份再补 Option，不修改原值（哨兵错误是共享的）。
func Wrap(err error, code CodeEntry, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if len(e.Fields) > 0 {
			cp.Fields = make(map[string]any, len(e.Fields))
			for k, v := range e.Fields {
				cp.Fields[k] = v
			}
		}
		for _, opt := range opts {
			opt(&cp)
		}
		return &cp
	}

	opts = append([]Option{WithCause(err)}, opts...)
	return New(code, opts...)
}
