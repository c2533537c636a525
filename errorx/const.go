package errorx

// CodeEntry 表示一个错误码 + 默认文案。
// 只在这里集中定义，组件里用变量名，不直接写裸 code。
type CodeEntry struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// -------------------- 错误类别（系统 / 业务） --------------------

var (
	ErrTypeSys = CodeEntry{Code: 4, Message: "system error"}
	ErrTypeBiz = CodeEntry{Code: 5, Message: "business error"}
)

// -------------------- 出错组件 --------------------

var (
	ServiceDefault    = CodeEntry{Code: 1, Message: "unknown"}
	ServiceQueue      = CodeEntry{Code: 10, Message: "queue"}
	ServiceTransport  = CodeEntry{Code: 11, Message: "transport"}
	ServiceSerializer = CodeEntry{Code: 12, Message: "serializer"}
	ServiceFilter     = CodeEntry{Code: 13, Message: "filter"}
	ServiceConfig     = CodeEntry{Code: 14, Message: "config"}
	ServiceMetrics    = CodeEntry{Code: 15, Message: "metrics"}
	ServiceIntake     = CodeEntry{Code: 16, Message: "intake"}
)

// -------------------- 结果枚举 --------------------

var (
	Success = CodeEntry{Code: 0, Message: "success"}
	Failed  = CodeEntry{Code: 1, Message: "failed"}
)

// -------------------- agent 错误码 --------------------

var (
	CodeDefault     = CodeEntry{Code: 1000, Message: "unknown error"}
	CodeQueueFull   = CodeEntry{Code: 1001, Message: "queue reached max capacity"}
	CodeDisposed    = CodeEntry{Code: 1002, Message: "already disposed"}
	CodeNotStarted  = CodeEntry{Code: 1003, Message: "worker not started"}
	CodeTransport   = CodeEntry{Code: 1004, Message: "failed sending events"}
	CodeHTTPStatus  = CodeEntry{Code: 1005, Message: "unexpected intake response status"}
	CodeSerialize   = CodeEntry{Code: 1006, Message: "failed serializing event"}
	CodeConfig      = CodeEntry{Code: 1007, Message: "invalid configuration"}
	CodeFilterPanic = CodeEntry{Code: 1008, Message: "filter panicked"}
	CodeBadPayload  = CodeEntry{Code: 1009, Message: "malformed intake payload"}
)

// 哨兵错误：只用于 errors.Is 比较（按 code），不要往上面挂 Option
var (
	ErrQueueFull  = New(CodeQueueFull, WithService(ServiceQueue))
	ErrDisposed   = New(CodeDisposed)
	ErrNotStarted = New(CodeNotStarted, WithService(ServiceTransport))
)
