package model

// Transaction 一次逻辑操作（比如一次 HTTP 请求）的根单元
type Transaction struct {
	ID        string    `json:"id"`
	TraceID   string    `json:"trace_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Result    string    `json:"result,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Duration  float64   `json:"duration"`
	Sampled   bool      `json:"sampled"`
	SpanCount SpanCount `json:"span_count"`
	Context   *Context  `json:"context,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
}

// SpanCount transaction 下 span 数量汇总
type SpanCount struct {
	Started int `json:"started"`
	Dropped int `json:"dropped"`
}
