package model

// Span transaction 内的一个子操作（比如一次下游调用）
type Span struct {
	ID            string       `json:"id"`
	TransactionID string       `json:"transaction_id,omitempty"`
	TraceID       string       `json:"trace_id"`
	ParentID      string       `json:"parent_id"`
	Name          string       `json:"name"`
	Type          string       `json:"type"`
	Subtype       string       `json:"subtype,omitempty"`
	Action        string       `json:"action,omitempty"`
	Timestamp     int64        `json:"timestamp"`
	Duration      float64      `json:"duration"`
	Context       *SpanContext `json:"context,omitempty"`
	Outcome       string       `json:"outcome,omitempty"`
}

// SpanContext span 的附加上下文
type SpanContext struct {
	HTTP   *SpanHTTP `json:"http,omitempty"`
	Labels Labels    `json:"tags,omitempty"`
}

// SpanHTTP 出站 HTTP 调用信息
type SpanHTTP struct {
	URL        string `json:"url,omitempty"`
	Method     string `json:"method,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}
