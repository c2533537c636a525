package model

// Error 捕获到的异常或错误日志
type Error struct {
	ID            string     `json:"id"`
	TraceID       string     `json:"trace_id,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	ParentID      string     `json:"parent_id,omitempty"`
	Timestamp     int64      `json:"timestamp"`
	Culprit       string     `json:"culprit,omitempty"`
	Exception     *Exception `json:"exception,omitempty"`
	Log           *ErrorLog  `json:"log,omitempty"`
	Context       *Context   `json:"context,omitempty"`
}

type Exception struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Handled bool   `json:"handled"`
}

type ErrorLog struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}
