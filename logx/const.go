package logx

const (
	TagUndef = "undef"

	TagAgentStart  = "agent_start"
	TagAgentStop   = "agent_stop"
	TagConfig      = "config"
	TagWorkerState = "worker_state"

	TagEnqueue     = "enqueue"
	TagQueueFull   = "queue_full"
	TagBatchFormed = "batch_formed"
	TagBatchSent   = "batch_sent"
	TagBatchFailed = "batch_failed"
	TagSerialize   = "serialize_failure"
	TagFilterDrop  = "filter_drop"
	TagFilterPanic = "filter_panic"
	TagWorkerPanic = "worker_panic"
	TagMetrics     = "metrics"

	TagRequestIn   = "request_in"
	TagRequestOut  = "request_out"
	TagHttpSuccess = "http_success"
	TagHttpFailure = "http_failure"
	TagIntake      = "intake"

	Cost = "cost"
	Msg  = "msg"
	Err  = "err"

	Remote   = "remote"
	Method   = "method"
	URL      = "url"
	Path     = "path"
	Query    = "query"
	Request  = "request"
	Body     = "body"
	Response = "response"
	Status   = "status"

	Worker     = "worker"
	Kind       = "kind"
	BatchSize  = "batch_size"
	QueueCount = "queue_count"
	MaxQueue   = "max_queue"
	Bytes      = "bytes"
)
