// Package transport 把队列里的事件按 batch 发送到 intake。
//
// 每个 Worker 只有一个后台 goroutine：取 batch → 过滤 + 序列化 → POST → 记录结果。
// 发送失败的 batch 直接丢弃，不重试也不重新入队。
package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/atomic"

	"github.com/imattdu/orbit-apm/cctx"
	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/filter"
	"github.com/imattdu/orbit-apm/httpclient"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/ndjson"
	"github.com/imattdu/orbit-apm/queue"
)

// Config 一个 worker 的配置。events 和 RUM 两种 worker 只是 URL / Dedicated 不同。
type Config struct {
	// 日志和指标里的 worker 名
	Name string
	// 完整的 intake 地址
	URL string
	// 后台 goroutine 锁定到一个 OS 线程
	Dedicated bool

	Queue      queue.Config
	Client     []httpclient.Option
	Serializer *ndjson.Serializer // nil 时用空 metadata
	Metrics    *Metrics           // nil 时创建一份不注册的
	Logger     logx.Logger
}

type Worker struct {
	name      string
	url       string
	dedicated bool

	queue   *queue.Queue
	ser     *ndjson.Serializer
	client  *httpclient.Client
	filters *filter.Set
	metrics *Metrics
	logger  logx.Logger

	mu       sync.Mutex // Start 与 teardown 互斥
	state    atomic.Int32
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	started  chan struct{}
	done     chan struct{}

	// 后台 goroutine 正在执行过滤器
	inCallback atomic.Bool
}

type workerKey struct{}

func New(cfg Config) (*Worker, error) {
	if cfg.URL == "" {
		return nil, errorx.New(errorx.CodeConfig, errorx.WithService(errorx.ServiceTransport),
			errorx.WithMessage("worker url is empty"))
	}
	if cfg.Name == "" {
		cfg.Name = "events"
	}
	logger := logx.OrNop(cfg.Logger)

	w := &Worker{
		name:      cfg.Name,
		url:       cfg.URL,
		dedicated: cfg.Dedicated,
		ser:       cfg.Serializer,
		filters:   filter.NewSet(logger),
		metrics:   cfg.Metrics,
		logger:    logger,
		started:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	if w.ser == nil {
		w.ser = ndjson.New(ndjson.Options{Logger: logger})
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}

	opts := append([]httpclient.Option{httpclient.WithStatsHook(w.logCall)}, cfg.Client...)
	client, err := httpclient.New(opts...)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeConfig, errorx.WithService(errorx.ServiceTransport))
	}
	w.client = client
	w.queue = queue.New(cfg.Queue, logger)

	ctx := cctx.With(context.Background(), logx.Worker, w.name)
	ctx = context.WithValue(ctx, workerKey{}, w)
	w.ctx, w.cancel = context.WithCancel(ctx)
	return w, nil
}

// -------------------- 生命周期 --------------------

// Start 启动后台 goroutine，返回时循环已经在运行。重复调用无副作用。
func (w *Worker) Start() error {
	w.mu.Lock()
	switch w.State() {
	case StateRunning:
		w.mu.Unlock()
		return nil
	case StateDraining, StateStopped:
		w.mu.Unlock()
		return errorx.NewBiz(errorx.CodeDisposed, errorx.WithService(errorx.ServiceTransport))
	}
	w.setState(StateRunning)
	go w.loop()
	w.mu.Unlock()

	<-w.started
	return nil
}

// Shutdown 停止 worker 并等待后台 goroutine 退出，或者 ctx 结束。
// 可以并发、重复调用，清理只执行一次。队列里剩余的事件不再发送。
// 过滤器执行期间调用（或者 ctx 来自 worker 自己）只发出停止信号，不等待：
// 后台 goroutine 要等过滤器返回才能退出。
func (w *Worker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(w.teardown)

	if ctx == nil {
		ctx = context.Background()
	}
	if w.inCallback.Load() {
		return nil
	}
	if owner, _ := ctx.Value(workerKey{}).(*Worker); owner == w {
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose 等价于 Shutdown(context.Background())
func (w *Worker) Dispose() {
	_ = w.Shutdown(context.Background())
}

func (w *Worker) teardown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queue.Close()
	if w.State() == StateNotStarted {
		w.setState(StateStopped)
		w.cancel()
		w.client.CloseIdleConnections()
		close(w.done)
		return
	}
	w.setState(StateDraining)
	w.cancel()
}

// State 当前状态
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	w.logger.Info(w.ctx, logx.TagWorkerState, "worker state changed", "from", prev.String(), "to", s.String())
}

// Done worker 停止后关闭
func (w *Worker) Done() <-chan struct{} { return w.done }

// -------------------- 入队 --------------------

func (w *Worker) QueueTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx == nil {
		return nil
	}
	return w.enqueue(ctx, tx)
}

func (w *Worker) QueueSpan(ctx context.Context, span *model.Span) error {
	if span == nil {
		return nil
	}
	return w.enqueue(ctx, span)
}

func (w *Worker) QueueError(ctx context.Context, e *model.Error) error {
	if e == nil {
		return nil
	}
	return w.enqueue(ctx, e)
}

func (w *Worker) QueueMetrics(ctx context.Context, m *model.MetricSet) error {
	if m == nil {
		return nil
	}
	return w.enqueue(ctx, m)
}

func (w *Worker) enqueue(ctx context.Context, e model.Event) error {
	kind := string(e.Kind())
	if s := w.State(); s == StateDraining || s == StateStopped {
		return errorx.NewBiz(errorx.CodeDisposed, errorx.WithService(errorx.ServiceTransport),
			errorx.WithField("kind", kind))
	}
	err := w.queue.Enqueue(ctx, e)
	switch {
	case err == nil:
		w.metrics.EventsQueued.WithLabelValues(w.name, kind).Inc()
	case errors.Is(err, errorx.ErrQueueFull):
		w.metrics.EventsDropped.WithLabelValues(w.name, kind).Inc()
	}
	return err
}

// Filters 各事件类型的过滤链
func (w *Worker) Filters() *filter.Set { return w.filters }

// QueueLen 已入队未发送的事件数
func (w *Worker) QueueLen() int64 { return w.queue.Len() }

// -------------------- 后台循环 --------------------

func (w *Worker) loop() {
	if w.dedicated {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer func() {
		w.client.CloseIdleConnections()
		w.mu.Lock()
		w.setState(StateStopped)
		w.mu.Unlock()
		close(w.done)
	}()

	close(w.started)
	for w.ctx.Err() == nil {
		if !w.iterate() {
			return
		}
	}
}

// iterate 处理一个 batch；返回 false 表示应退出循环
func (w *Worker) iterate() (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(w.ctx, logx.TagWorkerPanic, fmt.Sprintf("recovered from panic: %v", r))
			cont = w.ctx.Err() == nil
		}
	}()

	batch, err := w.queue.ReceiveBatch(w.ctx)
	if err != nil {
		return false
	}
	w.send(batch)
	return true
}

// intakeResponse intake 拒绝部分或全部事件时返回的 body
type intakeResponse struct {
	Accepted int `json:"accepted"`
	Errors   []struct {
		Message  string `json:"message"`
		Document string `json:"document,omitempty"`
	} `json:"errors"`
}

// encode 过滤器在这里执行
func (w *Worker) encode(ctx context.Context, batch []model.Event) (ndjson.Payload, error) {
	w.inCallback.Store(true)
	defer w.inCallback.Store(false)
	return w.ser.Encode(ctx, batch, w.filters)
}

func (w *Worker) send(batch []model.Event) {
	ctx := w.ctx
	payload, err := w.encode(ctx, batch)
	if payload.Filtered > 0 {
		w.metrics.EventsFiltered.WithLabelValues(w.name).Add(float64(payload.Filtered))
	}
	if err != nil {
		w.metrics.BatchesFailed.WithLabelValues(w.name, reasonSerialize).Inc()
		w.logger.Error(ctx, logx.TagBatchFailed, err, logx.BatchSize, len(batch))
		return
	}
	if payload.Events == 0 {
		w.logger.Debug(ctx, logx.TagBatchFormed, "nothing left to send after filtering", logx.BatchSize, len(batch))
		return
	}

	var reply intakeResponse
	_, err = w.client.PostNDJSON(ctx, w.url, payload.Body, &reply)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			w.logger.Debug(ctx, logx.TagBatchFailed, "send canceled by shutdown", logx.BatchSize, payload.Events)
		case errorx.IsCode(err, errorx.CodeHTTPStatus):
			w.metrics.BatchesFailed.WithLabelValues(w.name, reasonStatus).Inc()
			if n := len(reply.Errors); n > 0 {
				w.metrics.EventsRejected.WithLabelValues(w.name).Add(float64(n))
			}
			w.logger.Error(ctx, logx.TagBatchFailed, err, logx.BatchSize, payload.Events,
				"accepted", reply.Accepted, "rejected", len(reply.Errors))
		default:
			w.metrics.BatchesFailed.WithLabelValues(w.name, reasonTransport).Inc()
			w.logger.Warn(ctx, logx.TagBatchFailed, err, logx.BatchSize, payload.Events)
		}
		return
	}

	w.metrics.BatchesSent.WithLabelValues(w.name).Inc()
	w.logger.Debug(ctx, logx.TagBatchSent, "sent events to intake",
		logx.BatchSize, payload.Events, logx.Bytes, len(payload.Body))
}

func (w *Worker) logCall(ctx context.Context, s *httpclient.CallStats) {
	tag := logx.TagHttpSuccess
	if s.Err != "" {
		tag = logx.TagHttpFailure
	}
	w.logger.Debug(ctx, tag, "intake call",
		logx.Method, s.Method, logx.URL, s.URL, logx.Status, s.Status,
		logx.Cost, s.Cost.Milliseconds(), logx.Bytes, s.WireSize, logx.Err, s.Err)
}
