// Package queue 是 agent 的事件缓冲区：任意 goroutine 并发入队，
// 单个 transport worker 按 batch 取出。
//
// 占用数用原子计数维护，超过上限直接拒绝（不阻塞、不扩容）。
// batch 在以下任一条件下形成：
//   - 待发事件数达到 MaxBatchEventCount
//   - FlushInterval > 0 时，batch 中第一个事件入队后经过 FlushInterval
//   - FlushInterval == 0 时，receiver 被入队信号唤醒后立即取走当前事件
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

type Config struct {
	MaxBatchEventCount int
	MaxQueueEventCount int
	// 0 表示 eager 模式
	FlushInterval time.Duration
}

type Queue struct {
	maxBatch      int
	maxQueue      int64
	flushInterval time.Duration
	logger        logx.Logger

	count   atomic.Int64 // 已接受、尚未被 receiver 取走的事件数
	dropped atomic.Int64
	signals atomic.Int64 // batch 触发次数
	closed  atomic.Bool

	mu           sync.Mutex
	pending      []model.Event
	pendingSince time.Time
	ready        [][]model.Event

	// 容量 1：多次通知合并为一次唤醒
	notify chan struct{}
}

// New 创建队列。MaxQueueEventCount 小于 MaxBatchEventCount 时按 MaxBatchEventCount 处理。
func New(cfg Config, logger logx.Logger) *Queue {
	logger = logx.OrNop(logger)
	if cfg.MaxBatchEventCount <= 0 {
		cfg.MaxBatchEventCount = 1
	}
	if cfg.MaxQueueEventCount < cfg.MaxBatchEventCount {
		logger.Error(context.Background(), logx.TagConfig,
			"MaxQueueEventCount is less than MaxBatchEventCount - using MaxBatchEventCount as MaxQueueEventCount",
			logx.MaxQueue, cfg.MaxQueueEventCount, "max_batch", cfg.MaxBatchEventCount)
		cfg.MaxQueueEventCount = cfg.MaxBatchEventCount
	}
	if cfg.FlushInterval < 0 {
		cfg.FlushInterval = 0
	}
	return &Queue{
		maxBatch:      cfg.MaxBatchEventCount,
		maxQueue:      int64(cfg.MaxQueueEventCount),
		flushInterval: cfg.FlushInterval,
		logger:        logger,
		pending:       make([]model.Event, 0, cfg.MaxBatchEventCount),
		notify:        make(chan struct{}, 1),
	}
}

// -------------------- 生产者 --------------------

// Enqueue 非阻塞入队。队列满返回 CodeQueueFull，Close 之后返回 CodeDisposed。
func (q *Queue) Enqueue(ctx context.Context, e model.Event) error {
	if q.closed.Load() {
		return errorx.NewBiz(errorx.CodeDisposed, errorx.WithService(errorx.ServiceQueue))
	}
	if e == nil {
		return nil
	}

	n := q.count.Inc()
	if n > q.maxQueue {
		q.count.Dec()
		q.dropped.Inc()
		q.logger.Debug(ctx, logx.TagQueueFull, "queue reached max capacity - event will be discarded",
			logx.Kind, string(e.Kind()), logx.QueueCount, n, logx.MaxQueue, q.maxQueue)
		return errorx.Wrap(errorx.ErrQueueFull, errorx.CodeQueueFull, errorx.WithField("kind", string(e.Kind())))
	}

	wake := false
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.pendingSince = time.Now()
		// interval 模式下 receiver 需要按新的 pendingSince 重新计算超时
		wake = true
	}
	q.pending = append(q.pending, e)
	if len(q.pending) >= q.maxBatch {
		q.sealLocked()
		wake = true
	}
	q.mu.Unlock()

	if q.flushInterval == 0 {
		q.signals.Inc()
		wake = true
	}
	// 成功入队不打日志
	if wake {
		q.wake()
	}
	return nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// sealLocked 把 pending 封成一个 batch，调用方持有 q.mu
func (q *Queue) sealLocked() {
	if len(q.pending) == 0 {
		return
	}
	q.ready = append(q.ready, q.pending)
	q.pending = make([]model.Event, 0, q.maxBatch)
	q.pendingSince = time.Time{}
}

// TriggerBatch 把当前未满的 pending 封成 batch（为空时什么都不做）
func (q *Queue) TriggerBatch() {
	q.signals.Inc()
	q.mu.Lock()
	sealed := len(q.pending) > 0
	q.sealLocked()
	q.mu.Unlock()
	if sealed {
		q.wake()
	}
}

// -------------------- 消费者 --------------------

// ReceiveBatch 阻塞直到有 batch 可取或 ctx 结束。
// 只应由一个 goroutine 调用。
func (q *Queue) ReceiveBatch(ctx context.Context) ([]model.Event, error) {
	for {
		if b := q.take(); b != nil {
			return b, nil
		}
		if err := q.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// take 取出一个已形成的 batch；eager 模式下没有现成 batch 时直接封 pending
func (q *Queue) take() []model.Event {
	q.mu.Lock()
	if len(q.ready) == 0 && q.flushInterval == 0 {
		q.sealLocked()
	}
	var b []model.Event
	if len(q.ready) > 0 {
		b = q.ready[0]
		q.ready[0] = nil
		q.ready = q.ready[1:]
	}
	q.mu.Unlock()

	if b == nil {
		return nil
	}
	left := q.count.Sub(int64(len(b)))
	q.logger.Debug(context.Background(), logx.TagBatchFormed, "there's data to be sent",
		logx.BatchSize, len(b), logx.QueueCount, left)
	return b
}

func (q *Queue) wait(ctx context.Context) error {
	if q.flushInterval == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
			return nil
		}
	}

	timer := time.NewTimer(q.untilFlush())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.notify:
		return nil
	case <-timer.C:
		q.TriggerBatch()
		return nil
	}
}

// untilFlush 距离当前 pending 必须发出的剩余时间；pending 为空时为一个完整周期
func (q *Queue) untilFlush() time.Duration {
	q.mu.Lock()
	since := q.pendingSince
	q.mu.Unlock()
	if since.IsZero() {
		return q.flushInterval
	}
	d := q.flushInterval - time.Since(since)
	if d < 0 {
		return 0
	}
	return d
}

// -------------------- 状态 --------------------

// Close 之后的 Enqueue 返回 CodeDisposed；已入队的事件不再发送
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Len 已接受但还没被取走的事件数
func (q *Queue) Len() int64 { return q.count.Load() }

// Dropped 因容量被拒绝的事件数
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Signals batch 触发次数：eager 模式每次入队一次，interval 模式每个周期一次
func (q *Queue) Signals() int64 { return q.signals.Load() }

// Capacity 夹紧后的容量上限
func (q *Queue) Capacity() int64 { return q.maxQueue }

// MaxBatch 单个 batch 的最大事件数
func (q *Queue) MaxBatch() int { return q.maxBatch }
