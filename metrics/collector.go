// Package metrics 周期性采集系统 / 进程 / Go runtime 指标，生成 MetricSet 入队。
package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
)

// 测试里替换
var (
	cpuTimes      = cpu.TimesWithContext
	virtualMemory = mem.VirtualMemoryWithContext
)

// Reporter transport.Worker 实现了它
type Reporter interface {
	QueueMetrics(ctx context.Context, m *model.MetricSet) error
}

type Collector struct {
	reporter Reporter
	interval time.Duration
	labels   model.Labels
	logger   logx.Logger

	mu        sync.Mutex
	lastCPU   *cpu.TimesStat
	lastProc  *cpu.TimesStat
	lastAt    time.Time
	proc      *process.Process
	numCPU    float64
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Collector)

func WithLabels(l map[string]string) Option {
	return func(c *Collector) { c.labels = model.Labels(l).Clone() }
}

func WithLogger(l logx.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// New interval <= 0 时 Start 不会启动采集
func New(r Reporter, interval time.Duration, opts ...Option) *Collector {
	c := &Collector{
		reporter: r,
		interval: interval,
		numCPU:   float64(runtime.NumCPU()),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logx.OrNop(c.logger)
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

// Start 启动后台采集
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		if c.interval <= 0 || c.reporter == nil {
			close(c.done)
			c.logger.Info(context.Background(), logx.TagMetrics, "metrics collection disabled")
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.loop(ctx)
	})
}

// Stop 停止采集并等待后台 goroutine 退出
func (c *Collector) Stop() {
	c.startOnce.Do(func() { close(c.done) })
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
	<-c.done
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)

	// 先采一次作为 CPU 基线
	_, _ = c.Collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ms, err := c.Collect(ctx)
			if err != nil {
				c.logger.Warn(ctx, logx.TagMetrics, err)
			}
			if ms == nil || len(ms.Samples) == 0 {
				continue
			}
			if err := c.reporter.QueueMetrics(ctx, ms); err != nil {
				c.logger.Debug(ctx, logx.TagMetrics, err)
			}
		}
	}
}

// Collect 采集一次。部分采集失败时仍返回已采到的样本和第一个错误。
func (c *Collector) Collect(ctx context.Context) (*model.MetricSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	ms := &model.MetricSet{Timestamp: model.Timestamp(now), Labels: c.labels.Clone()}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = errorx.Wrap(err, errorx.CodeDefault, errorx.WithService(errorx.ServiceMetrics))
		}
	}

	keep(c.collectSystemCPU(ctx, ms))
	keep(c.collectMemory(ctx, ms))
	keep(c.collectProcess(ctx, ms, now))
	c.collectRuntime(ms)

	c.lastAt = now
	return ms, firstErr
}

func (c *Collector) collectSystemCPU(ctx context.Context, ms *model.MetricSet) error {
	times, err := cpuTimes(ctx, false)
	if err != nil {
		return err
	}
	if len(times) == 0 {
		return nil
	}
	t := times[0]
	if c.lastCPU != nil {
		total := t.Total() - c.lastCPU.Total()
		idle := (t.Idle + t.Iowait) - (c.lastCPU.Idle + c.lastCPU.Iowait)
		if total > 0 {
			ms.Add("system.cpu.total.norm.pct", clamp01((total-idle)/total))
		}
	}
	c.lastCPU = &t
	return nil
}

func (c *Collector) collectMemory(ctx context.Context, ms *model.MetricSet) error {
	vm, err := virtualMemory(ctx)
	if err != nil {
		return err
	}
	ms.Add("system.memory.total", float64(vm.Total))
	ms.Add("system.memory.actual.free", float64(vm.Available))
	return nil
}

func (c *Collector) collectProcess(ctx context.Context, ms *model.MetricSet, now time.Time) error {
	if c.proc == nil {
		return nil
	}
	mi, err := c.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return err
	}
	ms.Add("system.process.memory.size", float64(mi.VMS))
	ms.Add("system.process.memory.rss.bytes", float64(mi.RSS))

	t, err := c.proc.TimesWithContext(ctx)
	if err != nil {
		return err
	}
	if c.lastProc != nil && !c.lastAt.IsZero() {
		wall := now.Sub(c.lastAt).Seconds()
		used := (t.User + t.System) - (c.lastProc.User + c.lastProc.System)
		if wall > 0 && c.numCPU > 0 {
			ms.Add("system.process.cpu.total.norm.pct", clamp01(used/wall/c.numCPU))
		}
	}
	c.lastProc = t
	return nil
}

func (c *Collector) collectRuntime(ms *model.MetricSet) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	ms.Add("golang.goroutines", float64(runtime.NumGoroutine()))
	ms.Add("golang.heap.allocations.allocated", float64(m.TotalAlloc))
	ms.Add("golang.heap.allocations.active", float64(m.HeapAlloc))
	ms.Add("golang.heap.allocations.objects", float64(m.HeapObjects))
	ms.Add("golang.heap.system.total", float64(m.Sys))
	ms.Add("golang.heap.gc.next_gc_limit", float64(m.NextGC))
	ms.Add("golang.heap.gc.total_count", float64(m.NumGC))
	ms.Add("golang.heap.gc.total_pause.ns", float64(m.PauseTotalNs))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
