// Package agent 组装 agent 的各个组件：logger、events / RUM transport worker、
// tracer 和 metrics collector。Agent 是显式句柄，调用方自己持有并传递。
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/imattdu/orbit-apm/config"
	"github.com/imattdu/orbit-apm/httpclient"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/metrics"
	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/ndjson"
	"github.com/imattdu/orbit-apm/queue"
	"github.com/imattdu/orbit-apm/tracex"
	"github.com/imattdu/orbit-apm/transport"
	"github.com/imattdu/orbit-apm/wildcard"
)

const (
	Name    = "go"
	Version = "0.3.0"
)

type options struct {
	logger     logx.Logger
	registerer prometheus.Registerer
	framework  *model.Framework
}

type Option func(*options)

// WithLogger 使用调用方的 logger（Close 时不会关闭它）
func WithLogger(l logx.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer transport 自身指标注册到 reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithFramework 写进 metadata 的框架信息
func WithFramework(name, version string) Option {
	return func(o *options) { o.framework = &model.Framework{Name: name, Version: version} }
}

type Agent struct {
	cfg        config.Config
	logger     logx.Logger
	ownsLogger bool

	events    *transport.Worker
	rum       *transport.Worker
	tracer    *tracex.Tracer
	collector *metrics.Collector

	closeOnce sync.Once
	closeErr  error
}

// New 校验配置、创建并启动各组件。cfg.Enabled 为 false 时返回一个什么都不发送的 Agent。
func New(cfg config.Config, opts ...Option) (*Agent, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg, logger: o.logger}
	if a.logger == nil {
		l, err := logx.New(logx.Config{
			AppName:        "apm-agent",
			Level:          logx.ParseLevel(cfg.LogLevel),
			ConsoleEnabled: true,
		})
		if err != nil {
			return nil, err
		}
		a.logger, a.ownsLogger = l, true
	}
	ctx := context.Background()

	if !cfg.Enabled {
		a.tracer = tracex.NewTracer(nil, tracex.WithLogger(a.logger))
		a.logger.Info(ctx, logx.TagAgentStart, "agent disabled by configuration")
		return a, nil
	}

	ser := ndjson.New(ndjson.Options{
		Metadata:          BuildMetadata(cfg, o.framework),
		Sanitize:          wildcard.CompileAll(cfg.SanitizeFieldNames),
		MaxPropertyLength: cfg.MaxPropertyLength,
		Logger:            a.logger,
	})
	tm := transport.NewMetrics(o.registerer)
	clientOpts := []httpclient.Option{
		httpclient.WithDefaultTimeout(cfg.ServerTimeout),
		httpclient.WithSecretToken(cfg.SecretToken),
		httpclient.WithAPIKey(cfg.APIKey),
		httpclient.WithCompress(cfg.Compress),
		httpclient.WithUserAgent(fmt.Sprintf("apm-agent-%s/%s (%s)", Name, Version, cfg.ServiceName)),
	}
	qc := queue.Config{
		MaxBatchEventCount: cfg.MaxBatchEventCount,
		MaxQueueEventCount: cfg.MaxQueueEventCount,
		FlushInterval:      cfg.FlushInterval,
	}

	var err error
	a.events, err = transport.New(transport.Config{
		Name:       "events",
		URL:        cfg.EventsURL(),
		Dedicated:  true,
		Queue:      qc,
		Client:     clientOpts,
		Serializer: ser,
		Metrics:    tm,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, a.abort(err)
	}
	if cfg.RUMEnabled {
		a.rum, err = transport.New(transport.Config{
			Name:       "rum",
			URL:        cfg.RUMEventsURL(),
			Queue:      qc,
			Client:     clientOpts,
			Serializer: ser,
			Metrics:    tm,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, a.abort(err)
		}
	}

	if err := a.events.Start(); err != nil {
		return nil, a.abort(err)
	}
	if a.rum != nil {
		if err := a.rum.Start(); err != nil {
			return nil, a.abort(err)
		}
	}

	a.tracer = tracex.NewTracer(a.events, tracex.WithLogger(a.logger))
	a.collector = metrics.New(a.events, cfg.MetricsInterval, metrics.WithLogger(a.logger))
	a.collector.Start()

	a.logger.Info(ctx, logx.TagAgentStart, "agent started",
		"service", cfg.ServiceName, "server_url", cfg.ServerURL(),
		"flush_interval", cfg.FlushInterval.String(),
		"max_batch", cfg.MaxBatchEventCount, logx.MaxQueue, cfg.MaxQueueEventCount,
		"rum", cfg.RUMEnabled)
	return a, nil
}

// abort New 中途失败时释放已创建的组件
func (a *Agent) abort(err error) error {
	return multierr.Append(err, a.Close(context.Background()))
}

// Close 停止采集和所有 worker。队列里未发送的事件会被丢弃。
// 重复调用返回第一次的结果。
func (a *Agent) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.collector != nil {
			a.collector.Stop()
		}
		var err error
		if a.events != nil {
			err = multierr.Append(err, a.events.Shutdown(ctx))
		}
		if a.rum != nil {
			err = multierr.Append(err, a.rum.Shutdown(ctx))
		}
		a.logger.Info(ctx, logx.TagAgentStop, "agent stopped", logx.Err, err)
		if a.ownsLogger {
			err = multierr.Append(err, a.logger.Close())
		}
		a.closeErr = err
	})
	return a.closeErr
}

func (a *Agent) Config() config.Config { return a.cfg }

func (a *Agent) Logger() logx.Logger { return a.logger }

func (a *Agent) Tracer() *tracex.Tracer { return a.tracer }

// Events 事件 worker；agent 被禁用时为 nil
func (a *Agent) Events() *transport.Worker { return a.events }

// RUM RUM worker；没开启时为 nil
func (a *Agent) RUM() *transport.Worker { return a.rum }
