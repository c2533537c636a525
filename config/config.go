// Package config 汇总 agent 的配置：默认值 < YAML 文件 < 环境变量 < Option。
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/imattdu/orbit-apm/errorx"
)

const (
	DefaultServerURL          = "http://localhost:8200"
	DefaultFlushInterval      = 10 * time.Second
	DefaultMaxBatchEventCount = 10
	DefaultMaxQueueEventCount = 1000
	DefaultMetricsInterval    = 30 * time.Second
	DefaultMaxPropertyLength  = 1024
	DefaultServerTimeout      = 5 * time.Second
	DefaultServiceName        = "unknown-go-service"

	eventsIntakePath    = "/intake/v2/events"
	rumEventsIntakePath = "/intake/v2/rum/events"
)

// DefaultSanitizeFieldNames 默认脱敏的字段名模式
var DefaultSanitizeFieldNames = []string{
	"password", "passwd", "pwd", "secret", "*key", "*token*",
	"*session*", "*credit*", "*card*", "authorization", "set-cookie",
}

// Config 初始化后不再修改，可在多个组件间共享
type Config struct {
	Enabled bool `yaml:"enabled"`

	ServiceName     string `yaml:"service_name"`
	ServiceVersion  string `yaml:"service_version"`
	ServiceNodeName string `yaml:"service_node_name"`
	Environment     string `yaml:"environment"`
	Hostname        string `yaml:"hostname"`

	// 只使用第一个
	ServerURLs    []string      `yaml:"server_urls"`
	SecretToken   string        `yaml:"secret_token"`
	APIKey        string        `yaml:"api_key"`
	ServerTimeout time.Duration `yaml:"server_timeout"`
	Compress      bool          `yaml:"compress"`
	RUMEnabled    bool          `yaml:"rum_enabled"`

	// 0 表示每次入队立即触发 batch
	FlushInterval      time.Duration `yaml:"flush_interval"`
	MaxBatchEventCount int           `yaml:"max_batch_event_count"`
	MaxQueueEventCount int           `yaml:"max_queue_event_count"`

	// 0 表示不采集
	MetricsInterval time.Duration `yaml:"metrics_interval"`

	GlobalLabels       map[string]string `yaml:"global_labels"`
	SanitizeFieldNames []string          `yaml:"sanitize_field_names"`
	MaxPropertyLength  int               `yaml:"max_property_length"`

	LogLevel string `yaml:"log_level"`
}

// Default 返回全部默认值
func Default() Config {
	return Config{
		Enabled:            true,
		ServiceName:        DefaultServiceName,
		ServerURLs:         []string{DefaultServerURL},
		ServerTimeout:      DefaultServerTimeout,
		FlushInterval:      DefaultFlushInterval,
		MaxBatchEventCount: DefaultMaxBatchEventCount,
		MaxQueueEventCount: DefaultMaxQueueEventCount,
		MetricsInterval:    DefaultMetricsInterval,
		SanitizeFieldNames: append([]string(nil), DefaultSanitizeFieldNames...),
		MaxPropertyLength:  DefaultMaxPropertyLength,
		LogLevel:           "info",
	}
}

// -------------------- Option --------------------

type Option func(*Config)

func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

func WithServiceVersion(v string) Option {
	return func(c *Config) { c.ServiceVersion = v }
}

func WithEnvironment(env string) Option {
	return func(c *Config) { c.Environment = env }
}

func WithServerURL(u string) Option {
	return func(c *Config) { c.ServerURLs = []string{u} }
}

func WithSecretToken(token string) Option {
	return func(c *Config) { c.SecretToken = token }
}

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.FlushInterval = d }
}

func WithMaxBatchEventCount(n int) Option {
	return func(c *Config) { c.MaxBatchEventCount = n }
}

func WithMaxQueueEventCount(n int) Option {
	return func(c *Config) { c.MaxQueueEventCount = n }
}

func WithMetricsInterval(d time.Duration) Option {
	return func(c *Config) { c.MetricsInterval = d }
}

func WithGlobalLabels(labels map[string]string) Option {
	return func(c *Config) {
		c.GlobalLabels = make(map[string]string, len(labels))
		for k, v := range labels {
			c.GlobalLabels[k] = v
		}
	}
}

func WithSanitizeFieldNames(patterns ...string) Option {
	return func(c *Config) { c.SanitizeFieldNames = append([]string(nil), patterns...) }
}

func WithMaxPropertyLength(n int) Option {
	return func(c *Config) { c.MaxPropertyLength = n }
}

func WithCompress(on bool) Option {
	return func(c *Config) { c.Compress = on }
}

func WithRUM(on bool) Option {
	return func(c *Config) { c.RUMEnabled = on }
}

func WithServerTimeout(d time.Duration) Option {
	return func(c *Config) { c.ServerTimeout = d }
}

// Apply 依次应用 Option
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// -------------------- 校验 / 归一 --------------------

// Normalize 把非法值替换成默认值，并校验 server url。
// MaxQueueEventCount < MaxBatchEventCount 的情况由队列自己夹紧并打日志。
func (c *Config) Normalize() error {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.MaxBatchEventCount <= 0 {
		c.MaxBatchEventCount = DefaultMaxBatchEventCount
	}
	if c.MaxQueueEventCount <= 0 {
		c.MaxQueueEventCount = DefaultMaxQueueEventCount
	}
	if c.FlushInterval < 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MetricsInterval < 0 {
		c.MetricsInterval = 0
	}
	if c.MaxPropertyLength <= 0 {
		c.MaxPropertyLength = DefaultMaxPropertyLength
	}
	if c.ServerTimeout <= 0 {
		c.ServerTimeout = DefaultServerTimeout
	}

	urls := make([]string, 0, len(c.ServerURLs))
	for _, u := range c.ServerURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		urls = []string{DefaultServerURL}
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return errorx.Wrap(err, errorx.CodeConfig, errorx.WithService(errorx.ServiceConfig),
				errorx.WithField("server_url", raw))
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errorx.New(errorx.CodeConfig, errorx.WithService(errorx.ServiceConfig),
				errorx.WithMessage("server url must be an absolute http(s) url"),
				errorx.WithField("server_url", raw))
		}
	}
	c.ServerURLs = urls
	return nil
}

// -------------------- intake 地址 --------------------

// ServerURL 第一个 server url
func (c *Config) ServerURL() string {
	if len(c.ServerURLs) == 0 {
		return DefaultServerURL
	}
	return c.ServerURLs[0]
}

// EventsURL <base>/intake/v2/events
func (c *Config) EventsURL() string {
	return joinURL(c.ServerURL(), eventsIntakePath)
}

// RUMEventsURL <base>/intake/v2/rum/events
func (c *Config) RUMEventsURL() string {
	return joinURL(c.ServerURL(), rumEventsIntakePath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
