// Package httpclient 是 transport worker 向 intake 发送 batch 用的 HTTP 客户端。
//
// 每次请求只发一次：失败交给调用方记日志并丢弃，不重试。
package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Hook 在请求前后执行

type BeforeFunc func(ctx context.Context, req *http.Request)
type AfterFunc func(ctx context.Context, req *http.Request, resp *http.Response, err error)

// Config 是 Client 的初始化配置
type Config struct {
	BaseURL string

	// 每次请求的超时，包含读完响应体
	DefaultTimeout time.Duration

	// 连接相关
	DialTimeout           time.Duration
	DialKeepAlive         time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	ReadWriteTimeout      time.Duration // 每次 Read/Write 的 deadline

	// 鉴权：SecretToken 优先于 APIKey
	SecretToken string
	APIKey      string
	UserAgent   string

	// 请求体 gzip 压缩
	Compress bool

	// Hook
	Before []BeforeFunc
	After  []AfterFunc

	// 调用统计上报（例如打日志、计数）
	StatsHook StatsHook
}

func defaultConfig() Config {
	return Config{
		DefaultTimeout:        5 * time.Second,
		DialTimeout:           3 * time.Second,
		DialKeepAlive:         60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		ReadWriteTimeout:      5 * time.Second,
	}
}

type Option func(*Config)

func WithBaseURL(s string) Option {
	return func(c *Config) { c.BaseURL = s }
}

func WithDefaultTimeout(t time.Duration) Option {
	return func(c *Config) { c.DefaultTimeout = t }
}

func WithReadWriteTimeout(t time.Duration) Option {
	return func(c *Config) { c.ReadWriteTimeout = t }
}

func WithSecretToken(token string) Option {
	return func(c *Config) { c.SecretToken = token }
}

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

func WithCompress(on bool) Option {
	return func(c *Config) { c.Compress = on }
}

func WithBeforeHooks(h ...BeforeFunc) Option {
	return func(c *Config) { c.Before = append(c.Before, h...) }
}

func WithAfterHooks(h ...AfterFunc) Option {
	return func(c *Config) { c.After = append(c.After, h...) }
}

func WithStatsHook(h StatsHook) Option {
	return func(c *Config) { c.StatsHook = h }
}

// Client 是并发安全的 HTTP 客户端
type Client struct {
	hc      *http.Client
	tr      *http.Transport
	baseURL *url.URL

	before []BeforeFunc
	after  []AfterFunc

	defaultTimeout time.Duration
	authorization  string
	userAgent      string
	compress       bool
	statsHook      StatsHook
}

// New 创建 Client，Config 初始化后不再修改 → 并发安全
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		base = u
	}

	tr := buildTransport(&cfg)

	var auth string
	switch {
	case cfg.SecretToken != "":
		auth = "Bearer " + cfg.SecretToken
	case cfg.APIKey != "":
		auth = "ApiKey " + cfg.APIKey
	}

	return &Client{
		hc:      &http.Client{Transport: tr},
		tr:      tr,
		baseURL: base,

		before: append([]BeforeFunc(nil), cfg.Before...),
		after:  append([]AfterFunc(nil), cfg.After...),

		defaultTimeout: cfg.DefaultTimeout,
		authorization:  auth,
		userAgent:      cfg.UserAgent,
		compress:       cfg.Compress,
		statsHook:      cfg.StatsHook,
	}, nil
}

// CloseIdleConnections 释放空闲连接，worker 退出时调用
func (c *Client) CloseIdleConnections() {
	if c == nil || c.tr == nil {
		return
	}
	c.tr.CloseIdleConnections()
}
