package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/imattdu/orbit-apm/errorx"
)

// 响应体最多读取这么多字节，intake 的响应只有几行 JSON
const maxResponseBody = 64 << 10

// Do 发起一次请求（不重试），非 2xx 返回 CodeHTTPStatus 错误。
// out 非 nil 时把响应体按 JSON 解到 out 里；非 2xx 也会尽量解析，
// intake 拒绝请求时的 {"accepted":..,"errors":[..]} 就在这种响应里。
// 返回的 resp.Body 已经关闭。
func (c *Client) Do(ctx context.Context, reqCfg *Request, out any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// ---------- timeout ----------
	if c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}

	// ---------- URL ----------
	u, err := c.buildURL(reqCfg.Path)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeTransport, errorx.WithService(errorx.ServiceTransport))
	}

	// ---------- Body ----------
	headers := cloneHeader(reqCfg.Headers)
	if headers == nil {
		headers = make(http.Header)
	}

	stats := &CallStats{
		Method:   reqCfg.Method,
		URL:      u,
		BodySize: len(reqCfg.Body),
	}

	var bodyReader io.Reader
	if reqCfg.Body != nil {
		wire := reqCfg.Body
		if c.compress {
			wire, err = gzipBytes(reqCfg.Body)
			if err != nil {
				return nil, errorx.Wrap(err, errorx.CodeSerialize, errorx.WithService(errorx.ServiceTransport))
			}
			headers.Set("Content-Encoding", "gzip")
			stats.Compressed = true
		}
		stats.WireSize = len(wire)
		bodyReader = bytes.NewReader(wire)
	}

	httpReq, err := http.NewRequestWithContext(ctx, reqCfg.Method, u, bodyReader)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeTransport, errorx.WithService(errorx.ServiceTransport))
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.authorization != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", c.authorization)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	stats.Path = httpReq.URL.Path

	// before hook
	for _, h := range c.before {
		h(ctx, httpReq)
	}

	begin := time.Now()
	resp, err := c.hc.Do(httpReq)

	// after hook
	for _, h := range c.after {
		h(ctx, httpReq, resp, err)
	}

	if err != nil {
		stats.Cost = time.Since(begin)
		stats.Err = errString(err)
		c.report(ctx, stats)
		return nil, errorx.Wrap(err, errorx.CodeTransport, errorx.WithService(errorx.ServiceTransport),
			errorx.WithField("url", u))
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	stats.Cost = time.Since(begin)
	stats.Status = resp.StatusCode
	stats.Response = string(data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out != nil && len(data) > 0 {
			// 错误响应的 body 不一定是 JSON，解析失败忽略
			_ = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, out)
		}
		herr := errorx.New(errorx.CodeHTTPStatus,
			errorx.WithService(errorx.ServiceTransport),
			errorx.WithField("status", resp.StatusCode),
			errorx.WithField("url", u),
			errorx.WithField("response", stats.Response),
		)
		stats.Err = herr.Error()
		c.report(ctx, stats)
		return resp, herr
	}
	if readErr != nil {
		stats.Err = errString(readErr)
		c.report(ctx, stats)
		return resp, errorx.Wrap(readErr, errorx.CodeTransport, errorx.WithService(errorx.ServiceTransport))
	}
	c.report(ctx, stats)

	if out == nil || len(data) == 0 {
		return resp, nil
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, out); err != nil {
		return resp, errorx.Wrap(err, errorx.CodeSerialize, errorx.WithService(errorx.ServiceTransport))
	}
	return resp, nil
}

func (c *Client) report(ctx context.Context, stats *CallStats) {
	if c.statsHook != nil {
		c.statsHook(ctx, stats)
	}
}

// -------- 便捷方法 --------

// PostNDJSON 发送一个已经编码好的 ndjson payload
// out 同 Do。
func (c *Client) PostNDJSON(ctx context.Context, path string, body []byte, out any, opts ...RequestOption) (*http.Response, error) {
	req := &Request{Method: http.MethodPost, Path: path, Body: body}
	opts = append([]RequestOption{WithHeader("Content-Type", "application/x-ndjson")}, opts...)
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req, out)
}
