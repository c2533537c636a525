package httpclient

import (
	"context"
	"net/http"
	"time"
)

// CallStats 一次完整调用信息
type CallStats struct {
	// 请求级
	Method string `json:"method"`
	URL    string `json:"url"`
	Path   string `json:"path"`

	// body 大小：压缩前 / 实际发送
	BodySize   int  `json:"body_size"`
	WireSize   int  `json:"wire_size"`
	Compressed bool `json:"compressed"`

	// 结果
	Status   int           `json:"status"`
	Err      string        `json:"err,omitempty"`
	Cost     time.Duration `json:"cost"`
	Response string        `json:"response,omitempty"`
}

// StatsHook 统计上报 Hook（例如打日志）
type StatsHook func(ctx context.Context, stats *CallStats)

// ---------- 小工具 ----------

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	dst := make(http.Header, len(h))
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		dst[k] = cp
	}
	return dst
}
