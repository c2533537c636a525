package httpclient

import (
	"net/http"
	"net/url"
)

// Request 表示一次请求的配置
type Request struct {
	Method  string
	Path    string      // 基于 BaseURL 的相对路径，或完整 URL
	Headers http.Header // 请求头
	Body    []byte      // 已编码的请求体，Compress 打开时发送前压缩
}

type RequestOption func(*Request)

func WithHeader(k, v string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = make(http.Header)
		}
		r.Headers.Add(k, v)
	}
}

// buildURL 组合 baseURL + path
func (c *Client) buildURL(path string) (string, error) {
	pu, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	// path 是完整 URL，或者没有 BaseURL
	if (pu.Scheme != "" && pu.Host != "") || c.baseURL == nil {
		return pu.String(), nil
	}

	u := *c.baseURL
	u.Path = joinPath(c.baseURL.Path, pu.Path)
	u.RawQuery = pu.RawQuery
	return u.String(), nil
}

// joinPath 简单处理一下 / 的拼接
func joinPath(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case b == "":
		return a
	default:
		if a[len(a)-1] == '/' && b[0] == '/' {
			return a + b[1:]
		}
		if a[len(a)-1] != '/' && b[0] != '/' {
			return a + "/" + b
		}
		return a + b
	}
}
