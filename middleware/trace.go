package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/tracex"
)

// Transaction 每个请求一个 transaction，放进 request ctx 供 handler 开 span。
// 请求头、cookie 原样记录，敏感字段在序列化时脱敏。
func Transaction(tracer *tracex.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tracer == nil {
			c.Next()
			return
		}
		req := c.Request
		ctx, tx := tracer.StartTransaction(req.Context(), req.Method+" "+routeName(c), "request")
		tx.SetRequest(requestContext(req))
		c.Request = req.WithContext(ctx)

		defer func() {
			r := recover()
			status := c.Writer.Status()
			if r != nil {
				status = http.StatusInternalServerError
				_ = tracer.CaptureError(ctx, fmt.Errorf("panic: %v", r), routeName(c), false)
			}
			for _, e := range c.Errors {
				_ = tracer.CaptureError(ctx, e.Err, routeName(c), true)
			}
			tx.SetName(req.Method + " " + routeName(c))
			tx.SetResult(fmt.Sprintf("HTTP %dxx", status/100))
			if status >= 500 {
				tx.SetOutcome("failure")
			} else {
				tx.SetOutcome("success")
			}
			tx.SetResponse(&model.Response{
				StatusCode:  status,
				Headers:     flatten(c.Writer.Header()),
				HeadersSent: c.Writer.Written(),
				Finished:    r == nil,
			})
			tx.EndContext(ctx)
			if r != nil {
				panic(r)
			}
		}()
		c.Next()
	}
}

// routeName 优先用路由模板，避免 /users/1 /users/2 变成不同的 transaction
func routeName(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unknown route"
}

func requestContext(req *http.Request) *model.Request {
	proto := "http"
	if req.TLS != nil {
		proto = "https"
	}
	host := req.Host
	if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	cookies := make(map[string]string)
	for _, ck := range req.Cookies() {
		cookies[ck.Name] = ck.Value
	}
	if len(cookies) == 0 {
		cookies = nil
	}
	headers := flatten(req.Header)
	delete(headers, "Cookie")

	search := ""
	if req.URL.RawQuery != "" {
		search = "?" + req.URL.RawQuery
	}
	return &model.Request{
		Method: req.Method,
		URL: model.URL{
			Full:     proto + "://" + req.Host + req.URL.RequestURI(),
			Hostname: host,
			Pathname: req.URL.Path,
			Protocol: proto + ":",
			Raw:      req.URL.RequestURI(),
			Search:   search,
		},
		Headers:     headers,
		Cookies:     cookies,
		HTTPVersion: fmt.Sprintf("%d.%d", req.ProtoMajor, req.ProtoMinor),
		Socket:      &model.Socket{Encrypted: req.TLS != nil, RemoteAddress: req.RemoteAddr},
	}
}

func flatten(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
