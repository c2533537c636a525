package middleware

import (
	"bytes"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/orbit-apm/logx"
)

// 响应体最多记录这么多字节
const maxLoggedResponse = 2048

type responseWriter struct {
	body *bytes.Buffer
	gin.ResponseWriter
}

func (w responseWriter) Write(b []byte) (int, error) {
	if room := maxLoggedResponse - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// AccessMiddleware 访问日志。请求体可能是压缩过的 ndjson，只记录大小和编码。
func AccessMiddleware(logger logx.Logger) gin.HandlerFunc {
	logger = logx.OrNop(logger)
	return func(ctx *gin.Context) {
		req := ctx.Request
		c := req.Context()
		logMap := map[string]interface{}{
			logx.Remote: req.RemoteAddr,
			logx.Method: req.Method,
			logx.Path:   req.URL.Path,
			logx.Query:  req.URL.RawQuery,
			logx.Bytes:  req.ContentLength,
			"encoding":  req.Header.Get("Content-Encoding"),
		}
		logger.Info(c, logx.TagRequestIn, logMap)

		// 捕捉响应
		writer := &responseWriter{body: bytes.NewBufferString(""), ResponseWriter: ctx.Writer}
		ctx.Writer = writer
		start := time.Now()
		ctx.Next()

		out := map[string]interface{}{
			logx.Method:   req.Method,
			logx.Path:     req.URL.Path,
			logx.Status:   ctx.Writer.Status(),
			logx.Response: writer.body.String(),
			logx.Cost:     time.Since(start).Milliseconds(),
		}
		if len(ctx.Errors) > 0 {
			out[logx.Err] = ctx.Errors.String()
		}
		logger.Info(c, logx.TagRequestOut, out)
	}
}
