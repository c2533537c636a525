// Package intake 是一个本地的 intake v2 接收端，用于联调和测试：
// 解压请求体、校验第一行是 metadata、按类型计数，返回 202，并把 batch 存进 Store。
package intake

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/middleware"
	"github.com/imattdu/orbit-apm/model"
)

const (
	EventsPath    = "/intake/v2/events"
	RUMEventsPath = "/intake/v2/rum/events"
)

type Options struct {
	Store  *Store
	Logger logx.Logger

	// 都为空时不鉴权
	SecretToken string
	APIKey      string

	RUMEnabled bool
	Version    string
}

type handler struct {
	store   *Store
	logger  logx.Logger
	auth    []string
	version string
}

// NewRouter 创建 gin 路由。opts.Store 为 nil 时创建一个新的。
func NewRouter(opts Options) *gin.Engine {
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.Version == "" {
		opts.Version = "8.0.0"
	}
	h := &handler{store: opts.Store, logger: logx.OrNop(opts.Logger), version: opts.Version}
	if opts.SecretToken != "" {
		h.auth = append(h.auth, "Bearer "+opts.SecretToken)
	}
	if opts.APIKey != "" {
		h.auth = append(h.auth, "ApiKey "+opts.APIKey)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessMiddleware(h.logger))
	r.GET("/", h.info)
	r.POST(EventsPath, h.events)
	if opts.RUMEnabled {
		r.POST(RUMEventsPath, h.events)
	} else {
		r.POST(RUMEventsPath, func(c *gin.Context) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden request: RUM endpoint is disabled"})
		})
	}
	return r
}

func (h *handler) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.version, "publish_ready": true})
}

func (h *handler) authorized(header string) bool {
	if len(h.auth) == 0 {
		return true
	}
	for _, a := range h.auth {
		if header == a {
			return true
		}
	}
	return false
}

func (h *handler) events(c *gin.Context) {
	ctx := c.Request.Context()
	if !h.authorized(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed: missing or invalid credentials"})
		return
	}
	if ct := c.ContentType(); !strings.HasPrefix(ct, "application/x-ndjson") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content type: '" + ct + "'"})
		return
	}

	enc := strings.ToLower(c.GetHeader("Content-Encoding"))
	body, err := bodyReader(c.Request.Body, enc)
	if err != nil {
		h.reject(c, err)
		return
	}
	defer body.Close()

	b := Batch{
		Path:       c.Request.URL.Path,
		Header:     c.Request.Header.Clone(),
		Compressed: enc == "gzip" || enc == "deflate",
		ReceivedAt: time.Now(),
	}
	lineErrs, err := decode(body, &b)
	if err != nil {
		h.reject(c, err)
		return
	}
	h.store.Add(b)

	counts := make(map[model.Kind]int, 4)
	for _, e := range b.Events {
		counts[e.Kind]++
	}
	h.logger.Info(ctx, logx.TagIntake, "received batch",
		logx.Path, b.Path, logx.BatchSize, len(b.Events), "counts", counts, "invalid", len(lineErrs))

	if len(lineErrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": len(b.Events), "errors": lineErrs})
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handler) reject(c *gin.Context, err error) {
	msg := err.Error()
	if e, ok := errorx.From(err); ok && e.Message != "" {
		msg = e.Message
	}
	h.logger.Warn(c.Request.Context(), logx.TagIntake, err, logx.Path, c.Request.URL.Path)
	c.JSON(http.StatusBadRequest, gin.H{"accepted": 0, "errors": []LineError{{Message: msg}}})
}
