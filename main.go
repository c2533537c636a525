// 演示程序：启动一个被 agent 监控的 gin 服务，并向它发一批请求，
// 产生的 transaction / span / error 发送到配置的 intake。
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/imattdu/orbit-apm/agent"
	"github.com/imattdu/orbit-apm/config"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/middleware"
	"github.com/imattdu/orbit-apm/tracex"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		serverURL  string
		requests   int
		pause      time.Duration
	)
	flagSet := pflag.NewFlagSet("orbit-apm-demo", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "YAML config file")
	flagSet.StringVar(&serverURL, "server-url", "", "override the intake server URL")
	flagSet.IntVarP(&requests, "requests", "n", 20, "number of requests to generate")
	flagSet.DurationVar(&pause, "pause", 50*time.Millisecond, "pause between requests")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var opts []config.Option
	if serverURL != "" {
		opts = append(opts, config.WithServerURL(serverURL))
	}
	cfg, err := config.Load(configFile, opts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	a, err := agent.New(cfg, agent.WithRegisterer(reg), agent.WithFramework("gin", gin.Version))
	if err != nil {
		return err
	}
	agent.SetDefault(a)
	defer a.Close(context.Background())

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Transaction(a.Tracer()))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/orders/:id", getOrder)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	ctx := context.Background()
	base := "http://" + ln.Addr().String()
	for i := 0; i < requests; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/orders/%d", base, i))
		if err != nil {
			a.Logger().Warn(ctx, logx.TagRequestOut, err)
			continue
		}
		_ = resp.Body.Close()
		time.Sleep(pause)
	}

	// flush interval 结束前退出的事件会被丢弃，等一个周期
	if cfg.FlushInterval > 0 {
		time.Sleep(cfg.FlushInterval)
	}
	resp, err := http.Get(base + "/metrics")
	if err == nil {
		_ = resp.Body.Close()
	}
	return nil
}

// getOrder 模拟一次数据库查询和一次下游调用，偶尔失败
func getOrder(c *gin.Context) {
	ctx := c.Request.Context()
	tx := tracex.TransactionFromContext(ctx)
	if tx == nil {
		c.Status(http.StatusOK)
		return
	}

	dbCtx, db := tx.StartSpan(ctx, "SELECT FROM orders", "db", "postgresql", "query", nil)
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	db.End()

	_, call := tx.StartSpan(dbCtx, "GET inventory", "external", "http", "", nil)
	status := http.StatusOK
	if rand.Intn(10) == 0 {
		status = http.StatusServiceUnavailable
	}
	call.SetHTTP(http.MethodGet, "http://inventory.internal/items", status)
	call.End()

	if status != http.StatusOK {
		_ = agent.Default().Tracer().CaptureError(ctx, errors.New("inventory unavailable"), "getOrder", true)
		c.JSON(http.StatusBadGateway, gin.H{"error": "inventory unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": "shipped"})
}
