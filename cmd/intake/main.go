// intake 在本地启动一个 intake v2 接收端，打印每个收到的 batch，用于联调 agent。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/imattdu/orbit-apm/intake"
	"github.com/imattdu/orbit-apm/logx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr        string
		secretToken string
		apiKey      string
		rum         bool
		logDir      string
		logLevel    string
	)
	flagSet := pflag.NewFlagSet("intake", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "listen", "127.0.0.1:8200", "address to listen on")
	flagSet.StringVar(&secretToken, "secret-token", "", "require this secret token")
	flagSet.StringVar(&apiKey, "api-key", "", "require this API key")
	flagSet.BoolVar(&rum, "rum", false, "accept RUM events")
	flagSet.StringVar(&logDir, "log-dir", "", "write log files to this directory")
	flagSet.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logx.New(logx.Config{
		AppName:        "intake",
		Level:          logx.ParseLevel(logLevel),
		LogDir:         logDir,
		ConsoleEnabled: true,
		ConsoleColored: true,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: addr,
		Handler: intake.NewRouter(intake.Options{
			Logger:      logger,
			SecretToken: secretToken,
			APIKey:      apiKey,
			RUMEnabled:  rum,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logx.TagAgentStart, "intake listening", "addr", addr, "rum", rum)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info(shutdownCtx, logx.TagAgentStop, "intake shutting down")
	return srv.Shutdown(shutdownCtx)
}
