package agent

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/orbit-apm/config"
	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/intake"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(serverURL string, opts ...config.Option) config.Config {
	cfg := config.Default()
	cfg.Apply(
		config.WithServiceName("checkout"),
		config.WithEnvironment("test"),
		config.WithServerURL(serverURL),
		config.WithFlushInterval(0),
		config.WithMetricsInterval(0),
		config.WithGlobalLabels(map[string]string{"team": "payments"}),
	)
	cfg.Apply(opts...)
	return cfg
}

func TestAgentSendsTrace(t *testing.T) {
	store := intake.NewStore()
	srv := httptest.NewServer(intake.NewRouter(intake.Options{Store: store, SecretToken: "s3cr3t"}))
	defer srv.Close()

	a, err := New(testConfig(srv.URL, config.WithSecretToken("s3cr3t"), config.WithCompress(true)),
		WithLogger(logx.Nop()), WithRegisterer(prometheus.NewRegistry()), WithFramework("gin", "v1"))
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, transport.StateRunning, a.Events().State())
	assert.Nil(t, a.RUM())

	ctx, tx := a.Tracer().StartTransaction(context.Background(), "POST /pay", "request")
	tx.SetRequest(&model.Request{Method: "POST", Headers: map[string]string{"X-Api-Key": "k"}})
	_, span := tx.StartSpan(ctx, "charge", "external", "http", "", nil)
	span.End()
	tx.End()

	require.True(t, store.WaitFor(1, 5*time.Second))
	require.Eventually(t, func() bool { return len(store.Counts()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[model.Kind]int{model.KindSpan: 1, model.KindTransaction: 1}, store.Counts())

	b := store.Batches()[0]
	assert.True(t, b.Compressed)
	meta := string(b.MetadataRaw)
	assert.Contains(t, meta, `"name":"checkout"`)
	assert.Contains(t, meta, `"environment":"test"`)
	assert.Contains(t, meta, `"labels":{"team":"payments"}`)
	assert.Contains(t, meta, `"framework":{"name":"gin","version":"v1"}`)

	var raw string
	for _, batch := range store.Batches() {
		for _, e := range batch.Events {
			if e.Kind == model.KindTransaction {
				raw = string(e.Raw)
			}
		}
	}
	assert.Contains(t, raw, `"X-Api-Key":"[REDACTED]"`)
	assert.True(t, strings.HasPrefix(b.Header.Get("User-Agent"), "apm-agent-go/"))
}

func TestAgentCloseIdempotent(t *testing.T) {
	a, err := New(testConfig("http://127.0.0.1:1", config.WithRUM(true)), WithLogger(logx.Nop()))
	require.NoError(t, err)
	require.NotNil(t, a.RUM())
	assert.Equal(t, transport.StateRunning, a.RUM().State())

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, transport.StateStopped, a.Events().State())
	assert.Equal(t, transport.StateStopped, a.RUM().State())

	err = a.Events().QueueTransaction(context.Background(), &model.Transaction{ID: "x"})
	assert.True(t, errorx.IsCode(err, errorx.CodeDisposed))
}

func TestAgentDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	a, err := New(cfg, WithLogger(logx.Nop()))
	require.NoError(t, err)
	assert.Nil(t, a.Events())

	_, tx := a.Tracer().StartTransaction(context.Background(), "noop", "request")
	tx.End()
	assert.NoError(t, a.Tracer().CaptureLog(context.Background(), "ignored", "info"))
	assert.NoError(t, a.Close(context.Background()))
}

func TestAgentInvalidConfig(t *testing.T) {
	_, err := New(testConfig("ftp://nope"), WithLogger(logx.Nop()))
	assert.True(t, errorx.IsCode(err, errorx.CodeConfig))
}

func TestDefaultRegistry(t *testing.T) {
	a := &Agent{}
	prev := SetDefault(a)
	defer SetDefault(prev)
	assert.Same(t, a, Default())
}

func TestBuildMetadata(t *testing.T) {
	cfg := config.Default()
	cfg.ServiceNodeName = "node-1"
	cfg.Hostname = "box"
	md := BuildMetadata(cfg, nil)
	assert.Equal(t, config.DefaultServiceName, md.Service.Name)
	assert.Equal(t, "node-1", md.Service.Node.ConfiguredName)
	assert.Equal(t, "box", md.System.Hostname)
	assert.Equal(t, Name, md.Service.Agent.Name)
	assert.NotZero(t, md.Process.Pid)
	assert.Nil(t, md.Labels)
}
