package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imattdu/orbit-apm/errorx"
)

func TestPostNDJSON(t *testing.T) {
	var (
		gotBody []byte
		gotHdr  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHdr = r.Header.Clone()
		var rd io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			require.NoError(t, err)
			rd = zr
		}
		gotBody, _ = io.ReadAll(rd)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	var stats *CallStats
	c, err := New(
		WithBaseURL(srv.URL),
		WithSecretToken("tok"),
		WithUserAgent("orbit-apm/test"),
		WithCompress(true),
		WithStatsHook(func(_ context.Context, s *CallStats) { stats = s }),
	)
	require.NoError(t, err)
	defer c.CloseIdleConnections()

	body := []byte("{\"metadata\":{}}\n")
	resp, err := c.PostNDJSON(context.Background(), "/intake/v2/events", body, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Equal(t, body, gotBody)
	assert.Equal(t, "application/x-ndjson", gotHdr.Get("Content-Type"))
	assert.Equal(t, "Bearer tok", gotHdr.Get("Authorization"))
	assert.Equal(t, "orbit-apm/test", gotHdr.Get("User-Agent"))

	require.NotNil(t, stats)
	assert.True(t, stats.Compressed)
	assert.Equal(t, len(body), stats.BodySize)
	assert.Equal(t, "/intake/v2/events", stats.Path)
}

func TestNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ApiKey k", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"queue is full"}`))
	}))
	defer srv.Close()

	c, err := New(WithAPIKey("k"))
	require.NoError(t, err)

	resp, err := c.PostNDJSON(context.Background(), srv.URL+"/intake/v2/events", []byte("x\n"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, errorx.IsCode(err, errorx.CodeHTTPStatus))

	e, ok := errorx.From(err)
	require.True(t, ok)
	assert.Equal(t, `{"error":"queue is full"}`, e.Fields["response"])
}

func TestTransportErrorAndCancel(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.PostNDJSON(ctx, "http://127.0.0.1:1/intake/v2/events", []byte("x\n"), nil)
	require.Error(t, err)
	assert.True(t, errorx.IsCode(err, errorx.CodeTransport))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildURL(t *testing.T) {
	c, err := New(WithBaseURL("http://apm:8200/base/"))
	require.NoError(t, err)

	u, err := c.buildURL("/intake/v2/events")
	require.NoError(t, err)
	assert.Equal(t, "http://apm:8200/base/intake/v2/events", u)

	u, err = c.buildURL("http://other:1/x")
	require.NoError(t, err)
	assert.Equal(t, "http://other:1/x", u)
}

type intakeReply struct {
	Accepted int `json:"accepted"`
	Errors   []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func TestResponseDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"accepted":3}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"accepted":1,"errors":[{"message":"bad line"}]}`))
	}))
	defer srv.Close()

	c, err := New(WithBaseURL(srv.URL))
	require.NoError(t, err)

	var ok intakeReply
	_, err = c.PostNDJSON(context.Background(), "/ok", []byte("x\n"), &ok)
	require.NoError(t, err)
	assert.Equal(t, 3, ok.Accepted)

	var rejected intakeReply
	_, err = c.PostNDJSON(context.Background(), "/bad", []byte("x\n"), &rejected)
	assert.True(t, errorx.IsCode(err, errorx.CodeHTTPStatus))
	assert.Equal(t, 1, rejected.Accepted)
	require.Len(t, rejected.Errors, 1)
	assert.Equal(t, "bad line", rejected.Errors[0].Message)

	// 非 JSON 的错误响应不影响返回的错误
	var plain intakeReply
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv2.Close()
	_, err = c.PostNDJSON(context.Background(), srv2.URL+"/x", []byte("x\n"), &plain)
	assert.True(t, errorx.IsCode(err, errorx.CodeHTTPStatus))
	assert.Zero(t, plain.Accepted)
}
