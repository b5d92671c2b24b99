package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentpost/api"
	"github.com/BaSui01/agentpost/config"
	"github.com/BaSui01/agentpost/testutil"
	"github.com/BaSui01/agentpost/testutil/fixtures"
	"github.com/BaSui01/agentpost/testutil/mocks"
)

func newTestServer(t *testing.T) (*Server, *mocks.MockSessionFactory) {
	t.Helper()
	cfg := fixtures.Config()
	logger := zaptest.NewLogger(t)
	sessions := mocks.NewMockSessionFactory(nil)
	return NewServer(cfg, logger, withApp(newApp(cfg, sessions, logger))), sessions
}

func TestServer_Routes(t *testing.T) {
	s, sessions := newTestServer(t)
	h := s.routes()

	t.Run("send without message", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/discord/send", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

		body := testutil.DecodeJSON[api.ErrorResponse](t, w)
		assert.Equal(t, "message is required", body.Error)
		assert.Equal(t, 0, sessions.StartCount())
	})

	t.Run("send text", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/discord/send", strings.NewReader(`{"message":"hello"}`)))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := testutil.DecodeJSON[api.SendResponse](t, w)
		assert.True(t, body.Success)
		assert.Equal(t, "hello", body.Posted)
		assert.Equal(t, 1, sessions.StartCount())
		assert.Equal(t, []string{config.DefaultLoginURL}, sessions.StartURLs())
		assert.Equal(t, 1, sessions.Agents()[0].StopCalls())
	})

	t.Run("wrong method", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/discord/send", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("version", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		body := testutil.DecodeJSON[api.VersionResponse](t, w)
		assert.Equal(t, Version, body.Version)
	})

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("unknown path", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_StartAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start())
	require.True(t, s.httpManager.IsRunning())

	resp, err := http.Get("http://" + s.httpManager.ListenAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	done := make(chan error, 1)
	go func() { done <- s.WaitForShutdown(ctx) }()
	cancel()

	err, ok := testutil.WaitForChannel(done, 10*time.Second)
	require.True(t, ok, "server did not shut down")
	assert.NoError(t, err)
	assert.False(t, s.httpManager.IsRunning())
}
