package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func randomPortConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 20*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

// --- NewManager ---

func TestNewManager(t *testing.T) {
	m := NewManager(http.NewServeMux(), DefaultConfig(), zap.NewNop())

	require.NotNil(t, m)
	assert.False(t, m.IsRunning())
	assert.Equal(t, ":3000", m.Addr())
	assert.Empty(t, m.ListenAddr())
}

func TestNewManager_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewManager(http.NewServeMux(), Config{Addr: ":0"}, nil)
	})
}

// --- Start / Shutdown lifecycle ---

func TestManager_StartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	m := NewManager(handler, randomPortConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	addr := m.ListenAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := randomPortConfig()
	cfg.Addr = ln.Addr().String()
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())

	err = m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig(), zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	err := m.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig(), zap.NewNop())

	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestManager_WaitForShutdown_ContextCancel(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.WaitForShutdown(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not return after cancel")
	}
	assert.False(t, m.IsRunning())
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(http.NewServeMux(), randomPortConfig(), zap.NewNop())

	ch := m.Errors()
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Fatal("should not have received an error")
	default:
	}
}

// --- 在途请求排空 ---

func TestManager_ShutdownWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Write([]byte("posted"))
	})

	m := NewManager(handler, randomPortConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	type result struct {
		body string
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + m.ListenAddr() + "/discord/send")
		if err != nil {
			got <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		got <- result{body: string(b)}
	}()

	<-entered
	assert.Equal(t, int64(1), m.InFlight())

	shutdown := make(chan error, 1)
	go func() { shutdown <- m.Shutdown(context.Background()) }()

	// 排空期间请求仍在处理
	select {
	case <-shutdown:
		t.Fatal("Shutdown returned before the in-flight request finished")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-shutdown)
	r := <-got
	require.NoError(t, r.err)
	assert.Equal(t, "posted", r.body)
	assert.Zero(t, m.InFlight())
}

func TestManager_ShutdownTimeoutAbandons(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})

	cfg := randomPortConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	m := NewManager(handler, cfg, zap.NewNop())
	require.NoError(t, m.Start())

	go func() {
		resp, err := http.Get("http://" + m.ListenAddr() + "/")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "1 request(s) abandoned")
	assert.False(t, m.IsRunning())
}
