package imagefetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentpost/types"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-png-payload")

type cacheCounter struct {
	hits, misses atomic.Int32
}

func (c *cacheCounter) RecordCacheHit(string)  { c.hits.Add(1) }
func (c *cacheCounter) RecordCacheMiss(string) { c.misses.Add(1) }

func newTestFetcher(t *testing.T, cfg Config, opts ...Option) *Fetcher {
	t.Helper()
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	// httptest 服务器是明文 HTTP，使用默认 Transport
	opts = append([]Option{WithTransport(http.DefaultTransport)}, opts...)
	return New(cfg, zaptest.NewLogger(t), opts...)
}

func imageServer(t *testing.T, contentType string, body []byte, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "max-age=60")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes, nil)
	f := newTestFetcher(t, Config{})

	img, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	t.Cleanup(func() { img.Cleanup() })

	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, int64(len(pngBytes)), img.Size)
	assert.Equal(t, ".png", filepath.Ext(img.Path))
	assert.False(t, img.FromCache)

	data, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestFetch_ContentTypeWithParams(t *testing.T) {
	srv := imageServer(t, "image/jpeg; charset=binary", []byte("\xff\xd8\xff\xe0jpeg"), nil)
	f := newTestFetcher(t, Config{})

	img, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	defer img.Cleanup()

	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, ".jpg", filepath.Ext(img.Path))
}

func TestFetch_Cleanup(t *testing.T) {
	srv := imageServer(t, "image/gif", []byte("GIF89a"), nil)
	f := newTestFetcher(t, Config{})

	img, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.NoError(t, img.Cleanup())
	_, statErr := os.Stat(img.Path)
	assert.True(t, os.IsNotExist(statErr))

	// 重复清理不报错
	assert.NoError(t, img.Cleanup())
	var nilImg *Image
	assert.NoError(t, nilImg.Cleanup())
}

func TestFetch_CacheHit(t *testing.T) {
	var hits atomic.Int32
	srv := imageServer(t, "image/png", pngBytes, &hits)
	counter := &cacheCounter{}
	f := newTestFetcher(t, Config{}, WithRecorder(counter))

	first, err := f.Fetch(context.Background(), srv.URL+"/cached.png")
	require.NoError(t, err)
	defer first.Cleanup()

	second, err := f.Fetch(context.Background(), srv.URL+"/cached.png")
	require.NoError(t, err)
	defer second.Cleanup()

	assert.Equal(t, int32(1), hits.Load(), "second fetch should be served from cache")
	assert.True(t, second.FromCache)
	assert.NotEqual(t, first.Path, second.Path, "each fetch gets its own temp file")
	assert.Equal(t, int32(1), counter.hits.Load())
	assert.Equal(t, int32(1), counter.misses.Load())
}

func TestFetch_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		cfg     Config
		want    string
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			want: "status 404",
		},
		{
			name: "html page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html></html>"))
			},
			want: "not an image",
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write(bytes.Repeat([]byte("x"), 2048))
			},
			cfg:  Config{MaxBytes: 1024},
			want: "exceeds 1024 bytes",
		},
		{
			name: "html labelled as png",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write([]byte("<!DOCTYPE html><html><body>login</body></html>"))
			},
			want: `body looks like "text/html`,
		},
		{
			name: "svg is not sniffed as an image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/svg+xml")
				w.Write([]byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`))
			},
			want: "not an image",
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
			},
			want: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			dir := t.TempDir()
			tt.cfg.TempDir = dir
			f := newTestFetcher(t, tt.cfg)

			img, err := f.Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Nil(t, img)
			assert.True(t, types.IsErrorCode(err, types.ErrImageFetch))
			assert.Contains(t, err.Error(), tt.want)

			// 失败时不残留临时文件
			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestFetch_CacheIsBounded(t *testing.T) {
	var hits atomic.Int32
	body := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 1000)...)
	srv := imageServer(t, "image/png", body, &hits)
	const capBytes = 3000
	f := newTestFetcher(t, Config{CacheBytes: capBytes})

	fetch := func(name string) *Image {
		t.Helper()
		img, err := f.Fetch(context.Background(), srv.URL+"/"+name+".png")
		require.NoError(t, err)
		t.Cleanup(func() { img.Cleanup() })
		return img
	}

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		fetch(name)
		assert.LessOrEqual(t, f.cache.Size(), int64(capBytes))
	}
	assert.Equal(t, int32(5), hits.Load())
	assert.Less(t, f.cache.Len(), 5, "old entries should be evicted")

	// 最近的条目仍在缓存中
	assert.True(t, fetch("e").FromCache)
	assert.Equal(t, int32(5), hits.Load())

	// 最早的条目已被淘汰，需要重新下载
	assert.False(t, fetch("a").FromCache)
	assert.Equal(t, int32(6), hits.Load())
}

func TestBoundedCache(t *testing.T) {
	c := newBoundedCache(10)

	c.Set("a", []byte("1234"))
	c.Set("b", []byte("5678"))
	assert.Equal(t, int64(8), c.Size())

	// 访问 a 后，b 成为最久未用
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", []byte("9012"))

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(8), c.Size())

	// 覆盖写按新值计算
	c.Set("a", []byte("12"))
	assert.Equal(t, int64(6), c.Size())

	// 超过总容量的条目不缓存
	c.Set("huge", bytes.Repeat([]byte("x"), 11))
	_, ok = c.Get("huge")
	assert.False(t, ok)
	assert.Equal(t, int64(6), c.Size())

	c.Delete("a")
	c.Delete("missing")
	assert.Equal(t, int64(4), c.Size())
	assert.Equal(t, 1, c.Len())
}

func TestBoundedCache_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCacheBytes, newBoundedCache(0).maxBytes)
}

func TestFetch_InvalidURL(t *testing.T) {
	f := newTestFetcher(t, Config{})

	for _, raw := range []string{"", "file:///etc/passwd", "not a url", "/relative.png"} {
		_, err := f.Fetch(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, types.IsErrorCode(err, types.ErrImageFetch))
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes, nil)
	f := newTestFetcher(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", extension("image/png"))
	assert.Equal(t, ".webp", extension("image/webp"))
	assert.True(t, strings.HasPrefix(extension("image/x-unknown-type"), "."))
}
