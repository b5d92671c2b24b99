package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpost/internal/telemetry"
	"github.com/BaSui01/agentpost/internal/tlsutil"
	"github.com/BaSui01/agentpost/types"
)

const cacheType = "image"

// 常见类型使用固定扩展名，其余交给 mime 包
var preferredExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// CacheRecorder 记录缓存命中情况
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// sniffLen http.DetectContentType 最多检查的字节数
const sniffLen = 512

// Config 下载配置
type Config struct {
	MaxBytes int64
	Timeout  time.Duration
	TempDir  string
	// 响应缓存容量（字节），<= 0 使用 DefaultCacheBytes
	CacheBytes int64
}

// Image 已下载到本地的图片
type Image struct {
	Path        string
	ContentType string
	Size        int64
	SourceURL   string
	FromCache   bool
}

// Cleanup 删除临时文件，可重复调用
func (i *Image) Cleanup() error {
	if i == nil || i.Path == "" {
		return nil
	}
	err := os.Remove(i.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Option 配置 Fetcher
type Option func(*Fetcher)

// WithTransport 替换缓存层下面的 Transport（测试用）
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.base = rt }
}

// WithRecorder 设置缓存指标记录器
func WithRecorder(r CacheRecorder) Option {
	return func(f *Fetcher) { f.recorder = r }
}

// Fetcher 图片下载器，可并发使用
type Fetcher struct {
	cfg      Config
	base     http.RoundTripper
	client   *http.Client
	cache    *boundedCache
	recorder CacheRecorder
	logger   *zap.Logger
}

// New 创建下载器
func New(cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 25 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	f := &Fetcher{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "imagefetch")),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.base == nil {
		f.base = tlsutil.NewTransport(tlsutil.TransportOptions{ResponseHeaderTimeout: cfg.Timeout})
	}

	f.cache = newBoundedCache(cfg.CacheBytes)
	cached := httpcache.NewTransport(f.cache)
	cached.Transport = f.base
	f.client = tlsutil.SecureHTTPClient(cfg.Timeout, cached)

	return f
}

// Fetch 下载 rawURL 到临时文件。调用方负责 Image.Cleanup。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "imagefetch.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("image.url", rawURL))

	img, err := f.fetch(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger.Warn("image download failed", zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("image.content_type", img.ContentType),
		attribute.Int64("image.size", img.Size),
		attribute.Bool("image.from_cache", img.FromCache),
	)
	f.logger.Info("image downloaded",
		zap.String("url", rawURL),
		zap.String("path", img.Path),
		zap.String("content_type", img.ContentType),
		zap.Int64("size", img.Size),
		zap.Bool("from_cache", img.FromCache),
	)
	return img, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fetchError("image URL must be an absolute http(s) URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fetchError("failed to build image request", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fetchError("image request failed", err).WithRetryable(true)
	}
	defer resp.Body.Close()

	fromCache := resp.Header.Get(httpcache.XFromCache) != ""
	f.recordCache(fromCache)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fetchError(fmt.Sprintf("image server returned status %d", resp.StatusCode), nil)
	}

	contentType, err := imageType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fetchError(err.Error(), nil)
	}

	if resp.ContentLength > f.cfg.MaxBytes {
		return nil, fetchError(fmt.Sprintf("image exceeds %d bytes", f.cfg.MaxBytes), nil)
	}

	file, err := os.CreateTemp(f.cfg.TempDir, "agentpost-*"+extension(contentType))
	if err != nil {
		return nil, fetchError("failed to create temp file", err)
	}
	img := &Image{
		Path:        file.Name(),
		ContentType: contentType,
		SourceURL:   rawURL,
		FromCache:   fromCache,
	}

	n, copyErr := io.Copy(file, io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	var sniffErr error
	if copyErr == nil && n > 0 && n <= f.cfg.MaxBytes {
		sniffErr = sniff(file, contentType)
	}
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = img.Cleanup()
		return nil, fetchError("failed to read image body", copyErr).WithRetryable(true)
	case closeErr != nil:
		_ = img.Cleanup()
		return nil, fetchError("failed to write temp file", closeErr)
	case n > f.cfg.MaxBytes:
		_ = img.Cleanup()
		return nil, fetchError(fmt.Sprintf("image exceeds %d bytes", f.cfg.MaxBytes), nil)
	case n == 0:
		_ = img.Cleanup()
		return nil, fetchError("image body is empty", nil)
	case sniffErr != nil:
		_ = img.Cleanup()
		return nil, fetchError(sniffErr.Error(), nil)
	}

	img.Size = n
	return img, nil
}

func (f *Fetcher) recordCache(hit bool) {
	if f.recorder == nil {
		return
	}
	if hit {
		f.recorder.RecordCacheHit(cacheType)
	} else {
		f.recorder.RecordCacheMiss(cacheType)
	}
}

func imageType(header string) (string, error) {
	if header == "" {
		return "", errors.New("image response has no content type")
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q", header)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("content type %q is not an image", mediaType)
	}
	return mediaType, nil
}

// sniff 检查文件头，声明为图片但内容不是图片时报错
func sniff(file *os.File, declared string) error {
	head := make([]byte, sniffLen)
	n, err := file.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read image header: %w", err)
	}
	detected := http.DetectContentType(head[:n])
	if !strings.HasPrefix(detected, "image/") {
		return fmt.Errorf("content type %q is not an image: body looks like %q", declared, detected)
	}
	return nil
}

func extension(contentType string) string {
	if ext, ok := preferredExt[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

func fetchError(msg string, cause error) *types.Error {
	err := types.NewError(types.ErrImageFetch, msg)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
