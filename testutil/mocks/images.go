package mocks

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/BaSui01/agentpost/internal/imagefetch"
	"github.com/BaSui01/agentpost/testutil/fixtures"
)

// MockImageFetcher 把固定的 PNG 写入目录，实现 automation.ImageFetcher
type MockImageFetcher struct {
	mu sync.Mutex

	dir  string
	err  error
	urls []string
}

// NewMockImageFetcher 创建写入 dir 的 MockImageFetcher
func NewMockImageFetcher(dir string) *MockImageFetcher {
	return &MockImageFetcher{dir: dir}
}

// WithError 设置 Fetch 返回的错误
func (f *MockImageFetcher) WithError(err error) *MockImageFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Fetch 实现 automation.ImageFetcher
func (f *MockImageFetcher) Fetch(ctx context.Context, url string) (*imagefetch.Image, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := fixtures.PNG()
	path := filepath.Join(f.dir, "upload.png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}
	return &imagefetch.Image{Path: path, ContentType: "image/png", Size: int64(len(data)), SourceURL: url}, nil
}

// Path 返回 Fetch 写入的文件路径
func (f *MockImageFetcher) Path() string {
	return filepath.Join(f.dir, "upload.png")
}

// URLs 返回所有请求过的 URL
func (f *MockImageFetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}
