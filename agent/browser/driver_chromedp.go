package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// collectElementsJS 给可交互元素打上 data-agentpost-id 并返回其描述。
// 只采集是否已填写，不采集输入框的值。
const collectElementsJS = `(() => {
  const attr = 'data-agentpost-id';
  document.querySelectorAll('[' + attr + ']').forEach(e => e.removeAttribute(attr));
  const sel = 'a[href],button,input,textarea,select,[role=button],[role=textbox],[role=link],[role=tab],[contenteditable=true],[aria-label]';
  const out = [];
  let n = 0;
  for (const el of document.querySelectorAll(sel)) {
    const r = el.getBoundingClientRect();
    const style = window.getComputedStyle(el);
    const visible = r.width > 0 && r.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
    const isFile = el.tagName === 'INPUT' && el.type === 'file';
    if (!visible && !isFile) continue;
    const id = 'e' + (n++);
    el.setAttribute(attr, id);
    const isField = el.tagName === 'INPUT' || el.tagName === 'TEXTAREA' || el.isContentEditable;
    out.push({
      id: id,
      tag: el.tagName.toLowerCase(),
      type: el.getAttribute('type') || el.getAttribute('role') || '',
      text: isField ? '' : (el.innerText || '').trim().slice(0, 80),
      label: (el.getAttribute('aria-label') || el.getAttribute('placeholder') || el.getAttribute('name') || '').slice(0, 80),
      filled: isField ? ((el.value || el.innerText || '').trim().length > 0) : false,
      x: Math.round(r.x), y: Math.round(r.y), width: Math.round(r.width), height: Math.round(r.height),
      visible: visible
    });
    if (n >= 150) break;
  }
  return out;
})()`

var keyNames = map[string]string{
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"esc":       kb.Escape,
	"backspace": kb.Backspace,
	"arrowdown": kb.ArrowDown,
	"arrowup":   kb.ArrowUp,
}

// ChromeDPDriver 基于 chromedp 的 Driver 实现。每个实例独占一个 Chrome 进程和临时 profile。
type ChromeDPDriver struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	profileDir  string
	config      DriverConfig
	logger      *zap.Logger
	mu          sync.Mutex
	closeOnce   sync.Once
	closeErr    error
}

// NewChromeDPDriver 启动浏览器。浏览器生命周期与 ctx 无关，只能通过 Close 结束。
func NewChromeDPDriver(ctx context.Context, config DriverConfig, logger *zap.Logger) (*ChromeDPDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = DefaultDriverConfig().ActionTimeout
	}

	profileDir, err := os.MkdirTemp(config.ProfileDir, "agentpost-profile-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create browser profile dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	driver := &ChromeDPDriver{
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      cancel,
		profileDir:  profileDir,
		config:      config,
		logger:      logger.With(zap.String("component", "chromedp_driver")),
	}

	// 第一次 Run 启动浏览器；ctx 只约束启动耗时
	startCtx, startCancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, startCancel)
	err = chromedp.Run(startCtx)
	stop()
	startCancel()
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	driver.logger.Info("chromedp browser started",
		zap.Bool("headless", config.Headless),
		zap.Int("viewport_w", config.ViewportWidth),
		zap.Int("viewport_h", config.ViewportHeight))

	return driver, nil
}

// run 在浏览器 tab 上执行动作，受 ctx 与单动作超时共同约束
func (d *ChromeDPDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	runCtx, cancel := context.WithTimeout(d.ctx, d.config.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate 导航到 URL
func (d *ChromeDPDriver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("navigating", zap.String("url", url))
	return d.run(ctx, chromedp.Navigate(url))
}

// Screenshot 截取当前视口
func (d *ChromeDPDriver) Screenshot(ctx context.Context) (*Screenshot, error) {
	var (
		buf        []byte
		currentURL string
	)
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf), chromedp.Location(&currentURL)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	return &Screenshot{
		Data:      buf,
		MediaType: "image/png",
		Width:     d.config.ViewportWidth,
		Height:    d.config.ViewportHeight,
		Timestamp: time.Now(),
		URL:       currentURL,
	}, nil
}

// Elements 采集可交互元素
func (d *ChromeDPDriver) Elements(ctx context.Context) ([]PageElement, error) {
	var elements []PageElement
	if err := d.run(ctx, chromedp.Evaluate(collectElementsJS, &elements)); err != nil {
		return nil, fmt.Errorf("failed to collect elements: %w", err)
	}
	return elements, nil
}

// Click 点击元素
func (d *ChromeDPDriver) Click(ctx context.Context, elementID string) error {
	d.logger.Debug("clicking", zap.String("element", elementID))
	return d.run(ctx, chromedp.Click(elementSelector(elementID), chromedp.ByQuery))
}

// Type 聚焦元素并输入文本。日志不记录文本内容。
func (d *ChromeDPDriver) Type(ctx context.Context, elementID, text string) error {
	d.logger.Debug("typing", zap.String("element", elementID), zap.Int("length", len(text)))
	sel := elementSelector(elementID)
	return d.run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	)
}

// Press 按下单个按键
func (d *ChromeDPDriver) Press(ctx context.Context, key string) error {
	k, ok := keyNames[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("unsupported key: %q", key)
	}
	d.logger.Debug("pressing", zap.String("key", key))
	return d.run(ctx, chromedp.KeyEvent(k))
}

// Upload 把本地文件设置到 file input
func (d *ChromeDPDriver) Upload(ctx context.Context, elementID, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("upload file not accessible: %w", err)
	}
	d.logger.Debug("uploading", zap.String("element", elementID), zap.String("path", path))
	return d.run(ctx, chromedp.SetUploadFiles(elementSelector(elementID), []string{path}, chromedp.ByQuery))
}

// Scroll 在视口中心滚动
func (d *ChromeDPDriver) Scroll(ctx context.Context, deltaY int) error {
	d.logger.Debug("scrolling", zap.Int("deltaY", deltaY))
	x := float64(d.config.ViewportWidth) / 2
	y := float64(d.config.ViewportHeight) / 2
	return d.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseWheel, x, y).
				WithDeltaX(0).
				WithDeltaY(float64(deltaY)).Do(ctx)
		}),
	)
}

// URL 获取当前 URL
func (d *ChromeDPDriver) URL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get URL: %w", err)
	}
	return url, nil
}

// Title 获取页面标题
func (d *ChromeDPDriver) Title(ctx context.Context) (string, error) {
	var title string
	if err := d.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to get title: %w", err)
	}
	return title, nil
}

// Close 关闭浏览器并删除临时 profile，可重复调用
func (d *ChromeDPDriver) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Info("closing chromedp browser")
		d.cancel()
		d.allocCancel()
		if err := os.RemoveAll(d.profileDir); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.closeErr = fmt.Errorf("failed to remove browser profile: %w", err)
		}
	})
	return d.closeErr
}
