// Package snapshot captures the rendered dashboard as an image with headless
// Chrome.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"kpidash/internal/config"
	"kpidash/internal/presenter"
)

var (
	ErrNoURL        = errors.New("snapshot url is empty")
	ErrEmptyCapture = errors.New("browser returned an empty image")
)

// settle gives the chart scripts time to draw after the page is ready.
const settle = 750 * time.Millisecond

// shootFunc loads url and stores the screenshot in buf; tests replace it.
type shootFunc func(ctx context.Context, cfg config.SnapshotConfig, url string, buf *[]byte) error

// Capturer takes full-page screenshots.
type Capturer struct {
	cfg    config.SnapshotConfig
	shoot  shootFunc
	logger *slog.Logger
}

// New creates a Capturer. Zero sizes and timeouts fall back to defaults.
func New(cfg config.SnapshotConfig, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Width <= 0 {
		cfg.Width = 1440
	}
	if cfg.Height <= 0 {
		cfg.Height = 900
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 100
	}
	return &Capturer{
		cfg:    cfg,
		shoot:  shootChrome,
		logger: logger.With(slog.String("component", "snapshot")),
	}
}

// Extension is the file extension of captured images: PNG at quality 100,
// JPEG below.
func (c *Capturer) Extension() string {
	if c.cfg.Quality < 100 {
		return ".jpg"
	}
	return ".png"
}

// Capture loads url and returns a screenshot of the whole page.
func (c *Capturer) Capture(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var buf []byte
	if err := c.shoot(ctx, c.cfg, url, &buf); err != nil {
		return nil, fmt.Errorf("capture %s: %w", url, err)
	}
	if len(buf) == 0 {
		return nil, ErrEmptyCapture
	}

	c.logger.InfoContext(ctx, "snapshot captured",
		slog.String("url", url),
		slog.Int("bytes", len(buf)),
		slog.Duration("duration", time.Since(start)))
	return buf, nil
}

// CaptureModel renders m as the HTML chart page and captures it.
func (c *Capturer) CaptureModel(ctx context.Context, m presenter.RenderModel) ([]byte, error) {
	var page bytes.Buffer
	if err := presenter.WriteHTML(&page, m); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "kpidash-snapshot-")
	if err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "dashboard.html")
	if err := os.WriteFile(path, page.Bytes(), 0600); err != nil {
		return nil, fmt.Errorf("write snapshot page: %w", err)
	}
	return c.Capture(ctx, "file://"+filepath.ToSlash(path))
}

func shootChrome(ctx context.Context, cfg config.SnapshotConfig, url string, buf *[]byte) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	return chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.FullScreenshot(buf, cfg.Quality),
	)
}
