// Package session provisions browser automation sessions for the pool.
// A Factory shares one Chrome process (local headless or remote via
// CDP) and hands out sessions backed by individual tabs.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/gregoryb/recordscrape/internal/config"
	"github.com/gregoryb/recordscrape/internal/pool"
)

const defaultStepTimeout = 60 * time.Second

// Factory creates browser sessions on demand. It implements
// pool.Factory. The underlying Chrome process is started lazily on the
// first session and restarted if it dies.
type Factory struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewFactory creates a Factory. No browser is launched until the first
// NewHandle call.
func NewFactory(cfg config.BrowserConfig, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger.With("component", "session_factory"),
	}
}

// ensureAllocator lazily starts the shared Chrome process. Must be
// called with f.mu held.
func (f *Factory) ensureAllocator(ctx context.Context) error {
	if f.allocCtx != nil && f.allocCtx.Err() == nil {
		return nil
	}
	// Previous allocator is dead (Chrome crashed or first call), so recreate it.
	if f.allocCancel != nil {
		f.allocCancel()
	}

	baseCtx := context.Background()

	if cdpURL := strings.TrimSpace(f.cfg.CDPURL); cdpURL != "" {
		f.allocCtx, f.allocCancel = chromedp.NewRemoteAllocator(baseCtx, cdpURL)
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", f.cfg.Headless),
	)
	if path := strings.TrimSpace(f.cfg.ChromePath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	f.allocCtx, f.allocCancel = chromedp.NewExecAllocator(baseCtx, opts...)
	return nil
}

// NewHandle creates a browser session as a fresh tab of the shared
// Chrome process. The tab is verified alive with a blank navigation
// before it is handed out.
func (f *Factory) NewHandle(ctx context.Context) (pool.Handle, error) {
	f.mu.Lock()
	sess, err := f.newTab(ctx)
	if err != nil {
		// Chrome may have crashed, so reset the allocator and retry once.
		f.resetAllocator()
		sess, err = f.newTab(ctx)
	}
	f.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	f.logger.Debug("browser session opened")
	return sess, nil
}

// newTab opens and verifies a tab. Must be called with f.mu held.
func (f *Factory) newTab(ctx context.Context) (*Session, error) {
	if err := f.ensureAllocator(ctx); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(f.allocCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, err
	}

	stepTimeout := f.cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	return &Session{
		ctx:         tabCtx,
		cancel:      cancel,
		stepTimeout: stepTimeout,
	}, nil
}

// resetAllocator tears down the Chrome process so the next call starts
// a fresh one. Must be called with f.mu held.
func (f *Factory) resetAllocator() {
	if f.allocCancel != nil {
		f.allocCancel()
		f.allocCancel = nil
		f.allocCtx = nil
	}
}

// Close terminates the shared Chrome process. Sessions still out are
// dead after this; it should run only after the pool has drained.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetAllocator()
	f.logger.Info("browser allocator closed")
}

// Session is one browser tab. It satisfies pool.Handle and the scrape
// package's Browser interface.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stepTimeout time.Duration

	mu       sync.Mutex
	lastUsed time.Time
}

// Run executes chromedp actions in this tab under the session's
// per-step timeout. callCtx cancellation aborts the step early.
func (s *Session) Run(callCtx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()

	runCtx, cancel := context.WithTimeout(s.ctx, s.stepTimeout)
	defer cancel()

	if callCtx != nil && callCtx.Done() != nil {
		go func() {
			select {
			case <-callCtx.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}
	return chromedp.Run(runCtx, actions...)
}

// Close releases the tab.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
