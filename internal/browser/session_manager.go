// Package browser captures live snapshots of the target application through
// a headless Chrome driven by go-rod. Every capture runs in its own scoped
// session that is torn down before the capture returns, successful or not.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	// DebuggerURL connects to a running browser instead of launching one.
	DebuggerURL string `yaml:"debugger_url"`
	// Bin is the Chrome executable. Empty lets rod locate or download one.
	Bin string `yaml:"bin"`
	// Launch holds extra command-line flags, with or without leading dashes.
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	IdleTimeoutMs       int      `yaml:"idle_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		Launch:              []string{"--no-sandbox", "--disable-dev-shm-usage"},
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		IdleTimeoutMs:       2000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// IdleTimeout bounds the wait for network quiet after load.
func (c Config) IdleTimeout() time.Duration {
	if c.IdleTimeoutMs == 0 {
		return 2 * time.Second
	}
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

func (c Config) viewport() (int, int) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w == 0 {
		w = 1920
	}
	if h == 0 {
		h = 1080
	}
	return w, h
}

// Snapshot is the serialized markup of a page at one point in time.
type Snapshot struct {
	URL        string
	HTML       string
	CapturedAt time.Time
}

// Snapshotter captures a fresh snapshot of a URL.
type Snapshotter interface {
	Capture(ctx context.Context, url string) (Snapshot, error)
}

// Session is one browser with one incognito page.
type Session struct {
	cfg      Config
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	incog    *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

// Open starts (or connects to) a browser and opens an incognito page.
// The caller must Close the session; WithSession does that for you.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{cfg: cfg, log: log}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		s.launcher = newLauncher(cfg)
		url, err := s.launcher.Context(ctx).Launch()
		if err != nil {
			s.launcher.Cleanup()
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	s.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := s.browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := s.browser.Incognito()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	s.incog = incognito
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.page = page

	w, h := cfg.viewport()
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		log.Debug("viewport override failed", zap.Error(err))
	}

	log.Debug("browser session opened", zap.String("control_url", controlURL))
	return s, nil
}

func newLauncher(cfg Config) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	for _, raw := range cfg.Launch {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// WithSession opens a session, runs fn and closes the session on every path.
func WithSession(ctx context.Context, cfg Config, log *zap.Logger, fn func(*Session) error) (err error) {
	s, err := Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(s)
}

// Navigate loads url and waits for the load event, then briefly for network
// quiet. An idle timeout is not an error.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	if err := s.page.Context(ctx).WaitIdle(s.cfg.IdleTimeout()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		s.log.Debug("page did not go idle", zap.String("url", url), zap.Error(err))
	}
	return nil
}

// HTML returns the serialized document.
func (s *Session) HTML() (string, error) {
	html, err := s.page.HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Close releases the page, the browser connection and any launched process.
// A browser reached through DebuggerURL is left running; only the incognito
// context is disposed. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.page != nil {
			_ = s.page.Close()
		}
		switch {
		case s.browser == nil:
		case s.launcher != nil:
			s.closeErr = s.browser.Close()
		case s.incog != nil:
			s.closeErr = proto.TargetDisposeBrowserContext{BrowserContextID: s.incog.BrowserContextID}.Call(s.browser)
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		if s.closeErr != nil {
			s.closeErr = fmt.Errorf("close browser: %w", s.closeErr)
		}
		s.log.Debug("browser session closed")
	})
	return s.closeErr
}

// RodSnapshotter captures snapshots with a new session per capture.
type RodSnapshotter struct {
	cfg Config
	log *zap.Logger
	now func() time.Time
}

// NewSnapshotter creates a RodSnapshotter.
func NewSnapshotter(cfg Config, log *zap.Logger) *RodSnapshotter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RodSnapshotter{cfg: cfg, log: log.Named("browser"), now: time.Now}
}

// Capture implements Snapshotter.
func (r *RodSnapshotter) Capture(ctx context.Context, url string) (Snapshot, error) {
	var snap Snapshot
	err := WithSession(ctx, r.cfg, r.log, func(s *Session) error {
		r.log.Info("capturing snapshot", zap.String("url", url))
		if err := s.Navigate(ctx, url); err != nil {
			return err
		}
		html, err := s.HTML()
		if err != nil {
			return err
		}
		snap = Snapshot{URL: url, HTML: html, CapturedAt: r.now()}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	r.log.Debug("snapshot captured", zap.Int("bytes", len(snap.HTML)))
	return snap, nil
}
