// Package browser drives a stealth Chrome through go-rod. Locally each
// driver owns its own Chrome process and a stalled session is replaced by
// killing the whole browser. Against a remote Chrome each driver owns an
// incognito browser context instead, and only that context is disposed.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
)

// Config configures the Chrome sessions handed to the scraper.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headful runs a visible Chrome on an Xvfb display.
	Headful bool
	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	// Width and Height of the viewport. Default: 1120x550.
	Width  int
	Height int

	// CallTimeout bounds every page query. Default: 20s.
	CallTimeout time.Duration
	// NavigateTimeout bounds a navigation and its load wait. Default: 30s.
	NavigateTimeout time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Width <= 0 {
		c.Width = 1120
	}
	if c.Height <= 0 {
		c.Height = 550
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 20 * time.Second
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one browsing session: a local Chrome process (with its Xvfb
// display in headful mode) or an incognito context on a remote Chrome.
type Manager struct {
	cfg    Config
	remote *remoteConn // nil when Chrome is launched locally

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	display *display
	startAt time.Time
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, remote: newRemoteConn(cfg.RemoteURL, cfg.Logger)}
}

// Factory returns a driver.Factory. Locally it launches a dedicated Chrome
// for every driver; with a RemoteURL all drivers share one connection and
// each gets its own incognito context.
func Factory(cfg Config) driver.Factory {
	cfg.defaults()
	remote := newRemoteConn(cfg.RemoteURL, cfg.Logger)
	return func(ctx context.Context) (driver.Driver, error) {
		m := &Manager{cfg: cfg, remote: remote}
		if _, err := m.Start(ctx); err != nil {
			m.Close()
			return nil, err
		}
		tab, err := OpenTab(ctx, m)
		if err != nil {
			m.Close()
			return nil, err
		}
		return tab, nil
	}
}

// Start launches Chrome (or opens a context on the remote instance) and
// returns the Rod browser handle pages should be created on.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	var (
		b   *rod.Browser
		err error
	)
	if m.remote != nil {
		b, err = m.remote.incognito(ctx)
	} else {
		b, err = m.launch(ctx)
	}
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	return b, nil
}

// Browser returns the current Rod browser handle.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close releases the session. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed && !m.startAt.IsZero() {
		m.cfg.Logger.Debug("browser: closing", "uptime", time.Since(m.startAt), "remote", m.remote != nil)
	}
	m.closed = true
	return m.cleanup()
}

// launch starts a local Chrome and connects to it.
func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	l := launcher.New().Context(ctx).
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", m.cfg.Width, m.cfg.Height))

	if m.cfg.Headful {
		d, err := startDisplay(ctx, m.cfg.XvfbDisplay, m.cfg.Width, m.cfg.Height, m.cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
		m.display = d
		l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+d.name)...)
	} else {
		l = l.Headless(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	m.lnch = l
	m.cfg.Logger.Info("browser: launched local chrome", "url", u, "headful", m.cfg.Headful)

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		m.cfg.Logger.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

// closable reports whether Close on b only releases what this manager
// created. A remote Chrome itself is never closable: rod closes the whole
// browser when b carries no context ID.
func (m *Manager) closable(b *rod.Browser) bool {
	return m.remote == nil || b.BrowserContextID != ""
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		if m.closable(m.browser) {
			err = m.browser.Close()
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Kill()
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.display != nil {
		m.display.stop()
		m.display = nil
	}
	return err
}

// remoteConn is one CDP connection to an external Chrome, shared by every
// Manager of a Factory. It reconnects once if the remote was restarted.
type remoteConn struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	root *rod.Browser
}

func newRemoteConn(url string, logger *slog.Logger) *remoteConn {
	if url == "" {
		return nil
	}
	return &remoteConn{url: url, logger: logger}
}

// incognito opens a fresh browser context on the remote Chrome.
func (rc *remoteConn) incognito(ctx context.Context) (*rod.Browser, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rc.root == nil {
			root := rod.New().ControlURL(rc.url)
			if err := root.Connect(); err != nil {
				return nil, fmt.Errorf("browser: connect remote: %w", err)
			}
			if err := root.IgnoreCertErrors(true); err != nil {
				rc.logger.Warn("browser: ignore cert errors failed", "error", err)
			}
			rc.logger.Info("browser: connected to remote", "url", rc.url)
			rc.root = root
		}

		b, err := rc.root.Incognito()
		if err == nil {
			return b, nil
		}
		rc.root = nil
		if attempt > 0 {
			return nil, fmt.Errorf("browser: incognito context: %w", err)
		}
		rc.logger.Warn("browser: remote connection lost, reconnecting", "error", err)
	}
}
