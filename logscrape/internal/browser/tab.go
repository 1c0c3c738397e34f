package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/chatlogs/logscrape/driver"
)

// Tab is a stealth page implementing driver.Driver. Closing the tab also
// releases the Manager that opened it.
type Tab struct {
	Page    *rod.Page
	manager *Manager
	router  *rod.HijackRouter

	// cancel releases the timeout of the last query; its elements stay
	// usable until the next FindAll.
	cancel context.CancelFunc
}

// OpenTab creates a stealth page with the configured viewport and
// resource blocking.
func OpenTab(ctx context.Context, mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	cfg := mgr.cfg

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	err = page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.Width,
		Height:            cfg.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: viewport: %w", err)
	}

	t := &Tab{Page: page, manager: mgr}
	if err := t.blockResources(cfg.ResourceBlocking); err != nil {
		cfg.Logger.Warn("browser: resource blocking failed", "error", err)
	}
	return t, nil
}

// Navigate loads url and waits for the load event. A load timeout is only
// logged: the archive keeps streaming after the document is usable.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	cfg := t.manager.cfg
	navCtx, cancel := context.WithTimeout(ctx, cfg.NavigateTimeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// FindAll queries the live DOM. Elements are bound to a CallTimeout
// context that stays open until the next FindAll or Close.
func (t *Tab) FindAll(ctx context.Context, selector string) ([]driver.Element, error) {
	t.release()
	qctx, cancel := context.WithTimeout(ctx, t.manager.cfg.CallTimeout)
	t.cancel = cancel

	els, err := t.Page.Context(qctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	out := make([]driver.Element, len(els))
	for i, el := range els {
		out[i] = element{el}
	}
	return out, nil
}

func (t *Tab) ScrollBy(ctx context.Context, pixels int) error {
	p := t.Page.Context(ctx).Timeout(t.manager.cfg.CallTimeout)
	defer p.CancelTimeout()
	if _, err := p.Eval(`(y) => window.scrollBy(0, y)`, pixels); err != nil {
		return fmt.Errorf("browser: scroll: %w", err)
	}
	return nil
}

func (t *Tab) Wait(ctx context.Context, d time.Duration) error {
	return driver.Sleep(ctx, d)
}

// Screenshot captures the viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context, path string) error {
	p := t.Page.Context(ctx).Timeout(t.manager.cfg.CallTimeout)
	defer p.CancelTimeout()
	img, err := p.Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("browser: screenshot dir: %w", err)
		}
	}
	return os.WriteFile(path, img, 0o644)
}

// Close closes the tab and its session: the local Chrome, or the
// incognito context on a remote one.
func (t *Tab) Close() error {
	t.release()
	var errs []error
	if t.router != nil {
		errs = append(errs, t.router.Stop())
	}
	if t.Page != nil {
		errs = append(errs, t.Page.Close())
	}
	errs = append(errs, t.manager.Close())
	return errors.Join(errs...)
}

func (t *Tab) release() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// element adapts a rod element to driver.Element.
type element struct {
	el *rod.Element
}

func (e element) Attribute(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("browser: attribute %s: %w", name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e element) Text() (string, error) {
	s, err := e.el.Text()
	if err != nil {
		return "", fmt.Errorf("browser: text: %w", err)
	}
	return s, nil
}

// Find does not wait for the selector to appear: a missing child means
// the entry was rendered without it.
func (e element) Find(selector string) (driver.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: find %q: %w", selector, err)
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("browser: %q: %w", selector, driver.ErrNoElement)
	}
	return element{els[0]}, nil
}
