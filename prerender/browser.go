package prerender

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserOptions configures headless rendering.
type BrowserOptions struct {
	Bin          string        // Chrome binary; empty lets rod download or locate one
	WaitSelector string        // CSS selector that signals the app has rendered
	Timeout      time.Duration // Per-page navigation timeout (default 30s)
}

// BrowserRenderer renders routes in headless Chrome against a running
// origin and returns the resulting DOM.
type BrowserRenderer struct {
	origin   *url.URL
	opts     BrowserOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserRenderer launches Chrome. Close must be called to stop it.
func NewBrowserRenderer(ctx context.Context, origin string, opts BrowserOptions) (*BrowserRenderer, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	l := launcher.New().Headless(true)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return &BrowserRenderer{origin: u, opts: opts, launcher: l, browser: browser}, nil
}

// Render implements Renderer.
func (b *BrowserRenderer) Render(ctx context.Context, path string) (string, error) {
	target := b.origin.ResolveReference(&url.URL{Path: "/" + strings.TrimPrefix(path, "/")})
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: target.String()})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx).Timeout(b.opts.Timeout)
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}
	if b.opts.WaitSelector != "" {
		if _, err := p.Element(b.opts.WaitSelector); err != nil {
			return "", fmt.Errorf("wait for %q: %w", b.opts.WaitSelector, err)
		}
	}
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return "<!DOCTYPE html>\n" + html, nil
}

// Close shuts the browser down.
func (b *BrowserRenderer) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}
