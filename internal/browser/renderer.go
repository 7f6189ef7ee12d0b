// Package browser drives a headless Chromium through rod with a reduced
// automation fingerprint.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"

	"reviewrag/internal/pagestate"
)

// Renderer opens one isolated browser session per page.
type Renderer struct {
	opts    Options
	limiter *rate.Limiter
}

func NewRenderer(opts Options) *Renderer {
	opts = opts.withDefaults()
	r := &Renderer{opts: opts}
	if opts.RatePerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RatePerMinute/60), 1)
	}
	return r
}

func (r *Renderer) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(r.opts.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1920,1080").
		Set("lang", strings.SplitN(r.opts.Language, ",", 2)[0]).
		Delete("enable-automation")
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}
	return l
}

// Open launches a browser, navigates to url and returns the session. The
// caller must Close it. A failed navigation releases the browser and returns
// a *PageLoadError.
func (r *Renderer) Open(ctx context.Context, url string) (*Page, error) {
	l := r.newLauncher()
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	p := &Page{renderer: r, launcher: l, browser: b}

	page, err := stealth.Page(b)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	p.page = page

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      r.opts.UserAgent,
		AcceptLanguage: r.opts.Language,
		Platform:       defaultPlatform,
	}); err != nil {
		p.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	if err := p.Navigate(ctx, url); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (r *Renderer) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Page is a live browser session bound to one tab.
type Page struct {
	renderer *Renderer
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.renderer.wait(ctx); err != nil {
		return &PageLoadError{URL: url, Err: err}
	}

	page := p.page.Context(ctx).Timeout(p.renderer.opts.Timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return &PageLoadError{URL: url, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		return &PageLoadError{URL: url, Err: err}
	}
	return nil
}

// StructuredState returns the page's embedded application state. A page
// without one yields a null node.
func (p *Page) StructuredState(ctx context.Context) (pagestate.Node, error) {
	page := p.page.Context(ctx).Timeout(p.renderer.opts.Timeout)
	defer page.CancelTimeout()

	res, err := page.Eval(stateScript)
	if err != nil {
		return pagestate.Node{}, fmt.Errorf("read structured state: %w", err)
	}
	return pagestate.Parse([]byte(res.Value.Str()))
}

// Texts returns the trimmed text of every element currently matching
// selector. It does not wait for elements to appear.
func (p *Page) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			slog.DebugContext(ctx, "skipping unreadable element", "selector", selector, "error", err)
			continue
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out, nil
}

// WaitText waits up to timeout for the first element matching selector.
func (p *Page) WaitText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	page := p.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	el, err := page.Element(selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ScrollTo scrolls to the given fraction of the document height.
func (p *Page) ScrollTo(ctx context.Context, fraction float64) error {
	_, err := p.page.Context(ctx).Eval(scrollScript, fraction)
	return err
}

// Close releases the tab, the browser and its process. Safe to call more
// than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if p.browser != nil {
			p.closeErr = p.browser.Close()
		}
		if p.launcher != nil {
			p.launcher.Cleanup()
		}
	})
	return p.closeErr
}
