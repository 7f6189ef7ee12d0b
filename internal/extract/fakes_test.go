package extract_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"reviewrag/internal/extract"
	"reviewrag/internal/pagestate"
)

// fakePage serves structured state and element texts keyed by the URL it
// was last navigated to.
type fakePage struct {
	mu sync.Mutex

	current   string
	states    map[string]string
	stateErr  map[string]error
	texts     map[string]map[string][]string
	waitTexts map[string]string
	navErr    map[string]error
	scrollErr error

	navigations []string
	scrolls     []float64
	closed      int
}

func newFakePage(url string) *fakePage {
	return &fakePage{
		current:   url,
		states:    map[string]string{},
		stateErr:  map[string]error{},
		texts:     map[string]map[string][]string{},
		waitTexts: map[string]string{},
		navErr:    map[string]error{},
	}
}

func (p *fakePage) setTexts(url, selector string, texts ...string) {
	if p.texts[url] == nil {
		p.texts[url] = map[string][]string{}
	}
	p.texts[url][selector] = texts
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, url)
	if err := p.navErr[url]; err != nil {
		return err
	}
	p.current = url
	return nil
}

func (p *fakePage) StructuredState(ctx context.Context) (pagestate.Node, error) {
	if err := p.stateErr[p.current]; err != nil {
		return pagestate.Node{}, err
	}
	return pagestate.Parse([]byte(p.states[p.current]))
}

func (p *fakePage) Texts(ctx context.Context, selector string) ([]string, error) {
	return p.texts[p.current][selector], nil
}

func (p *fakePage) WaitText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if t, ok := p.waitTexts[p.current]; ok {
		return t, nil
	}
	return "", errors.New("timed out waiting for " + selector)
}

func (p *fakePage) ScrollTo(ctx context.Context, fraction float64) error {
	p.scrolls = append(p.scrolls, fraction)
	return p.scrollErr
}

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

func rendererFor(p *fakePage, openErr error) extract.Renderer {
	return extract.RendererFunc(func(ctx context.Context, url string) (extract.Session, error) {
		if openErr != nil {
			return nil, openErr
		}
		p.current = url
		return p, nil
	})
}

func fastOptions(max int) extract.Options {
	return extract.Options{Timeout: time.Millisecond, MaxReviews: max}
}
