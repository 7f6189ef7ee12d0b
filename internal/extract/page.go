package extract

import (
	"context"
	"time"

	"reviewrag/internal/pagestate"
)

// Page is a rendered document that can be queried and navigated.
type Page interface {
	Navigate(ctx context.Context, url string) error
	StructuredState(ctx context.Context) (pagestate.Node, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	WaitText(ctx context.Context, selector string, timeout time.Duration) (string, error)
	ScrollTo(ctx context.Context, fraction float64) error
}

// Session is a Page that owns a browser and must be closed.
type Session interface {
	Page
	Close() error
}

// Renderer opens a session already navigated to url.
type Renderer interface {
	Open(ctx context.Context, url string) (Session, error)
}

type RendererFunc func(ctx context.Context, url string) (Session, error)

func (f RendererFunc) Open(ctx context.Context, url string) (Session, error) {
	return f(ctx, url)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
