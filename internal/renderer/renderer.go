package renderer

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Renderer opens rendering sessions against a headless browser service.
// Exactly one logical session is held per scrape and must be closed on
// every exit path.
type Renderer interface {
	Open(ctx context.Context, headless bool) (Session, error)
}

// Session is a single page-rendering session. Interactive steps (TryClick,
// TryType, TryPress) are best-effort: a failing selector must not abort the
// render, since sources drift their markup over time.
type Session interface {
	// Navigate points the session at a URL. Content renders it.
	Navigate(ctx context.Context, url string) error

	// Wait inserts a settle delay into the render.
	Wait(d time.Duration) error

	// ScrollToBottom scrolls the page once to trigger lazy-loaded content.
	ScrollToBottom(ctx context.Context) error

	// TryClick clicks the first present selector from an ordered candidate
	// list.
	TryClick(ctx context.Context, selectors ...string) error

	// TryType focuses the first present selector from an ordered candidate
	// list and types text into it.
	TryType(ctx context.Context, text string, selectors ...string) error

	// TryPress sends a keyboard key to the focused element.
	TryPress(ctx context.Context, key string) error

	// Content renders the accumulated steps and returns the resulting
	// document. The context bounds the whole render.
	Content(ctx context.Context) (*goquery.Document, error)

	// Close releases the session.
	Close() error
}
