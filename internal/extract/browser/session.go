// Package browser drives a headless Chrome through the gated-document
// acquisition state machine. One Session owns one browser process; every
// acquisition borrows a fresh tab and the session is released on all exit
// paths.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Session is a process-scoped browser resource. It is exclusively owned by
// one acquisition or lookup at a time and must be closed when that operation
// finishes, error paths included.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewSession launches a browser and verifies it is usable.
func NewSession(ctx context.Context, headless bool) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser; failing here beats failing
	// mid-acquisition.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	return &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// NewPage opens a tab in the session's browsing context. The returned cancel
// closes the tab only.
func (s *Session) NewPage() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(s.browserCtx)
}

// Context exposes the browser context for target enumeration.
func (s *Session) Context() context.Context {
	return s.browserCtx
}

// Close tears down the tab tree and the browser process.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}
