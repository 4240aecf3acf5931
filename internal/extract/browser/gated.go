package browser

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/sourcedesk/dealflow/internal/extract"
	"github.com/sourcedesk/dealflow/internal/extract/ocr"
)

const (
	navigateTimeout = 30 * time.Second
	settleWait      = 2 * time.Second
	scrollWait      = 2 * time.Second
	selectorWait    = 5 * time.Second

	// maxScrollRounds bounds the height-stabilization loop on viewers that
	// grow the page forever.
	maxScrollRounds = 40
	// maxNextClicks bounds advancing through paginated viewers.
	maxNextClicks = 10
)

// contentSelectors is the ordered chain of containers the document viewer is
// known to render slides into. First match wins.
var contentSelectors = []string{".document-content", ".page", ".viewer-content", ".ds-viewer-container"}

type GatedConfig struct {
	// Email is typed into the viewer's access gate.
	Email string
	// ScratchDir receives per-attempt debug screenshots and HTML snapshots.
	// Empty disables snapshots.
	ScratchDir string
	Headless   bool
	Logger     *log.Logger
}

// GatedFetcher acquires documents published behind an email/passcode gate by
// driving a real browser through the viewer.
type GatedFetcher struct {
	email      string
	scratchDir string
	headless   bool
	logger     *log.Logger
	ocr        *ocr.Engine
}

func NewGatedFetcher(engine *ocr.Engine, cfg GatedConfig) *GatedFetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &GatedFetcher{
		email:      cfg.Email,
		scratchDir: cfg.ScratchDir,
		headless:   cfg.Headless,
		logger:     logger,
		ocr:        engine,
	}
}

// Fetch runs the full acquisition state machine against one gated link:
// navigate, pass the credential gate, force all slides to render, locate the
// viewer frame and pull its text, with OCR over slide images as the fallback.
// It always returns a Document and always releases the browser.
func (g *GatedFetcher) Fetch(ctx context.Context, link, password string) extract.Document {
	sess, err := NewSession(ctx, g.headless)
	if err != nil {
		return extract.Failed(link, fmt.Errorf("launch browser: %w", err))
	}
	defer sess.Close()

	page, cancelPage := sess.NewPage()
	defer cancelPage()

	if err := g.navigate(page, link); err != nil {
		g.snapshot(page, "navigate-failed")
		return extract.Failed(link, err)
	}
	if err := g.passGate(page, password); err != nil {
		g.snapshot(page, "gate-failed")
		return extract.Failed(link, err)
	}
	g.scrollPaginate(page)
	g.snapshot(page, "loaded")

	doc := g.extractContent(ctx, sess, page, link)
	return doc
}

func (g *GatedFetcher) navigate(page context.Context, link string) error {
	nctx, cancel := context.WithTimeout(page, navigateTimeout)
	defer cancel()

	resp, err := chromedp.RunResponse(nctx, chromedp.Navigate(link))
	if err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if resp != nil && resp.Status >= 400 {
		return fmt.Errorf("navigate: status %d", resp.Status)
	}
	return chromedp.Run(nctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleWait),
	)
}

// passGate fills the access form when one is present. A viewer without a gate
// is the common case and passes straight through.
func (g *GatedFetcher) passGate(page context.Context, password string) error {
	var hasEmail bool
	if err := chromedp.Run(page, chromedp.Evaluate(
		`document.querySelector('input[type="email"]') !== null`, &hasEmail,
	)); err != nil {
		return fmt.Errorf("probe gate: %w", err)
	}
	if !hasEmail {
		return nil
	}

	g.logger.Printf("browser: credential gate detected, submitting email")
	if err := chromedp.Run(page, chromedp.SendKeys(`input[type="email"]`, g.email, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}

	var hasPassword bool
	if err := chromedp.Run(page, chromedp.Evaluate(
		`document.querySelector('input[type="password"]') !== null`, &hasPassword,
	)); err != nil {
		return fmt.Errorf("probe passcode field: %w", err)
	}
	if hasPassword {
		if password == "" {
			return fmt.Errorf("document requires a passcode and none was found in the message")
		}
		if err := chromedp.Run(page, chromedp.SendKeys(`input[type="password"]`, password, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("fill passcode: %w", err)
		}
	}

	var clicked bool
	if err := chromedp.Run(page, chromedp.Evaluate(submitButtonJS, &clicked)); err != nil {
		return fmt.Errorf("submit gate: %w", err)
	}
	if !clicked {
		return fmt.Errorf("gate form has no submit control")
	}
	return chromedp.Run(page,
		chromedp.Sleep(2*settleWait),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

const submitButtonJS = `(() => {
	const els = Array.from(document.querySelectorAll('button, input[type="submit"]'));
	const b = els.find(e => /continue|submit|view/i.test(e.innerText || e.value || ''));
	if (!b) return false;
	b.click();
	return true;
})()`

const nextButtonJS = `(() => {
	const b = document.querySelector(
		'button[aria-label*="next" i], button[title*="next" i], [class*="nextPage"], [class*="next-page"]');
	if (!b || b.disabled) return false;
	b.click();
	return true;
})()`

// scrollPaginate forces lazily rendered slides into the DOM: scroll to the
// bottom until the document height stops growing, then advance through any
// next-style pager. Best effort, never fails the acquisition.
func (g *GatedFetcher) scrollPaginate(page context.Context) {
	lastHeight := -1
	for i := 0; i < maxScrollRounds; i++ {
		var height int
		if err := chromedp.Run(page, chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
			g.logger.Printf("browser: scroll probe failed: %v", err)
			return
		}
		if height == lastHeight {
			break
		}
		lastHeight = height
		if err := chromedp.Run(page,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(scrollWait),
		); err != nil {
			g.logger.Printf("browser: scroll failed: %v", err)
			return
		}
	}

	for i := 0; i < maxNextClicks; i++ {
		var clicked bool
		if err := chromedp.Run(page, chromedp.Evaluate(nextButtonJS, &clicked)); err != nil || !clicked {
			return
		}
		if err := chromedp.Run(page, chromedp.Sleep(time.Second)); err != nil {
			return
		}
	}
}

// extractContent locates the viewer frame among the browser targets and pulls
// its text, falling back to OCR over slide images and finally to the main
// page itself.
func (g *GatedFetcher) extractContent(ctx context.Context, sess *Session, page context.Context, link string) extract.Document {
	var pageTitle string
	if err := chromedp.Run(page, chromedp.Title(&pageTitle)); err != nil {
		pageTitle = ""
	}

	frames := g.viewerFrames(sess, page)
	defer releaseFrames(frames)
	for _, frame := range frames {
		html, err := g.frameHTML(frame.ctx)
		if err != nil {
			g.logger.Printf("browser: frame %s unreadable: %v", frame.url, err)
			continue
		}
		gdoc, err := extract.ParseHTML(html)
		if err != nil {
			continue
		}
		if doc, ok := g.documentFrom(ctx, gdoc, frame.url, link, pageTitle); ok {
			return doc
		}
	}

	// No viewer frame yielded content; read the top-level page directly.
	var html string
	if err := chromedp.Run(page, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return extract.Failed(link, fmt.Errorf("read page: %w", err))
	}
	gdoc, err := extract.ParseHTML(html)
	if err != nil {
		return extract.Failed(link, err)
	}
	if doc, ok := g.documentFrom(ctx, gdoc, link, link, pageTitle); ok {
		return doc
	}
	return extract.Failed(link, extract.ErrContentEmpty)
}

type frameRef struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

// viewerFrames lists the targets whose URL looks like viewer content. The
// slide deck often renders inside an out-of-process iframe, which shows up
// as its own target.
func (g *GatedFetcher) viewerFrames(sess *Session, page context.Context) []frameRef {
	infos, err := chromedp.Targets(sess.Context())
	if err != nil {
		g.logger.Printf("browser: target listing failed: %v", err)
		return nil
	}
	var frames []frameRef
	for _, t := range infos {
		if t.Type != "page" && t.Type != "iframe" {
			continue
		}
		if !isViewerURL(t.URL) {
			continue
		}
		fctx, fcancel := chromedp.NewContext(page, chromedp.WithTargetID(t.TargetID))
		frames = append(frames, frameRef{ctx: fctx, cancel: fcancel, url: t.URL})
	}
	return frames
}

// releaseFrames cancels every frame context, including the ones a successful
// mid-loop extraction never reached.
func releaseFrames(frames []frameRef) {
	for _, f := range frames {
		f.cancel()
	}
}

// frameHTML waits for one of the known content containers inside the frame
// and returns the frame's full HTML. The frame context is released by the
// caller's releaseFrames.
func (g *GatedFetcher) frameHTML(frame context.Context) (string, error) {
	found := false
	for _, sel := range contentSelectors {
		wctx, wcancel := context.WithTimeout(frame, selectorWait)
		err := chromedp.Run(wctx, chromedp.WaitReady(sel, chromedp.ByQuery))
		wcancel()
		if err == nil {
			found = true
			break
		}
	}
	if !found {
		// The frame may still hold readable markup without a known container.
		g.logger.Printf("browser: no content container matched, reading frame anyway")
	}

	var html string
	if err := chromedp.Run(frame, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// documentFrom turns parsed frame HTML into a Document: container text first,
// OCR over the frame's images when the text layer is too thin.
func (g *GatedFetcher) documentFrom(ctx context.Context, gdoc *goquery.Document, frameURL, link, title string) (extract.Document, bool) {
	text := containerText(gdoc)
	if len(strings.TrimSpace(text)) >= extract.MinDocumentLen {
		return extract.Document{
			RawText:   text,
			Title:     title,
			SourceURL: link,
			Method:    extract.MethodDOMText,
		}, true
	}

	refs := absoluteRefs(frameURL, extract.ImageRefs(gdoc))
	if len(refs) == 0 {
		return extract.Document{}, false
	}
	g.logger.Printf("browser: text layer thin, running ocr over %d images", len(refs))
	ocrText := g.ocr.ImagesToText(ctx, refs)
	if strings.TrimSpace(ocrText) == "" {
		return extract.Document{}, false
	}
	return extract.Document{
		RawText:   ocrText,
		Title:     title,
		SourceURL: link,
		Method:    extract.MethodOCR,
	}, true
}

// containerText walks the selector chain and returns the first container's
// filtered text. No container means the whole document is scanned.
func containerText(gdoc *goquery.Document) string {
	for _, sel := range contentSelectors {
		s := gdoc.Find(sel)
		if s.Length() == 0 {
			continue
		}
		if text := extract.BlockTextOf(s); text != "" {
			return text
		}
	}
	return extract.BlockText(gdoc)
}

// isViewerURL matches targets rendering document content rather than the
// product's marketing pages.
func isViewerURL(raw string) bool {
	if strings.Contains(raw, "marketing.docsend") {
		return false
	}
	return strings.Contains(raw, "docsend.com/view")
}

// absoluteRefs resolves relative image references against the frame URL.
// Inline data URIs pass through untouched.
func absoluteRefs(base string, refs []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return refs
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if strings.HasPrefix(ref, "data:") {
			out = append(out, ref)
			continue
		}
		u, err := url.Parse(ref)
		if err != nil {
			continue
		}
		out = append(out, baseURL.ResolveReference(u).String())
	}
	return out
}

// snapshot drops a screenshot and HTML dump into the scratch directory for
// postmortems of flaky viewers. Failures here never affect the acquisition.
func (g *GatedFetcher) snapshot(page context.Context, label string) {
	if g.scratchDir == "" {
		return
	}
	var png []byte
	var html string
	if err := chromedp.Run(page,
		chromedp.CaptureScreenshot(&png),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		g.logger.Printf("browser: snapshot %s failed: %v", label, err)
		return
	}
	stamp := time.Now().UTC().Format("20060102-150405")
	if err := os.WriteFile(filepath.Join(g.scratchDir, fmt.Sprintf("gated-%s-%s.png", stamp, label)), png, 0o644); err != nil {
		g.logger.Printf("browser: write screenshot: %v", err)
	}
	if err := os.WriteFile(filepath.Join(g.scratchDir, fmt.Sprintf("gated-%s-%s.html", stamp, label)), []byte(html), 0o644); err != nil {
		g.logger.Printf("browser: write html snapshot: %v", err)
	}
}
