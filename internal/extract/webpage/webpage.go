// Package webpage extracts deck content from ordinary web pages: founders
// routinely publish their pitch as a hosted slide page or a plain company
// site instead of a gated document. The extractor decides which of the two
// it is looking at and reads it accordingly.
package webpage

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/sourcedesk/dealflow/internal/extract"
	"github.com/sourcedesk/dealflow/internal/extract/browser"
	"github.com/sourcedesk/dealflow/internal/extract/ocr"
	"github.com/sourcedesk/dealflow/internal/source"
)

const navigateTimeout = 30 * time.Second

// deckKeywords flag URLs and titles that advertise slide content.
var deckKeywords = []string{"pitch", "deck", "presentation", "slides", "investor", "fundraising"}

type Config struct {
	Headless bool
	Logger   *log.Logger
}

type Extractor struct {
	headless bool
	logger   *log.Logger
	ocr      *ocr.Engine
}

func New(engine *ocr.Engine, cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{headless: cfg.Headless, logger: logger, ocr: engine}
}

// Fetch renders the page in a browser and extracts it. Always returns a
// Document; the browser is released on all paths.
func (e *Extractor) Fetch(ctx context.Context, link string) extract.Document {
	sess, err := browser.NewSession(ctx, e.headless)
	if err != nil {
		return extract.Failed(link, fmt.Errorf("launch browser: %w", err))
	}
	defer sess.Close()

	page, cancelPage := sess.NewPage()
	defer cancelPage()

	nctx, cancel := context.WithTimeout(page, navigateTimeout)
	defer cancel()

	var html, title, finalURL string
	err = chromedp.Run(nctx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return extract.Failed(link, fmt.Errorf("load page: %w", err))
	}
	if finalURL == "" {
		finalURL = link
	}

	doc := e.Extract(ctx, html, finalURL, title)
	doc.SourceURL = link
	return doc
}

// Extract reads already-rendered HTML. Split from Fetch so the decision and
// extraction logic is testable without a browser.
func (e *Extractor) Extract(ctx context.Context, html, pageURL, title string) extract.Document {
	gdoc, err := extract.ParseHTML(html)
	if err != nil {
		return extract.Failed(pageURL, err)
	}
	if title == "" {
		title = strings.TrimSpace(gdoc.Find("title").First().Text())
	}

	var text string
	if LooksLikeDeck(pageURL, title, gdoc) {
		e.logger.Printf("webpage: treating page as slide deck url=%s", pageURL)
		text = e.deckText(ctx, gdoc, pageURL)
	} else {
		text = articleText(gdoc)
	}

	method := extract.MethodDOMText
	if strings.TrimSpace(text) == "" {
		refs := resolveRefs(pageURL, extract.ImageRefs(gdoc))
		if len(refs) > 0 {
			e.logger.Printf("webpage: no text layer, running ocr over %d images", len(refs))
			text = e.ocr.ImagesToText(ctx, refs)
			method = extract.MethodOCR
		}
	}

	doc := extract.Document{
		RawText:   text,
		Title:     title,
		SourceURL: pageURL,
		Method:    method,
	}
	if doc.Empty() && strings.TrimSpace(text) == "" {
		doc.Err = extract.ErrContentEmpty
	}
	return doc
}

// LooksLikeDeck classifies a page as hosted slide content. Matchers run in
// order; the first decisive one wins.
func LooksLikeDeck(pageURL, title string, gdoc *goquery.Document) bool {
	// Social profiles are image heavy and keyword laden; never decks.
	if source.IsSocialHost(pageURL) {
		return false
	}
	if containsKeyword(strings.ToLower(pageURL), deckKeywords) {
		return true
	}
	if containsKeyword(strings.ToLower(title), deckKeywords) {
		return true
	}
	if hasSlideStructure(gdoc) {
		return true
	}
	return imageHeavy(gdoc)
}

func containsKeyword(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// slideContainerSelectors locate slide markup across the common hosting
// widgets, most specific first.
var slideContainerSelectors = []string{
	`[class*="slide"]`,
	`[data-slide]`,
	`[role="tabpanel"]`,
}

func hasSlideStructure(gdoc *goquery.Document) bool {
	containers := 0
	for _, sel := range slideContainerSelectors {
		containers += gdoc.Find(sel).Length()
	}
	if containers >= 3 {
		return true
	}
	controls := gdoc.Find(`[class*="next"], [class*="prev"], [class*="counter"], [class*="pagination"]`).Length()
	return containers >= 1 && controls >= 1
}

// imageHeavy flags pages that are mostly pictures with little text, the
// shape of a deck exported as images. Feed-like markup vetoes the match.
func imageHeavy(gdoc *goquery.Document) bool {
	if gdoc.Find(`[class*="tweet"], [class*="feed"], [class*="timeline"]`).Length() > 0 {
		return false
	}
	imgs := gdoc.Find("img").Length()
	if imgs < 5 {
		return false
	}
	textLen := len(strings.TrimSpace(gdoc.Find("body").Text()))
	return textLen/imgs < 200
}

// deckText extracts per-slide text, falling back to OCR for slides rendered
// as images.
func (e *Extractor) deckText(ctx context.Context, gdoc *goquery.Document, pageURL string) string {
	slides := findSlides(gdoc)
	if len(slides) == 0 {
		return extract.BlockText(gdoc)
	}

	var blocks []string
	for i, slide := range slides {
		text := extract.BlockTextOf(slide)
		if strings.TrimSpace(text) == "" {
			refs := resolveRefs(pageURL, slideImageRefs(slide))
			if len(refs) > 0 {
				text = e.ocr.ImagesToText(ctx, refs)
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Slide %d]\n%s", i+1, strings.TrimSpace(text)))
	}
	return strings.Join(blocks, "\n\n")
}

// findSlides returns per-slide selections. When no slide markup exists the
// long top-level divs stand in for slides.
func findSlides(gdoc *goquery.Document) []*goquery.Selection {
	for _, sel := range slideContainerSelectors {
		found := gdoc.Find(sel)
		if found.Length() < 2 {
			continue
		}
		var slides []*goquery.Selection
		found.Each(func(_ int, s *goquery.Selection) {
			slides = append(slides, s)
		})
		return slides
	}

	var slides []*goquery.Selection
	gdoc.Find("body > div").Each(func(_ int, s *goquery.Selection) {
		if len(strings.TrimSpace(s.Text())) > extract.MinDocumentLen {
			slides = append(slides, s)
		}
	})
	return slides
}

func slideImageRefs(slide *goquery.Selection) []string {
	var refs []string
	slide.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			refs = append(refs, strings.TrimSpace(src))
		}
	})
	return refs
}

// articleText reads an ordinary company page: title, description, the main
// content and the footer, which usually carries the legal entity name.
func articleText(gdoc *goquery.Document) string {
	var parts []string

	if desc, ok := gdoc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(desc) != "" {
		parts = append(parts, strings.TrimSpace(desc))
	}
	if site, ok := gdoc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && strings.TrimSpace(site) != "" {
		parts = append(parts, "Site: "+strings.TrimSpace(site))
	}
	if body := extract.BlockTextScoped(gdoc); body != "" {
		parts = append(parts, body)
	}
	if footer := strings.TrimSpace(gdoc.Find("footer").Text()); footer != "" && len(footer) > extract.MinBlockLen {
		parts = append(parts, footer)
	}
	return strings.Join(parts, "\n\n")
}

func resolveRefs(base string, refs []string) []string {
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
