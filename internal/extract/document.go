// Package extract defines the one shape every acquisition path produces and
// the DOM text filters they share. An acquisition never returns nothing: on
// total failure the document carries an error marker so downstream stages
// keep a uniform input.
package extract

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Method records how a document's text was obtained.
type Method string

const (
	MethodDOMText    Method = "dom-text"
	MethodOCR        Method = "ocr"
	MethodParserText Method = "parser-text"
	MethodMessage    Method = "message-text"
)

const (
	// MinBlockLen filters UI chrome: block elements with this many characters
	// or fewer are noise, not content.
	MinBlockLen = 10
	// MinDocumentLen is the threshold below which an extraction counts as
	// empty and the OCR fallback kicks in.
	MinDocumentLen = 100
)

// ErrContentEmpty marks an extraction that produced no usable text.
var ErrContentEmpty = errors.New("no extractable text content")

// Document is the uniform acquisition result.
type Document struct {
	RawText   string
	Title     string
	SourceURL string
	Method    Method

	// Err carries the acquisition failure when RawText could not be
	// produced. The document itself is still valid input downstream.
	Err error
}

// Failed builds the explicit error-marker document.
func Failed(sourceURL string, err error) Document {
	return Document{
		RawText:   "",
		Title:     "",
		SourceURL: sourceURL,
		Method:    MethodDOMText,
		Err:       err,
	}
}

// Empty reports whether the document text falls below the usable threshold.
func (d Document) Empty() bool {
	return len(strings.TrimSpace(d.RawText)) < MinDocumentLen
}

// blockSelector covers the block-level elements worth reading. div is
// included because slide viewers render everything in divs.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, div"

// BlockText collects the text of meaningful block elements from parsed HTML,
// joined with blank lines. Blocks at or under MinBlockLen are dropped.
func BlockText(doc *goquery.Document) string {
	return blockTextIn(doc.Selection)
}

// BlockTextScoped prefers main/article-scoped content and falls back to the
// whole document when no such landmark exists.
func BlockTextScoped(doc *goquery.Document) string {
	for _, scope := range []string{"main", "article"} {
		if sel := doc.Find(scope); sel.Length() > 0 {
			if text := blockTextIn(sel); text != "" {
				return text
			}
		}
	}
	return blockTextIn(doc.Selection)
}

// BlockTextOf applies the block filter within an arbitrary selection, for
// callers that already located the content container.
func BlockTextOf(sel *goquery.Selection) string {
	return blockTextIn(sel)
}

func blockTextIn(sel *goquery.Selection) string {
	var blocks []string
	seen := map[string]struct{}{}
	sel.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) <= MinBlockLen {
			return
		}
		// Nested divs repeat their children's text; keep first occurrence.
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		blocks = append(blocks, text)
	})
	return strings.Join(blocks, "\n\n")
}

// ImageRefs returns every img src in the parsed HTML, in document order.
func ImageRefs(doc *goquery.Document) []string {
	var refs []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			refs = append(refs, strings.TrimSpace(src))
		}
	})
	return refs
}

// ParseHTML is a small convenience over goquery for callers holding a string.
func ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
