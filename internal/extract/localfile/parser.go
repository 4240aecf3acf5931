// Package localfile extracts text from page-oriented documents delivered as
// attachments: PDF via the text layer with a rasterize-and-OCR fallback, and
// PPTX via the slide XML.
package localfile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcedesk/dealflow/internal/extract"
	"github.com/sourcedesk/dealflow/internal/extract/ocr"
)

// minFileSize rejects truncated downloads: anything under 1KiB is not a real
// deck.
const minFileSize = 1024

var (
	ErrFileTooSmall   = errors.New("file too small, likely a failed download")
	ErrUnsupportedExt = errors.New("unsupported document format")
)

type Config struct {
	// RasterBin converts PDF pages to images for the OCR path. Defaults to
	// "pdftoppm".
	RasterBin  string
	ScratchDir string
	Logger     *log.Logger
}

type Parser struct {
	ocr        *ocr.Engine
	rasterBin  string
	scratchDir string
	logger     *log.Logger
}

func NewParser(ocrEngine *ocr.Engine, cfg Config) *Parser {
	bin := cfg.RasterBin
	if bin == "" {
		bin = "pdftoppm"
	}
	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Parser{ocr: ocrEngine, rasterBin: bin, scratchDir: scratch, logger: logger}
}

// Parse extracts text from one local document. Always returns a Document;
// failures are carried as the document's error marker.
func (p *Parser) Parse(ctx context.Context, path, name string) extract.Document {
	title := name
	if title == "" {
		title = filepath.Base(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return extract.Failed("", fmt.Errorf("stat %s: %w", name, err))
	}
	if info.Size() < minFileSize {
		return extract.Failed("", fmt.Errorf("%s: %w", name, ErrFileTooSmall))
	}

	var text string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err = pdfText(path)
		if err != nil {
			p.logger.Printf("localfile: pdf text layer failed for %s: %v", name, err)
		}
		doc := extract.Document{RawText: text, Title: title, Method: extract.MethodParserText}
		if !doc.Empty() {
			return doc
		}
		return p.ocrPDF(ctx, path, title)

	case ".pptx":
		text, err = pptxText(path)
		if err != nil {
			return extract.Failed("", fmt.Errorf("open pptx %s: %w", name, err))
		}
		doc := extract.Document{RawText: text, Title: title, Method: extract.MethodParserText}
		if doc.Empty() {
			doc.Err = extract.ErrContentEmpty
		}
		return doc

	case ".ppt":
		// Legacy binary format; no parser and no rasterizer for it.
		return extract.Failed("", fmt.Errorf("%s: %w", name, ErrUnsupportedExt))

	default:
		return extract.Failed("", fmt.Errorf("%s: %w", name, ErrUnsupportedExt))
	}
}

// ocrPDF rasterizes each page and runs the OCR engine over the images.
func (p *Parser) ocrPDF(ctx context.Context, path, title string) extract.Document {
	p.logger.Printf("localfile: %s has no text layer, rasterizing for ocr", title)

	pages, cleanup, err := p.rasterize(ctx, path)
	defer cleanup()
	if err != nil {
		return extract.Failed("", fmt.Errorf("rasterize %s: %w", title, err))
	}

	text := p.ocr.ImagesToText(ctx, pages)
	doc := extract.Document{RawText: text, Title: title, Method: extract.MethodOCR}
	if strings.TrimSpace(text) == "" {
		doc.Err = extract.ErrContentEmpty
	}
	return doc
}

// rasterize renders PDF pages to PNGs in the scratch dir and returns their
// paths in page order. The cleanup func removes the rendered files.
func (p *Parser) rasterize(ctx context.Context, path string) ([]string, func(), error) {
	noop := func() {}
	if _, err := exec.LookPath(p.rasterBin); err != nil {
		return nil, noop, fmt.Errorf("rasterizer %q not in runtime", p.rasterBin)
	}

	dir, err := os.MkdirTemp(p.scratchDir, "deck-pages-")
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() {
		_ = os.RemoveAll(dir)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, p.rasterBin, "-png", "-r", "200", path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, cleanup, fmt.Errorf("%s: %s", p.rasterBin, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, cleanup, err
	}
	sort.Strings(pages)
	return pages, cleanup, nil
}
