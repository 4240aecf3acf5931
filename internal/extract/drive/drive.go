// Package drive downloads cloud-hosted deck files through the public export
// endpoint and hands them to the local file parser.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sourcedesk/dealflow/internal/extract"
	"github.com/sourcedesk/dealflow/internal/extract/localfile"
	"github.com/sourcedesk/dealflow/internal/source"
)

// ErrNoFileID means the link did not carry a recognizable file id.
var ErrNoFileID = errors.New("no file id in cloud link")

const downloadTimeout = 30 * time.Second

// defaultExportBase is the public download endpoint; tests override it.
const defaultExportBase = "https://drive.google.com/uc"

type Fetcher struct {
	parser     *localfile.Parser
	httpClient *http.Client
	logger     *log.Logger
	exportBase string
}

func NewFetcher(parser *localfile.Parser, httpClient *http.Client, logger *log.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: downloadTimeout}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{parser: parser, httpClient: httpClient, logger: logger, exportBase: defaultExportBase}
}

// WithExportBase overrides the download endpoint. Useful for tests.
func (f *Fetcher) WithExportBase(base string) *Fetcher {
	f.exportBase = base
	return f
}

// Fetch downloads the file behind a cloud link and parses it. Always returns
// a Document; the temp file is removed on every path.
func (f *Fetcher) Fetch(ctx context.Context, link string) extract.Document {
	id := source.CloudFileID(link)
	if id == "" {
		return extract.Failed(link, ErrNoFileID)
	}

	exportURL := fmt.Sprintf("%s?export=download&id=%s", f.exportBase, id)
	f.logger.Printf("drive: downloading file id=%s", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return extract.Failed(link, err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return extract.Failed(link, fmt.Errorf("download cloud file: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return extract.Failed(link, fmt.Errorf("download cloud file: status %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp("", "cloud-deck-*.pdf")
	if err != nil {
		return extract.Failed(link, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return extract.Failed(link, fmt.Errorf("save cloud file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return extract.Failed(link, err)
	}

	doc := f.parser.Parse(ctx, tmp.Name(), "cloud-deck.pdf")
	doc.SourceURL = link
	return doc
}
