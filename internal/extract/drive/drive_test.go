package drive_test

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sourcedesk/dealflow/internal/extract/drive"
	"github.com/sourcedesk/dealflow/internal/extract/localfile"
	"github.com/sourcedesk/dealflow/internal/extract/ocr"
)

func testFetcher(t *testing.T, base string) *drive.Fetcher {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	engine := ocr.New(ocr.Config{Binary: "definitely-not-a-real-binary", ScratchDir: t.TempDir(), Logger: quiet})
	parser := localfile.NewParser(engine, localfile.Config{
		RasterBin:  "definitely-not-a-real-binary",
		ScratchDir: t.TempDir(),
		Logger:     quiet,
	})
	return drive.NewFetcher(parser, nil, quiet).WithExportBase(base)
}

func TestFetch_NoFileID(t *testing.T) {
	t.Parallel()

	doc := testFetcher(t, "http://unused.invalid").Fetch(context.Background(), "https://drive.google.com/about")
	if doc.Err == nil {
		t.Fatalf("expected error for link without file id, got %#v", doc)
	}
	if doc.SourceURL != "https://drive.google.com/about" {
		t.Fatalf("source url lost: %#v", doc)
	}
}

func TestFetch_DownloadsByID(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		// Not a parsable PDF; the parser degrades and the fetcher must
		// still return a marked document rather than an error.
		_, _ = w.Write([]byte(strings.Repeat("binary-ish ", 200)))
	}))
	defer srv.Close()

	doc := testFetcher(t, srv.URL).Fetch(context.Background(), "https://drive.google.com/file/d/1AbC-xyz/view")
	if !strings.Contains(gotQuery, "id=1AbC-xyz") {
		t.Fatalf("file id not forwarded: %q", gotQuery)
	}
	if doc.Err == nil {
		t.Fatalf("unparsable download should carry an error marker, got %#v", doc)
	}
}

func TestFetch_HTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	doc := testFetcher(t, srv.URL).Fetch(context.Background(), "https://drive.google.com/file/d/1A/view")
	if doc.Err == nil || !strings.Contains(doc.Err.Error(), "404") {
		t.Fatalf("expected 404 error marker, got %#v", doc)
	}
}
