package ocr_test

import (
	"context"
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sourcedesk/dealflow/internal/extract/ocr"
)

func quietEngine(t *testing.T, bin string) *ocr.Engine {
	t.Helper()
	return ocr.New(ocr.Config{
		Binary:     bin,
		ScratchDir: t.TempDir(),
		Logger:     log.New(io.Discard, "", 0),
	})
}

func TestImagesToText_ZeroImages(t *testing.T) {
	t.Parallel()

	e := quietEngine(t, "definitely-not-a-real-binary")
	if got := e.ImagesToText(context.Background(), nil); got != "" {
		t.Fatalf("expected empty string for zero images, got %q", got)
	}
}

func TestImagesToText_UnavailableEngineEmitsPlaceholders(t *testing.T) {
	t.Parallel()

	e := quietEngine(t, "definitely-not-a-real-binary")
	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake png bytes"))

	got := e.ImagesToText(context.Background(), []string{img, img})
	if n := strings.Count(got, "OCR unavailable"); n != 2 {
		t.Fatalf("expected 2 unavailable placeholders, got %d in %q", n, got)
	}
	if !strings.Contains(got, "[Slide 1]") || !strings.Contains(got, "[Slide 2]") {
		t.Fatalf("slide labels missing: %q", got)
	}
}

func TestImagesToText_SkipsUndecodableImages(t *testing.T) {
	t.Parallel()

	e := quietEngine(t, "definitely-not-a-real-binary")
	got := e.ImagesToText(context.Background(), []string{
		"data:image/png;base64not-a-data-uri",
		"ftp://unsupported.example/x.png",
	})
	if got != "" {
		t.Fatalf("undecodable images must be skipped, got %q", got)
	}
}

func TestImagesToText_FetchesRemoteImages(t *testing.T) {
	t.Parallel()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("png-ish bytes"))
	}))
	defer srv.Close()

	e := quietEngine(t, "definitely-not-a-real-binary")
	got := e.ImagesToText(context.Background(), []string{srv.URL + "/slide.png"})
	if hits != 1 {
		t.Fatalf("expected 1 fetch, got %d", hits)
	}
	// Engine is unavailable, so the fetched image degrades to a placeholder.
	if !strings.Contains(got, "OCR unavailable") {
		t.Fatalf("expected placeholder after fetch, got %q", got)
	}
}

func TestImagesToText_RemoteErrorSkips(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := quietEngine(t, "definitely-not-a-real-binary")
	if got := e.ImagesToText(context.Background(), []string{srv.URL + "/x.png"}); got != "" {
		t.Fatalf("forbidden image must be skipped, got %q", got)
	}
}
