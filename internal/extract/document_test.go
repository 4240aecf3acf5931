package extract_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/sourcedesk/dealflow/internal/extract"
)

const sampleHTML = `
<html><head><title>Acme Deck</title></head><body>
  <main>
    <h1>Acme: robots for everyone</h1>
    <p>tiny</p>
    <p>We build affordable industrial robots for small factories.</p>
    <li>Founded 2024 by Jane Roe and Sam Lee.</li>
  </main>
  <footer><p>Acme Inc, 123 Factory Rd.</p></footer>
  <img src="https://cdn.example/slide1.png"/>
  <img src="data:image/png;base64,AAAA"/>
  <img src=" "/>
</body></html>`

func TestBlockText_FiltersShortBlocks(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseHTML(sampleHTML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text := extract.BlockText(doc)
	if strings.Contains(text, "tiny") {
		t.Fatalf("short block should be filtered: %q", text)
	}
	for _, want := range []string{"affordable industrial robots", "Founded 2024", "123 Factory Rd"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}

func TestBlockTextScoped_PrefersMain(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseHTML(sampleHTML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text := extract.BlockTextScoped(doc)
	if !strings.Contains(text, "affordable industrial robots") {
		t.Fatalf("main content missing: %q", text)
	}
	if strings.Contains(text, "123 Factory Rd") {
		t.Fatalf("footer should be excluded when main exists: %q", text)
	}
}

func TestImageRefs(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseHTML(sampleHTML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	refs := extract.ImageRefs(doc)
	if len(refs) != 2 {
		t.Fatalf("expected 2 image refs, got %v", refs)
	}
	if refs[0] != "https://cdn.example/slide1.png" {
		t.Fatalf("order not preserved: %v", refs)
	}
}

func TestDocument_Empty(t *testing.T) {
	t.Parallel()

	if !(extract.Document{RawText: "short"}).Empty() {
		t.Fatal("short text should be empty")
	}
	if (extract.Document{RawText: strings.Repeat("long enough content ", 10)}).Empty() {
		t.Fatal("long text should not be empty")
	}
}

func TestFailed_AlwaysReturnsDocument(t *testing.T) {
	t.Parallel()

	cause := errors.New("navigation refused")
	doc := extract.Failed("https://docsend.com/view/x", cause)
	if doc.Err == nil || !errors.Is(doc.Err, cause) {
		t.Fatalf("error marker missing: %#v", doc)
	}
	if doc.SourceURL != "https://docsend.com/view/x" {
		t.Fatalf("source url lost: %#v", doc)
	}
}
