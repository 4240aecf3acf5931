package deck_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/sourcedesk/dealflow/internal/deck"
	"github.com/sourcedesk/dealflow/internal/prompt"
	"github.com/sourcedesk/dealflow/internal/trace"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
	lastText string
}

func (f *fakeCompleter) Complete(_ context.Context, p string, _ *genai.Schema) (string, error) {
	f.calls++
	f.lastText = p
	return f.response, f.err
}

func testSummarizer(c *fakeCompleter) *deck.Summarizer {
	return deck.NewSummarizer(c, prompt.Defaults(), log.New(io.Discard, "", 0))
}

func TestSummarize_AnchorOverridesModel(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{response: `{
		"company": "Acne Robotics",
		"problem": "warehouses are slow",
		"solution": "autonomous forklifts",
		"business_model": "subscription",
		"financials": "unknown",
		"market": "logistics",
		"funding_team": "2M seed, two founders"
	}`}
	facts := testSummarizer(c).Summarize(context.Background(), trace.New(),
		"slide text long enough to summarize properly",
		"Sharing our deck.\nCompany: Acme Robotics\nWe are raising a seed round.")

	if facts.Company != "Acme Robotics" {
		t.Fatalf("anchor must override model company, got %q", facts.Company)
	}
	if facts.Solution != "autonomous forklifts" {
		t.Fatalf("model fields lost: %#v", facts)
	}
}

func TestSummarize_CompletionErrorDegrades(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{err: errors.New("model down")}
	facts := testSummarizer(c).Summarize(context.Background(), trace.New(),
		"some deck text", "Acme Robotics is a startup automating forklifts. Deck attached.")

	want := deck.UnknownFacts()
	want.Company = "Acme Robotics"
	if facts != want {
		t.Fatalf("degraded facts = %#v, want %#v", facts, want)
	}
}

func TestSummarize_UnparsableResponseDegrades(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{response: "not json at all"}
	facts := testSummarizer(c).Summarize(context.Background(), trace.New(), "some deck text", "no names here")
	if facts != deck.UnknownFacts() {
		t.Fatalf("expected fully-defaulted facts, got %#v", facts)
	}
}

func TestSummarize_EmptyFieldsBecomeUnknown(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{response: `{"company":"Acme","problem":"  ","solution":""}`}
	facts := testSummarizer(c).Summarize(context.Background(), trace.New(), "some deck text", "no names here")
	if facts.Problem != deck.Unknown || facts.Solution != deck.Unknown || facts.Market != deck.Unknown {
		t.Fatalf("empty fields must normalize to the sentinel: %#v", facts)
	}
	if facts.Company != "Acme" {
		t.Fatalf("stated company lost: %#v", facts)
	}
}

func TestSummarize_EmptyDeckSkipsCompletion(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{response: `{}`}
	facts := testSummarizer(c).Summarize(context.Background(), trace.New(), "   ", "no names here")
	if c.calls != 0 {
		t.Fatalf("empty deck must not hit the model, calls=%d", c.calls)
	}
	if facts != deck.UnknownFacts() {
		t.Fatalf("expected fully-defaulted facts, got %#v", facts)
	}
}

func TestSummarize_DeckTextReachesPrompt(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{response: `{}`}
	tr := trace.New()
	testSummarizer(c).Summarize(context.Background(), tr,
		"Acme automates pallet movement across mid-size warehouses", "no names here")
	if !strings.Contains(c.lastText, "pallet movement") {
		t.Fatalf("deck text missing from prompt: %q", c.lastText)
	}
	if got := tr.Entries(trace.CategoryPrompt); len(got) != 1 || got[0].Stage != "deck_summary" {
		t.Fatalf("prompt not traced: %#v", got)
	}
}
