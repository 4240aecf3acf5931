package enrich_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/sourcedesk/dealflow/internal/deck"
	"github.com/sourcedesk/dealflow/internal/enrich"
	"github.com/sourcedesk/dealflow/internal/linkedin"
	"github.com/sourcedesk/dealflow/internal/llm"
	"github.com/sourcedesk/dealflow/internal/prompt"
	"github.com/sourcedesk/dealflow/internal/trace"
)

// fakeCompleter answers by matching a fragment of the prompt, so each stage
// can be scripted independently.
type fakeCompleter struct {
	byFragment map[string]string
	err        error
	calls      int
}

func (f *fakeCompleter) Complete(_ context.Context, p string, _ *genai.Schema) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	for frag, resp := range f.byFragment {
		if strings.Contains(p, frag) {
			return resp, nil
		}
	}
	return "{}", nil
}

type fakeSearcher struct {
	content string
	err     error
	calls   int
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, q string) (llm.SearchResult, error) {
	f.calls++
	f.queries = append(f.queries, q)
	if f.err != nil {
		return llm.SearchResult{}, f.err
	}
	return llm.SearchResult{Content: f.content}, nil
}

type fakeFinder struct {
	profile linkedin.Profile
	err     error
	calls   int
}

func (f *fakeFinder) Find(_ context.Context, _, _ string) (linkedin.Profile, error) {
	f.calls++
	return f.profile, f.err
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func testPipeline(c *fakeCompleter, s *fakeSearcher) *enrich.Pipeline {
	return enrich.NewPipeline(c, s, prompt.Defaults(), quiet())
}

func richFacts() deck.Facts {
	f := deck.UnknownFacts()
	f.Company = "Acme Robotics"
	f.Solution = "autonomous forklifts"
	return f
}

func TestEnrich_MissingCompanyShortCircuits(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{byFragment: map[string]string{
		"Extract deal basics": `{"companyName":"","founderNames":[],"companyInfo":"","fundingInfo":""}`,
	}}
	s := &fakeSearcher{}

	rec, err := testPipeline(c, s).Enrich(context.Background(), trace.New(), "hello", deck.UnknownFacts(), "")
	if !errors.Is(err, enrich.ErrMissingCompanyIdentity) {
		t.Fatalf("err = %v", err)
	}
	if rec.CompanyName != "" || rec.Category != "" {
		t.Fatalf("record must stay empty: %#v", rec)
	}
	// Only the initial extraction may run: no searches, no further prompts.
	if c.calls != 1 {
		t.Fatalf("completer calls = %d, want 1", c.calls)
	}
	if s.calls != 0 {
		t.Fatalf("searcher calls = %d, want 0", s.calls)
	}
}

func TestEnrich_KnownFoundersSkipDiscovery(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{byFragment: map[string]string{
		"Extract deal basics":  `{"companyName":"Acme Robotics","founderNames":["Jane Virtanen","Jane Virtanen"],"companyInfo":"robots","fundingInfo":"2M seed"}`,
		"company profile":      `{"oneLiner":"forklift automation","painPoint":"manual pallet moving","solution":"robots","marketPosition":"","traction":"","milestones":""}`,
		"exactly one category": `{"category":"DeepTech"}`,
		"professional profile": `{"title":"CEO","background":"robotics","previousCompanies":"Kone","education":"Aalto","achievements":"","professionalNetworkUrl":""}`,
	}}
	s := &fakeSearcher{content: "search results about acme robotics and its founder"}

	rec, err := testPipeline(c, s).Enrich(context.Background(), trace.New(), "msg", richFacts(), "https://docsend.com/view/x")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if len(rec.FounderNames) != 1 || rec.FounderNames[0] != "Jane Virtanen" {
		t.Fatalf("founders = %#v", rec.FounderNames)
	}
	// Discovery must be skipped: only the company and founder searches run.
	if s.calls != 2 {
		t.Fatalf("searcher calls = %d, want 2", s.calls)
	}
	if rec.Category != "deeptech" {
		t.Fatalf("category = %q", rec.Category)
	}
	if rec.CompanyProfile.MarketPosition != enrich.Unknown {
		t.Fatalf("empty fields must normalize: %#v", rec.CompanyProfile)
	}
	if rec.FounderProfile.Achievements != enrich.NotAvailable {
		t.Fatalf("empty founder fields must default: %#v", rec.FounderProfile)
	}
	if rec.DeckLink != "https://docsend.com/view/x" {
		t.Fatalf("deck link lost: %q", rec.DeckLink)
	}
	if rec.FundingInfo != "2M seed" {
		t.Fatalf("funding info lost: %q", rec.FundingInfo)
	}
}

func TestEnrich_DiscoveryFallbackQueries(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{byFragment: map[string]string{
		"Extract deal basics": `{"companyName":"Acme Robotics","founderNames":[],"companyInfo":"","fundingInfo":""}`,
		"list the founders":   `{"founders":[{"name":"Jane Virtanen","title":"CEO"},{"name":"Jane Virtanen","title":"CEO"}]}`,
	}}
	s := &fakeSearcher{content: "results"}

	rec, err := testPipeline(c, s).Enrich(context.Background(), trace.New(), "msg", richFacts(), "")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if len(rec.FounderNames) != 1 || rec.FounderNames[0] != "Jane Virtanen" {
		t.Fatalf("discovered founders = %#v", rec.FounderNames)
	}
	// First discovery query must carry the company name.
	if len(s.queries) == 0 || !strings.Contains(s.queries[0], "Acme Robotics founder CEO") {
		t.Fatalf("queries = %#v", s.queries)
	}
}

func TestEnrich_NoCandidatesDefaultsProfile(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{byFragment: map[string]string{
		"Extract deal basics": `{"companyName":"Acme Robotics","founderNames":[],"companyInfo":"","fundingInfo":""}`,
		"list the founders":   `{"founders":[]}`,
	}}
	s := &fakeSearcher{content: "results"}
	finder := &fakeFinder{}

	rec, err := testPipeline(c, s).WithProfileFinder(finder).Enrich(context.Background(), trace.New(), "msg", richFacts(), "")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if rec.FounderProfile.Title != enrich.NotAvailable || rec.FounderProfile.Background != enrich.NotAvailable {
		t.Fatalf("profile must be fully defaulted: %#v", rec.FounderProfile)
	}
	if finder.calls != 0 {
		t.Fatalf("profile lookup must not run without candidates, calls=%d", finder.calls)
	}
}

func TestEnrich_VerifiedProfileURLWins(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{byFragment: map[string]string{
		"Extract deal basics":  `{"companyName":"Acme Robotics","founderNames":["Jane Virtanen"],"companyInfo":"","fundingInfo":""}`,
		"professional profile": `{"title":"CEO","background":"","previousCompanies":"","education":"","achievements":"","professionalNetworkUrl":"https://wrong.example.com"}`,
	}}
	s := &fakeSearcher{content: "results"}
	finder := &fakeFinder{profile: linkedin.Profile{
		Name: "Jane Virtanen",
		URL:  "https://www.linkedin.com/in/jane-virtanen",
	}}

	rec, err := testPipeline(c, s).WithProfileFinder(finder).Enrich(context.Background(), trace.New(), "msg", richFacts(), "")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if rec.FounderProfile.ProfessionalNetworkURL != "https://www.linkedin.com/in/jane-virtanen" {
		t.Fatalf("verified url must win: %#v", rec.FounderProfile)
	}
	if rec.FounderProfile.StructuredProfile == nil || rec.FounderProfile.StructuredProfile.Name != "Jane Virtanen" {
		t.Fatalf("structured profile missing: %#v", rec.FounderProfile)
	}
}

func TestEnrich_IdentityMismatchDiscardsProfile(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{byFragment: map[string]string{
		"Extract deal basics": `{"companyName":"Acme Robotics","founderNames":["Jane Virtanen"],"companyInfo":"","fundingInfo":""}`,
	}}
	s := &fakeSearcher{content: "results"}
	finder := &fakeFinder{err: linkedin.ErrIdentityMismatch}

	rec, err := testPipeline(c, s).WithProfileFinder(finder).Enrich(context.Background(), trace.New(), "msg", richFacts(), "")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if rec.FounderProfile.StructuredProfile != nil {
		t.Fatalf("mismatched profile must be discarded: %#v", rec.FounderProfile)
	}
}

func TestEnrich_ModelDownStillAssembles(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{err: errors.New("model down")}
	s := &fakeSearcher{err: errors.New("search down")}

	// Deck facts carry the company, so the run survives a dead model.
	rec, err := testPipeline(c, s).Enrich(context.Background(), trace.New(), "msg", richFacts(), "")
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if rec.CompanyName != "Acme Robotics" {
		t.Fatalf("company fallback lost: %#v", rec)
	}
	if rec.Category != enrich.Unknown {
		t.Fatalf("category = %q", rec.Category)
	}
	if rec.CompanyProfile.OneLiner != enrich.Unknown {
		t.Fatalf("company profile must default: %#v", rec.CompanyProfile)
	}
}
