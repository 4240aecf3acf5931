package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/sourcedesk/dealflow/internal/deck"
	"github.com/sourcedesk/dealflow/internal/linkedin"
	"github.com/sourcedesk/dealflow/internal/llm"
	"github.com/sourcedesk/dealflow/internal/prompt"
	"github.com/sourcedesk/dealflow/internal/trace"
)

// maxSearchChars bounds how much grounded-search content is fed back into a
// merge prompt.
const maxSearchChars = 12000

// ProfileFinder is the identity-verified lookup collaborator. Optional: the
// pipeline runs without one and skips the verified-profile input.
type ProfileFinder interface {
	Find(ctx context.Context, company, founder string) (linkedin.Profile, error)
}

// Pipeline runs the staged enrichment. Stages execute strictly in order and
// sequentially; the only repetition is the retry loop inside the llm client.
type Pipeline struct {
	completer llm.Completer
	searcher  llm.Searcher
	prompts   *prompt.Store
	profiles  ProfileFinder
	logger    *log.Logger
}

func NewPipeline(completer llm.Completer, searcher llm.Searcher, prompts *prompt.Store, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{completer: completer, searcher: searcher, prompts: prompts, logger: logger}
}

// WithProfileFinder attaches the optional verified-profile lookup.
func (p *Pipeline) WithProfileFinder(f ProfileFinder) *Pipeline {
	p.profiles = f
	return p
}

// Enrich produces the deal record for one message/deck pair. deckLink is
// carried into the record verbatim. The only failure surfaced to the caller
// is a missing company identity; every other problem degrades its own stage.
func (p *Pipeline) Enrich(ctx context.Context, tr *trace.Trace, message string, facts deck.Facts, deckLink string) (DealRecord, error) {
	basics := p.initialExtraction(ctx, tr, message, facts)
	if strings.TrimSpace(basics.CompanyName) == "" {
		return DealRecord{}, ErrMissingCompanyIdentity
	}
	p.logger.Printf("enrich: company=%q founders=%d", basics.CompanyName, len(basics.FounderNames))

	candidates := p.founderDiscovery(ctx, tr, basics.CompanyName, basics.FounderNames)

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}

	companyProfile, category := p.companyProfile(ctx, tr, basics.CompanyName, names, facts, message)
	founderProfile := p.founderBackground(ctx, tr, basics.CompanyName, candidates)

	return DealRecord{
		CompanyName:    basics.CompanyName,
		FounderNames:   names,
		CompanyProfile: companyProfile,
		FounderProfile: founderProfile,
		FundingInfo:    basics.FundingInfo,
		Category:       category,
		DeckLink:       deckLink,
	}, nil
}

// dealBasics is the stage-1 result.
type dealBasics struct {
	CompanyName  string   `json:"companyName"`
	FounderNames []string `json:"founderNames"`
	CompanyInfo  string   `json:"companyInfo"`
	FundingInfo  string   `json:"fundingInfo"`
}

var basicsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"companyName":  {Type: genai.TypeString},
		"founderNames": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"companyInfo":  {Type: genai.TypeString},
		"fundingInfo":  {Type: genai.TypeString},
	},
	Required: []string{"companyName", "founderNames", "companyInfo", "fundingInfo"},
}

// initialExtraction pulls the deal basics out of the message and deck facts.
// A failed completion falls back to the deck's company name so enrichment
// can still proceed when the model is down but the deck was readable.
func (p *Pipeline) initialExtraction(ctx context.Context, tr *trace.Trace, message string, facts deck.Facts) dealBasics {
	fallback := dealBasics{}
	if facts.Company != deck.Unknown {
		fallback.CompanyName = facts.Company
	}

	rendered, err := p.prompts.Render("initial_extraction", map[string]string{
		"message":    message,
		"deck_facts": facts.Formatted(),
	})
	if err != nil {
		p.logger.Printf("enrich: initial extraction prompt unavailable: %v", err)
		return fallback
	}

	raw, err := p.completer.Complete(ctx, rendered, basicsSchema)
	tr.Add(trace.CategoryPrompt, "initial_extraction", rendered, raw)
	if err != nil {
		p.logger.Printf("enrich: initial extraction failed: %v", err)
		return fallback
	}

	var basics dealBasics
	if err := json.Unmarshal([]byte(raw), &basics); err != nil {
		p.logger.Printf("enrich: initial extraction unparsable: %v", err)
		return fallback
	}
	basics.CompanyName = strings.TrimSpace(basics.CompanyName)
	if basics.CompanyName == "" {
		basics.CompanyName = fallback.CompanyName
	}
	basics.FounderNames = cleanNames(basics.FounderNames)
	return basics
}

var foundersSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"founders": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":  {Type: genai.TypeString},
					"title": {Type: genai.TypeString},
				},
				Required: []string{"name"},
			},
		},
	},
	Required: []string{"founders"},
}

// founderDiscovery resolves who founded the company. Names already stated in
// the message win outright; otherwise a fixed query list runs until one
// yields candidates.
func (p *Pipeline) founderDiscovery(ctx context.Context, tr *trace.Trace, company string, known []string) []FounderCandidate {
	if len(known) > 0 {
		candidates := make([]FounderCandidate, 0, len(known))
		for _, name := range known {
			candidates = append(candidates, FounderCandidate{Name: name})
		}
		return dedupeCandidates(candidates)
	}

	queries := []string{
		fmt.Sprintf("%s founder CEO title position who founded", company),
		fmt.Sprintf("%s 創辦人 創始人 CEO", company),
	}
	for _, query := range queries {
		result, err := p.searcher.Search(ctx, query)
		tr.Add(trace.CategorySearch, "founder_discovery", query, clip(result.Content, maxSearchChars))
		if err != nil {
			p.logger.Printf("enrich: founder search failed: %v", err)
			continue
		}
		if strings.TrimSpace(result.Content) == "" {
			continue
		}

		rendered, err := p.prompts.Render("founder_candidates", map[string]string{
			"company":        company,
			"search_results": clip(result.Content, maxSearchChars),
		})
		if err != nil {
			p.logger.Printf("enrich: founder candidates prompt unavailable: %v", err)
			return nil
		}
		raw, err := p.completer.Complete(ctx, rendered, foundersSchema)
		tr.Add(trace.CategoryPrompt, "founder_candidates", rendered, raw)
		if err != nil {
			p.logger.Printf("enrich: founder candidate extraction failed: %v", err)
			continue
		}

		var parsed struct {
			Founders []FounderCandidate `json:"founders"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			p.logger.Printf("enrich: founder candidates unparsable: %v", err)
			continue
		}
		if candidates := dedupeCandidates(parsed.Founders); len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

var companyProfileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"oneLiner":       {Type: genai.TypeString},
		"painPoint":      {Type: genai.TypeString},
		"solution":       {Type: genai.TypeString},
		"marketPosition": {Type: genai.TypeString},
		"traction":       {Type: genai.TypeString},
		"milestones":     {Type: genai.TypeString},
	},
	Required: []string{"oneLiner", "painPoint", "solution", "marketPosition", "traction", "milestones"},
}

var categorySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"category": {Type: genai.TypeString},
	},
	Required: []string{"category"},
}

// companyProfile researches the company and classifies it. Merge priority
// when sources disagree is encoded in the prompt: deck, then search, then
// message.
func (p *Pipeline) companyProfile(ctx context.Context, tr *trace.Trace, company string, founders []string, facts deck.Facts, message string) (CompanyProfile, string) {
	query := fmt.Sprintf("%s company profile business market financials milestones %s",
		company, strings.Join(founders, " "))
	result, err := p.searcher.Search(ctx, strings.TrimSpace(query))
	tr.Add(trace.CategorySearch, "company_profile", query, clip(result.Content, maxSearchChars))
	if err != nil {
		p.logger.Printf("enrich: company search failed: %v", err)
	}

	profile := unknownCompanyProfile()
	rendered, err := p.prompts.Render("company_profile", map[string]string{
		"company":        company,
		"deck_facts":     facts.Formatted(),
		"search_results": clip(result.Content, maxSearchChars),
		"message":        message,
	})
	if err != nil {
		p.logger.Printf("enrich: company profile prompt unavailable: %v", err)
	} else {
		raw, err := p.completer.Complete(ctx, rendered, companyProfileSchema)
		tr.Add(trace.CategoryPrompt, "company_profile", rendered, raw)
		if err != nil {
			p.logger.Printf("enrich: company profile merge failed: %v", err)
		} else if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			p.logger.Printf("enrich: company profile unparsable: %v", err)
			profile = unknownCompanyProfile()
		}
		profile.normalize()
	}

	return profile, p.classify(ctx, tr, company, profile, facts)
}

// classify runs the narrow category completion. Failure is never an error,
// only the unknown category.
func (p *Pipeline) classify(ctx context.Context, tr *trace.Trace, company string, profile CompanyProfile, facts deck.Facts) string {
	info := profile.OneLiner
	if info == Unknown {
		info = facts.Solution
	}
	rendered, err := p.prompts.Render("company_category", map[string]string{
		"company":      company,
		"company_info": info,
	})
	if err != nil {
		p.logger.Printf("enrich: category prompt unavailable: %v", err)
		return Unknown
	}
	raw, err := p.completer.Complete(ctx, rendered, categorySchema)
	tr.Add(trace.CategoryPrompt, "company_category", rendered, raw)
	if err != nil {
		p.logger.Printf("enrich: classification failed: %v", err)
		return Unknown
	}
	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Unknown
	}
	category := strings.ToLower(strings.TrimSpace(parsed.Category))
	if category == "" {
		return Unknown
	}
	return category
}

var founderProfileSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":                  {Type: genai.TypeString},
		"background":             {Type: genai.TypeString},
		"previousCompanies":      {Type: genai.TypeString},
		"education":              {Type: genai.TypeString},
		"achievements":           {Type: genai.TypeString},
		"professionalNetworkUrl": {Type: genai.TypeString},
	},
	Required: []string{"title", "background", "previousCompanies", "education", "achievements", "professionalNetworkUrl"},
}

// founderBackground researches the first candidate only. Decks routinely
// list the whole team; the lead founder is the person the deal conversation
// happens with.
func (p *Pipeline) founderBackground(ctx context.Context, tr *trace.Trace, company string, candidates []FounderCandidate) FounderProfile {
	if len(candidates) == 0 {
		return defaultFounderProfile("")
	}
	founder := candidates[0].Name
	profile := defaultFounderProfile(founder)

	query := fmt.Sprintf("%s %s founder background career education", founder, company)
	result, err := p.searcher.Search(ctx, query)
	tr.Add(trace.CategorySearch, "founder_background", query, clip(result.Content, maxSearchChars))
	if err != nil {
		p.logger.Printf("enrich: founder search failed: %v", err)
	}

	var verified *linkedin.Profile
	verifiedJSON := ""
	if p.profiles != nil {
		found, err := p.profiles.Find(ctx, company, founder)
		if err != nil {
			p.logger.Printf("enrich: profile lookup skipped: %v", err)
		} else if !found.Zero() {
			verified = &found
			if b, err := json.Marshal(found); err == nil {
				verifiedJSON = string(b)
			}
		}
	}

	rendered, err := p.prompts.Render("founder_background", map[string]string{
		"founder":        founder,
		"company":        company,
		"search_results": clip(result.Content, maxSearchChars),
		"profile":        verifiedJSON,
	})
	if err != nil {
		p.logger.Printf("enrich: founder background prompt unavailable: %v", err)
	} else {
		raw, err := p.completer.Complete(ctx, rendered, founderProfileSchema)
		tr.Add(trace.CategoryPrompt, "founder_background", rendered, raw)
		if err != nil {
			p.logger.Printf("enrich: founder background merge failed: %v", err)
		} else if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			p.logger.Printf("enrich: founder background unparsable: %v", err)
			profile = defaultFounderProfile(founder)
		}
		profile.Name = founder
		profile.normalize()
	}

	if verified != nil {
		profile.StructuredProfile = verified
		// The verified URL beats whatever the model read off the open web.
		if verified.URL != "" {
			profile.ProfessionalNetworkURL = verified.URL
		}
	}
	return profile
}

// cleanNames trims and drops empty entries, keeping first-seen order.
func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]struct{}{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// dedupeCandidates keeps the first occurrence of each exact name.
func dedupeCandidates(in []FounderCandidate) []FounderCandidate {
	out := make([]FounderCandidate, 0, len(in))
	seen := map[string]struct{}{}
	for _, c := range in {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, FounderCandidate{Name: name, Title: strings.TrimSpace(c.Title)})
	}
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
