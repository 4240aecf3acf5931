// Package deck condenses raw acquired deck text into the fixed fact sheet
// the enrichment pipeline consumes.
package deck

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/sourcedesk/dealflow/internal/llm"
	"github.com/sourcedesk/dealflow/internal/prompt"
	"github.com/sourcedesk/dealflow/internal/source"
	"github.com/sourcedesk/dealflow/internal/trace"
)

// Unknown is the sentinel for facts the deck does not state. Downstream
// stages treat it as "no information", never as a literal value.
const Unknown = "unknown"

// maxDeckChars bounds the deck text sent in one prompt.
const maxDeckChars = 20000

// Facts is the fixed seven-field fact sheet. Every field is always set;
// absent information is the Unknown sentinel.
type Facts struct {
	Company       string `json:"company"`
	Problem       string `json:"problem"`
	Solution      string `json:"solution"`
	BusinessModel string `json:"business_model"`
	Financials    string `json:"financials"`
	Market        string `json:"market"`
	FundingTeam   string `json:"funding_team"`
}

// UnknownFacts is the fully-defaulted fact sheet.
func UnknownFacts() Facts {
	return Facts{
		Company:       Unknown,
		Problem:       Unknown,
		Solution:      Unknown,
		BusinessModel: Unknown,
		Financials:    Unknown,
		Market:        Unknown,
		FundingTeam:   Unknown,
	}
}

func (f *Facts) normalize() {
	for _, p := range []*string{&f.Company, &f.Problem, &f.Solution, &f.BusinessModel, &f.Financials, &f.Market, &f.FundingTeam} {
		if strings.TrimSpace(*p) == "" {
			*p = Unknown
		} else {
			*p = strings.TrimSpace(*p)
		}
	}
}

// Formatted renders the fact sheet as labeled lines for inclusion in
// downstream prompts.
func (f Facts) Formatted() string {
	return fmt.Sprintf(
		"Company: %s\nProblem: %s\nSolution: %s\nBusiness model: %s\nFinancials: %s\nMarket: %s\nFunding and team: %s",
		f.Company, f.Problem, f.Solution, f.BusinessModel, f.Financials, f.Market, f.FundingTeam)
}

// FactsSchema constrains the summary completion to the exact fact-sheet
// shape.
var FactsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"company":        {Type: genai.TypeString},
		"problem":        {Type: genai.TypeString},
		"solution":       {Type: genai.TypeString},
		"business_model": {Type: genai.TypeString},
		"financials":     {Type: genai.TypeString},
		"market":         {Type: genai.TypeString},
		"funding_team":   {Type: genai.TypeString},
	},
	Required: []string{"company", "problem", "solution", "business_model", "financials", "market", "funding_team"},
}

// Summarizer turns deck text into Facts with one structured completion.
type Summarizer struct {
	completer llm.Completer
	prompts   *prompt.Store
	logger    *log.Logger
}

func NewSummarizer(completer llm.Completer, prompts *prompt.Store, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Summarizer{completer: completer, prompts: prompts, logger: logger}
}

// Summarize produces the fact sheet for one deck. The company name found in
// the message text is authoritative and overrides whatever the model read
// off the deck. Summarize never fails: any completion or parse problem
// degrades to the fully-defaulted sheet.
func (s *Summarizer) Summarize(ctx context.Context, tr *trace.Trace, rawText, message string) Facts {
	anchor := source.CompanyName(message)
	fallback := UnknownFacts()
	if anchor != "" {
		fallback.Company = anchor
	}

	if strings.TrimSpace(rawText) == "" {
		return fallback
	}
	if len(rawText) > maxDeckChars {
		rawText = rawText[:maxDeckChars]
	}

	p, err := s.prompts.Render("deck_summary", map[string]string{"deck_text": rawText})
	if err != nil {
		s.logger.Printf("deck: prompt unavailable: %v", err)
		return fallback
	}

	raw, err := s.completer.Complete(ctx, p, FactsSchema)
	tr.Add(trace.CategoryPrompt, "deck_summary", p, raw)
	if err != nil {
		s.logger.Printf("deck: summary completion failed: %v", err)
		return fallback
	}

	var facts Facts
	if err := json.Unmarshal([]byte(raw), &facts); err != nil {
		s.logger.Printf("deck: summary response unparsable: %v", err)
		return fallback
	}
	facts.normalize()
	if anchor != "" {
		facts.Company = anchor
	}
	return facts
}
