// Package enrich turns an acquired deck and its message into a research-grade
// deal record through staged model completions and grounded searches. Stages
// degrade individually: a failed search or completion defaults its own fields
// and the record still assembles.
package enrich

import (
	"errors"
	"strings"

	"github.com/sourcedesk/dealflow/internal/linkedin"
)

// ErrMissingCompanyIdentity aborts enrichment: without a company name every
// downstream search would research noise.
var ErrMissingCompanyIdentity = errors.New("no company identity in message or deck")

// Unknown marks company fields no source covered.
const Unknown = "unknown"

// NotAvailable marks founder fields no source covered.
const NotAvailable = "N/A"

// FounderCandidate is one person the discovery stage tied to the company.
type FounderCandidate struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// CompanyProfile is the merged company research result.
type CompanyProfile struct {
	OneLiner       string `json:"oneLiner"`
	PainPoint      string `json:"painPoint"`
	Solution       string `json:"solution"`
	MarketPosition string `json:"marketPosition"`
	Traction       string `json:"traction"`
	Milestones     string `json:"milestones"`
}

func (c *CompanyProfile) normalize() {
	for _, p := range []*string{&c.OneLiner, &c.PainPoint, &c.Solution, &c.MarketPosition, &c.Traction, &c.Milestones} {
		if strings.TrimSpace(*p) == "" {
			*p = Unknown
		} else {
			*p = strings.TrimSpace(*p)
		}
	}
}

func unknownCompanyProfile() CompanyProfile {
	var c CompanyProfile
	c.normalize()
	return c
}

// FounderProfile is the merged founder research result. StructuredProfile is
// set only when the identity-verified lookup succeeded.
type FounderProfile struct {
	Name                   string            `json:"name"`
	Title                  string            `json:"title"`
	Background             string            `json:"background"`
	PreviousCompanies      string            `json:"previousCompanies"`
	Education              string            `json:"education"`
	Achievements           string            `json:"achievements"`
	ProfessionalNetworkURL string            `json:"professionalNetworkUrl"`
	StructuredProfile      *linkedin.Profile `json:"structuredProfile,omitempty"`
}

func (f *FounderProfile) normalize() {
	for _, p := range []*string{&f.Title, &f.Background, &f.PreviousCompanies, &f.Education, &f.Achievements, &f.ProfessionalNetworkURL} {
		if strings.TrimSpace(*p) == "" {
			*p = NotAvailable
		} else {
			*p = strings.TrimSpace(*p)
		}
	}
}

func defaultFounderProfile(name string) FounderProfile {
	f := FounderProfile{Name: name}
	f.normalize()
	return f
}

// SentinelRecord is the worst-case output: every field defaulted, assembled
// when enrichment could not establish a company identity.
func SentinelRecord(deckLink string) DealRecord {
	return DealRecord{
		CompanyName:    Unknown,
		CompanyProfile: unknownCompanyProfile(),
		FounderProfile: defaultFounderProfile(""),
		FundingInfo:    Unknown,
		Category:       Unknown,
		DeckLink:       deckLink,
	}
}

// DealRecord is the assembled output of one enrichment run.
type DealRecord struct {
	CompanyName    string         `json:"companyName"`
	FounderNames   []string       `json:"founderNames"`
	CompanyProfile CompanyProfile `json:"companyProfile"`
	FounderProfile FounderProfile `json:"founderProfile"`
	FundingInfo    string         `json:"fundingInfo"`
	Category       string         `json:"category"`
	DeckLink       string         `json:"deckLink,omitempty"`
}
