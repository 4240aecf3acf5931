package prompt

// defaults are the built-in templates, used when no prompts file is supplied
// or a key is missing from it. Keys match the stage names used across the
// pipeline.
var defaults = map[string]string{
	"deck_summary": `You are an analyst reading a startup pitch deck. Extract the facts below
from the deck text. Answer in JSON only. Use the string "unknown" for any
field the deck does not state.

Deck text:
{deck_text}`,

	"initial_extraction": `Extract deal basics from this inbound founder message and deck summary.
Return JSON with companyName, founderNames (array of full names),
companyInfo (one paragraph) and fundingInfo (round, amount, terms if
stated). Use empty strings and arrays when a field is not stated.

Message:
{message}

Deck summary:
{deck_facts}`,

	"founder_candidates": `From the search results below, list the founders of {company}. Return
JSON with a "founders" array of objects holding name and title. Only
include people the results explicitly tie to {company}.

Search results:
{search_results}`,

	"company_profile": `Combine the sources below into a company profile for {company}. Priority
when sources disagree: deck first, then search results, then the message.
Return JSON with oneLiner, painPoint, solution, marketPosition, traction
and milestones. Use "unknown" when no source covers a field.

Deck summary:
{deck_facts}

Search results:
{search_results}

Message:
{message}`,

	"company_category": `Classify {company} into exactly one category: consumer, saas, fintech,
healthcare, deeptech, climate, marketplace, infrastructure, other.
Return JSON with a single "category" field holding the category in
lowercase.

What the company does:
{company_info}`,

	"founder_background": `Build a professional profile of {founder}, founder of {company}, from
the sources below. Return JSON with title, background, previousCompanies,
education, achievements and professionalNetworkUrl. Use "N/A" for fields
the sources do not cover.

Search results:
{search_results}

Verified profile:
{profile}`,
}

// Defaults returns a Store holding the built-in templates.
func Defaults() *Store {
	return NewFromMap(defaults)
}

// Merge overlays file-provided templates on the defaults, so a partial
// prompts file only overrides the keys it names.
func Merge(overrides *Store) *Store {
	merged := make(map[string]string, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	if overrides != nil {
		for k, v := range overrides.templates {
			if v != "" {
				merged[k] = v
			}
		}
	}
	return &Store{templates: merged}
}
