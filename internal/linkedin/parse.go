package linkedin

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sourcedesk/dealflow/internal/extract"
)

// minAboutLen filters placeholder fragments out of the about candidates.
const minAboutLen = 10

// periodRe recognizes tenure strings: year ranges, "Present" and the
// "· 3 yrs 2 mos" duration suffix.
var periodRe = regexp.MustCompile(`\b(19|20)\d{2}\b|\bPresent\b|\b\d+\s*(yrs?|mos?)\b`)

// ParseProfile structurally parses a profile page snapshot. It is heuristic
// by necessity: the page markup is obfuscated and shifts between rollouts,
// so every field is derived from positional and keyword rules over the
// stable bits (section anchors, list items, aria-hidden text spans).
func ParseProfile(html, pageURL string) (Profile, error) {
	gdoc, err := extract.ParseHTML(html)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		Name:     displayedName(gdoc),
		Headline: headline(gdoc),
		About:    aboutText(gdoc),
		URL:      pageURL,
	}

	sectionItems(gdoc, "#experience").Each(func(_ int, li *goquery.Selection) {
		if exp, ok := parseExperience(li); ok {
			p.Experience = append(p.Experience, exp)
		}
	})
	sectionItems(gdoc, "#education").Each(func(_ int, li *goquery.Selection) {
		if edu, ok := parseEducation(li); ok {
			p.Education = append(p.Education, edu)
		}
	})
	return p, nil
}

// displayedName tries the known heading shapes in order.
func displayedName(gdoc *goquery.Document) string {
	for _, sel := range []string{
		`h1[class*="heading-xlarge"]`,
		`main h1`,
		`h1`,
	} {
		if text := strings.TrimSpace(gdoc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func headline(gdoc *goquery.Document) string {
	for _, sel := range []string{
		`div[class*="text-body-medium"]`,
		`main section div.text-body-medium`,
	} {
		if text := strings.TrimSpace(gdoc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// aboutText walks the candidate containers under the about anchor and keeps
// the first one long enough to be a real summary.
func aboutText(gdoc *goquery.Document) string {
	section := gdoc.Find("#about").Closest("section")
	if section.Length() == 0 {
		return ""
	}
	candidates := []string{
		`[class*="inline-show-more-text"] span[aria-hidden="true"]`,
		`div.display-flex span[aria-hidden="true"]`,
		`span[aria-hidden="true"]`,
	}
	for _, sel := range candidates {
		var found string
		section.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if len(text) > minAboutLen && !strings.EqualFold(text, "about") {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// sectionItems returns the list items of the section holding the given
// anchor element.
func sectionItems(gdoc *goquery.Document, anchor string) *goquery.Selection {
	return gdoc.Find(anchor).Closest("section").Find("li.artdeco-list__item")
}

// itemSpans collects the visible text spans of a list item in document
// order, deduplicated. The visually-hidden duplicates carry aria-hidden
// siblings, so aria-hidden="true" spans are the readable copy.
func itemSpans(li *goquery.Selection) []string {
	var spans []string
	seen := map[string]struct{}{}
	li.Find(`span[aria-hidden="true"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		spans = append(spans, text)
	})
	return spans
}

// parseExperience assigns a list item's spans positionally: title first,
// company second, then period/location/description by keyword shape.
func parseExperience(li *goquery.Selection) (Experience, bool) {
	spans := itemSpans(li)
	if len(spans) == 0 {
		return Experience{}, false
	}
	exp := Experience{Title: spans[0]}
	if len(spans) > 1 {
		// "Acme Robotics · Full-time" keeps only the employer.
		company, _, _ := strings.Cut(spans[1], " · ")
		exp.Company = strings.TrimSpace(company)
	}
	// Obfuscated markup can leave an item with one or two spans only.
	for i := 2; i < len(spans); i++ {
		s := spans[i]
		switch {
		case exp.Period == "" && periodRe.MatchString(s):
			exp.Period = s
		case exp.Location == "" && looksLikeLocation(s):
			exp.Location = s
		case len(s) > len(exp.Description):
			exp.Description = s
		}
	}
	return exp, true
}

func parseEducation(li *goquery.Selection) (Education, bool) {
	spans := itemSpans(li)
	if len(spans) == 0 {
		return Education{}, false
	}
	edu := Education{School: spans[0]}
	for _, s := range spans[1:] {
		switch {
		case edu.Period == "" && periodRe.MatchString(s):
			edu.Period = s
		case edu.Degree == "":
			edu.Degree = s
		}
	}
	return edu, true
}

// looksLikeLocation matches short "City, Region" fragments without dates.
func looksLikeLocation(s string) bool {
	if periodRe.MatchString(s) || len(s) > 60 {
		return false
	}
	return strings.Contains(s, ",") || strings.Contains(s, "Remote") || strings.Contains(s, "Area")
}
