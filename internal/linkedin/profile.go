// Package linkedin looks up a founder's public profile through a logged-in
// browser session and parses it structurally. A profile is only returned
// when the displayed name matches the founder we asked about; anything else
// is discarded wholesale rather than risk attaching the wrong person to a
// deal.
package linkedin

import (
	"errors"
	"strings"
)

// ErrIdentityMismatch means a profile was found but its displayed name is not
// the founder's. The caller gets a zero Profile with it.
var ErrIdentityMismatch = errors.New("profile name does not match founder")

// ErrNoResult means the search produced no profile link at all.
var ErrNoResult = errors.New("no profile found")

type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Period      string `json:"period"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type Education struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Period string `json:"period"`
}

// Profile is the structured result of one verified lookup.
type Profile struct {
	Name       string       `json:"name"`
	Headline   string       `json:"headline"`
	About      string       `json:"about"`
	Experience []Experience `json:"experience"`
	Education  []Education  `json:"education"`
	URL        string       `json:"url"`
}

// Zero reports whether the profile carries no information.
func (p Profile) Zero() bool {
	return p.Name == "" && p.About == "" && len(p.Experience) == 0 && len(p.Education) == 0
}

// matchesName is the identity gate: a case-insensitive full-string match
// between the displayed name and the founder we searched for. Partial
// matches are rejected; a shared first name is not an identity.
func matchesName(displayed, founder string) bool {
	return strings.EqualFold(strings.TrimSpace(displayed), strings.TrimSpace(founder))
}
