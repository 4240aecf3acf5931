// Package source classifies inbound deal messages and hosts the small regex
// heuristics the acquisition pipeline is anchored on. Everything here is a
// pure function of the message text and attachment names: no I/O, no state.
package source

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// Classification is the source type an inbound message resolves to.
type Classification string

const (
	ClassGatedDocument Classification = "gated-document"
	ClassAttachment    Classification = "attachment"
	ClassCloudFile     Classification = "cloud-file"
	ClassGenericWeb    Classification = "generic-web"
	ClassPlainText     Classification = "plain-text"
)

// Attachment describes one file delivered alongside the message text.
type Attachment struct {
	Name     string
	Path     string
	MIMEType string
}

// Message is the immutable inbound unit the pipeline runs on.
type Message struct {
	Text        string
	Attachments []Attachment
}

var (
	gatedLinkRe = regexp.MustCompile(`(?i)https?://(?:www\.)?docsend\.com/[^\s)"}]+`)
	cloudLinkRe = regexp.MustCompile(`https://(?:drive|docs)\.google\.com/(?:file/d/|presentation/)[\w\-/]+`)
	anyLinkRe   = regexp.MustCompile(`https?://[^\s)"]+`)

	cloudFileIDPathRe  = regexp.MustCompile(`https://drive\.google\.com/file/d/([\w-]+)`)
	cloudFileIDQueryRe = regexp.MustCompile(`id=([\w-]+)`)
)

// pageDocumentExts are the attachment extensions the local file parser
// understands.
var pageDocumentExts = map[string]bool{
	".pdf":  true,
	".pptx": true,
	".ppt":  true,
}

// Classify resolves a message to exactly one Classification.
//
// The order is a priority policy, not a coincidence: a gated-document link is
// the authoritative deck source and wins even when the message also carries a
// generic link or an attachment.
func Classify(msg Message) Classification {
	if gatedLinkRe.MatchString(msg.Text) {
		return ClassGatedDocument
	}
	for _, att := range msg.Attachments {
		if pageDocumentExts[strings.ToLower(filepath.Ext(att.Name))] {
			return ClassAttachment
		}
	}
	if cloudLinkRe.MatchString(msg.Text) {
		return ClassCloudFile
	}
	if anyLinkRe.MatchString(msg.Text) {
		return ClassGenericWeb
	}
	return ClassPlainText
}

// GatedLinks returns every gated-viewer link in the message, in text order.
func GatedLinks(text string) []string {
	return gatedLinkRe.FindAllString(text, -1)
}

// CloudLinks returns every cloud-file link in the message, in text order.
func CloudLinks(text string) []string {
	return cloudLinkRe.FindAllString(text, -1)
}

// Links returns every http(s) link in the message, in text order.
func Links(text string) []string {
	return anyLinkRe.FindAllString(text, -1)
}

// CloudFileID extracts the file id from a cloud-file link, trying the path
// form first and the id= query form second. Empty when neither matches.
func CloudFileID(link string) string {
	if m := cloudFileIDPathRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	if m := cloudFileIDQueryRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

// DeckLink returns the link worth persisting on the final record: the first
// gated or cloud link, verbatim, or empty.
func DeckLink(text string) string {
	if links := GatedLinks(text); len(links) > 0 {
		return links[0]
	}
	if links := CloudLinks(text); len(links) > 0 {
		return links[0]
	}
	return ""
}

// passwordRes are tried in order; the first capture wins. The last entry
// covers the localized marker that shows up in forwarded Asian-market decks.
var passwordRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password\s*[:：]\s*(\S+)`),
	regexp.MustCompile(`(?i)\bpw\s*[:：]\s*(\S+)`),
	regexp.MustCompile(`密碼\s*[:：]?\s*(\S+)`),
}

// Password extracts a document password embedded in the message, or "".
func Password(text string) string {
	for _, re := range passwordRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// companyNameRes are the ordered anchor patterns for pre-extracting a company
// name from the message before any model sees it. A direct textual match is
// considered more reliable than model inference, so the first hit overrides
// whatever the summarizer proposes.
var companyNameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?im)(?:^|\n|\s)(?:company|project|startup)\s*name\s*(?:is|[:：])\s*([^\n]+)`),
	regexp.MustCompile(`(?im)(?:^|\n|\s)(?:company|project|startup)\s*[:：]\s*([^\n]+)`),
	regexp.MustCompile(`(?m)(?:^|\n|\s)([A-Z][A-Za-z0-9&]*(?:\s[A-Z&][A-Za-z0-9&]*)*)\s+(?:is|are)\s+(?:a|an)\s+(?:company|startup|project)`),
	regexp.MustCompile(`(?im)(?:^|\n|\s)(?:about|introducing|presenting)\s+([A-Z][A-Za-z0-9&]*(?:\s[A-Z&][A-Za-z0-9&]*)*)`),
	regexp.MustCompile(`(?m)(?:^|\n|\s)([A-Z][A-Za-z0-9&]*(?:\s[A-Z&][A-Za-z0-9&]*)*)\s+(?:is|are)\s+(?:also|working|building)`),
}

var blurbLineRe = regexp.MustCompile(`(?im)(?:^|\n|\s)(?:blurb|description)\s*(?:is|[:：])\s*([^\n]+)`)

var (
	spaceRunRe   = regexp.MustCompile(`\s+`)
	nameCharsRe  = regexp.MustCompile(`[^\w\s&-]`)
	afterNameRe  = regexp.MustCompile(`([A-Z][A-Za-z0-9&]*(?:\s[A-Z&][A-Za-z0-9&]*)*)\s+(?:is|are)\s+(?:a|an)\s+(?:company|startup|project)`)
	leadWordsSet = map[string]bool{"about": true, "introducing": true, "presenting": true, "company": true, "project": true, "startup": true}
	tailWordsSet = map[string]bool{"is": true, "are": true, "working": true, "building": true}
)

// CompanyName guesses a company name from the message, or returns "".
//
// Candidates longer than three words are rejected: the patterns anchor on
// capitalized runs and anything longer is almost always a sentence fragment.
func CompanyName(text string) string {
	for _, re := range companyNameRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := cleanCompanyName(m[1]); name != "" {
				return name
			}
		}
	}

	// A blurb/description line often restates "<Name> is a company ...".
	if m := blurbLineRe.FindStringSubmatch(text); m != nil {
		if sub := afterNameRe.FindStringSubmatch(m[1]); sub != nil {
			if name := cleanCompanyName(sub[1]); name != "" {
				return name
			}
		}
	}

	// Last resort: a capitalized word adjacent to an introduction verb.
	words := strings.Fields(text)
	for i, word := range words {
		if len(word) < 2 || word[0] < 'A' || word[0] > 'Z' || !isAlpha(word) {
			continue
		}
		if i > 0 && leadWordsSet[strings.ToLower(words[i-1])] {
			return word
		}
		if i+1 < len(words) && tailWordsSet[strings.ToLower(words[i+1])] {
			return word
		}
	}
	return ""
}

func cleanCompanyName(raw string) string {
	name := nameCharsRe.ReplaceAllString(raw, "")
	name = strings.TrimSpace(spaceRunRe.ReplaceAllString(name, " "))
	if name == "" || len(strings.Fields(name)) > 3 {
		return ""
	}
	return name
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// IsSocialHost reports whether a URL points at a social network rather than
// hosted content. Social pages structurally resemble slide decks (image
// heavy, text light) and must never be treated as one.
func IsSocialHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	switch host {
	case "x.com", "twitter.com", "facebook.com", "linkedin.com", "instagram.com":
		return true
	}
	return false
}
