package linkedin

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/sourcedesk/dealflow/internal/extract"
	"github.com/sourcedesk/dealflow/internal/extract/browser"
)

const (
	feedURL   = "https://www.linkedin.com/feed/"
	loginURL  = "https://www.linkedin.com/login"
	searchURL = "https://www.linkedin.com/search/results/people/?keywords="

	navigateTimeout = 30 * time.Second
	settleWait      = 2 * time.Second
	loginWait       = 3 * time.Second
)

type Config struct {
	Username   string
	Password   string
	CookiePath string
	Headless   bool
	Logger     *log.Logger

	// ChallengeWait is invoked when a security challenge blocks the login,
	// giving an operator the chance to resolve it in the visible browser.
	// Nil fails the lookup instead.
	ChallengeWait func(ctx context.Context) error
}

// Lookup performs identity-verified profile lookups through a logged-in
// browser session.
type Lookup struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config) *Lookup {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Lookup{cfg: cfg, logger: logger}
}

// Find searches for "<company> <founder>", opens the first profile result
// and parses it. The profile is returned only when its displayed name
// matches the founder exactly (case-insensitive); otherwise everything is
// discarded. The browser is released on all paths.
func (l *Lookup) Find(ctx context.Context, company, founder string) (Profile, error) {
	if strings.TrimSpace(founder) == "" {
		return Profile{}, ErrNoResult
	}

	sess, err := browser.NewSession(ctx, l.cfg.Headless)
	if err != nil {
		return Profile{}, fmt.Errorf("launch browser: %w", err)
	}
	defer sess.Close()

	page, cancelPage := sess.NewPage()
	defer cancelPage()

	if err := l.ensureLoggedIn(page); err != nil {
		return Profile{}, err
	}

	profileURL, err := l.firstResult(page, company, founder)
	if err != nil {
		return Profile{}, err
	}

	html, err := l.snapshotProfile(page, profileURL)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	parsed, err := ParseProfile(html, profileURL)
	if err != nil {
		return Profile{}, err
	}
	if !matchesName(parsed.Name, founder) {
		l.logger.Printf("linkedin: displayed name %q does not match founder %q, discarding", parsed.Name, founder)
		return Profile{}, ErrIdentityMismatch
	}
	return parsed, nil
}

// ensureLoggedIn restores the cookie session and falls back to an
// interactive login. A fresh login persists its cookies for the next run.
func (l *Lookup) ensureLoggedIn(page context.Context) error {
	if l.cfg.CookiePath != "" {
		if cookies, err := loadCookies(l.cfg.CookiePath); err == nil && len(cookies) > 0 {
			if err := chromedp.Run(page, setCookiesAction(cookies)); err != nil {
				l.logger.Printf("linkedin: cookie restore failed: %v", err)
			}
		}
	}

	current, err := l.navigate(page, feedURL)
	if err != nil {
		return fmt.Errorf("probe session: %w", err)
	}
	if strings.Contains(current, "/feed") {
		return nil
	}

	if l.cfg.Username == "" || l.cfg.Password == "" {
		return fmt.Errorf("no live session and no credentials configured")
	}
	l.logger.Printf("linkedin: session expired, logging in")
	if err := l.login(page); err != nil {
		return err
	}

	if l.cfg.CookiePath != "" {
		var cookies []cookie
		if err := chromedp.Run(page, readCookiesAction(&cookies)); err != nil {
			l.logger.Printf("linkedin: cookie capture failed: %v", err)
		} else if err := saveCookies(l.cfg.CookiePath, cookies); err != nil {
			l.logger.Printf("linkedin: cookie save failed: %v", err)
		}
	}
	return nil
}

func (l *Lookup) login(page context.Context) error {
	if _, err := l.navigate(page, loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	err := chromedp.Run(page,
		chromedp.SendKeys("#username", l.cfg.Username, chromedp.ByID),
		chromedp.SendKeys("#password", l.cfg.Password, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(loginWait),
	)
	if err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	var current, html string
	if err := chromedp.Run(page,
		chromedp.Location(&current),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("inspect post-login page: %w", err)
	}
	if isChallenge(current, html) {
		if l.cfg.ChallengeWait == nil {
			return fmt.Errorf("login blocked by a security challenge")
		}
		l.logger.Printf("linkedin: security challenge detected, waiting for manual resolution")
		if err := l.cfg.ChallengeWait(page); err != nil {
			return fmt.Errorf("challenge not resolved: %w", err)
		}
	}

	current, err = l.navigate(page, feedURL)
	if err != nil {
		return fmt.Errorf("verify login: %w", err)
	}
	if !strings.Contains(current, "/feed") {
		return fmt.Errorf("login did not produce a live session")
	}
	return nil
}

// challengeMarkers are page-text fragments shown on verification walls.
var challengeMarkers = []string{
	"security check",
	"verification code",
	"let's do a quick security check",
	"verify it's you",
}

// isChallenge detects the verification wall from the URL and page text.
func isChallenge(currentURL, html string) bool {
	if strings.Contains(currentURL, "/checkpoint/") || strings.Contains(currentURL, "/challenge") {
		return true
	}
	lower := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// firstResult runs the people search and returns the first profile URL.
func (l *Lookup) firstResult(page context.Context, company, founder string) (string, error) {
	query := strings.TrimSpace(company + " " + founder)
	if _, err := l.navigate(page, searchURL+url.QueryEscape(query)); err != nil {
		return "", fmt.Errorf("search: %w", err)
	}

	var html string
	if err := chromedp.Run(page, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read search results: %w", err)
	}
	link := firstProfileLink(html)
	if link == "" {
		return "", ErrNoResult
	}
	return link, nil
}

// firstProfileLink pulls the first profile href out of a search result page.
func firstProfileLink(html string) string {
	gdoc, err := extract.ParseHTML(html)
	if err != nil {
		return ""
	}
	var link string
	gdoc.Find(`a[href*="/in/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		link = normalizeProfileURL(href)
		return link == ""
	})
	return link
}

// normalizeProfileURL strips tracking query parameters and resolves
// relative hrefs against the site origin.
func normalizeProfileURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !strings.Contains(u.Path, "/in/") {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	if u.Host == "" {
		u.Scheme = "https"
		u.Host = "www.linkedin.com"
	}
	return u.String()
}

// snapshotProfile opens the profile and scrolls it so the lazy sections
// render, then captures the HTML.
func (l *Lookup) snapshotProfile(page context.Context, profileURL string) (string, error) {
	if _, err := l.navigate(page, profileURL); err != nil {
		return "", err
	}
	// Experience and education render on scroll.
	for i := 0; i < 4; i++ {
		if err := chromedp.Run(page,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
			chromedp.Sleep(time.Second),
		); err != nil {
			return "", err
		}
	}
	var html string
	if err := chromedp.Run(page, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (l *Lookup) navigate(page context.Context, target string) (string, error) {
	nctx, cancel := context.WithTimeout(page, navigateTimeout)
	defer cancel()

	var current string
	err := chromedp.Run(nctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleWait),
		chromedp.Location(&current),
	)
	return current, err
}
