package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// cookie is the persisted subset of a browser cookie. The file outlives the
// process so interactive logins are rare.
type cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

func loadCookies(path string) ([]cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []cookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookie file: %w", err)
	}
	return cookies, nil
}

func saveCookies(path string, cookies []cookie) error {
	b, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	// Session cookies carry credentials; keep the file owner-only.
	return os.WriteFile(path, b, 0o600)
}

// setCookiesAction installs persisted cookies into the browser before
// navigation.
func setCookiesAction(cookies []cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

// readCookiesAction captures the browser's current cookies.
func readCookiesAction(out *[]cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		browserCookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies := make([]cookie, 0, len(browserCookies))
		for _, c := range browserCookies {
			cookies = append(cookies, cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			})
		}
		*out = cookies
		return nil
	})
}
