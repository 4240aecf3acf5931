// Package llm wraps the Gemini API behind the two operations the pipeline
// needs: a schema-constrained completion and a search-grounded lookup. Retry,
// backoff and the global rate limit live here so callers stay sequential and
// simple.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Completer issues one structured completion constrained to a JSON schema
// and returns the raw JSON text of the response.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// Searcher answers a query with search-grounded model output.
type Searcher interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}

// SearchResult is the grounded answer plus its audit trail.
type SearchResult struct {
	Content string
	Sources []string
	Queries []string
}

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// RequestTimeout bounds one attempt, not the whole retry loop.
	RequestTimeout time.Duration
	// MaxRetries is the extra-attempt budget for transient failures.
	MaxRetries int
	// RateLimitRPS is a global limit across all calls. <=0 disables.
	RateLimitRPS float64

	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitterFrac float64

	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 200 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 2 * time.Second
	}
	if c.BackoffJitterFrac <= 0 {
		c.BackoffJitterFrac = 0.2
	}
	return c
}

// Client is the process-scoped Gemini client, constructed once at startup and
// passed into every component that completes or searches.
type Client struct {
	client  *genai.Client
	model   string
	cfg     Config
	limiter *rate.Limiter
	logger  *log.Logger
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}
	cfg = cfg.withDefaults()

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		client:  client,
		model:   strings.TrimSpace(cfg.Model),
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Model returns the configured model name, for audit records.
func (c *Client) Model() string { return c.model }

// Complete runs one structured completion and returns the response JSON text.
func (c *Client) Complete(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	var out string
	err := c.do(ctx, "complete", func(attemptCtx context.Context) error {
		resp, err := c.client.Models.GenerateContent(
			attemptCtx,
			c.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				CandidateCount:   1,
				ResponseMIMEType: "application/json",
				ResponseSchema:   schema,
			},
		)
		if err != nil {
			return classifyErr(err)
		}
		out = resp.Text()
		if strings.TrimSpace(out) == "" {
			return &LimitedTransientError{Err: errors.New("empty completion"), ExtraRetries: 1}
		}
		return nil
	})
	return out, err
}

// Search answers a query with GoogleSearch grounding enabled and collects the
// grounding sources/queries for the run trace.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	var out SearchResult
	err := c.do(ctx, "search", func(attemptCtx context.Context) error {
		resp, err := c.client.Models.GenerateContent(
			attemptCtx,
			c.model,
			genai.Text(query),
			&genai.GenerateContentConfig{
				Tools: []*genai.Tool{
					{GoogleSearch: &genai.GoogleSearch{}},
				},
				CandidateCount: 1,
			},
		)
		if err != nil {
			return classifyErr(err)
		}
		out = SearchResult{
			Content: resp.Text(),
			Sources: extractSources(resp),
			Queries: extractWebSearchQueries(resp),
		}
		return nil
	})
	return out, err
}

// do runs one attempt function under the rate limit, per-attempt timeout and
// transient-retry budget.
func (c *Client) do(ctx context.Context, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		start := time.Now()
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}

		budget := maxExtraRetries(c.cfg.MaxRetries, err)
		if !isTransient(err) || attempt >= budget {
			return err
		}
		sleep := backoffSleep(c.cfg.BackoffInitial, c.cfg.BackoffMax, c.cfg.BackoffJitterFrac, attempt)
		c.logger.Printf("llm %s: attempt=%d duration=%s transient=%q retryIn=%s",
			op, attempt+1, time.Since(start).Round(time.Millisecond), err.Error(), sleep.Round(time.Millisecond))

		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &TransientError{Err: err}
	}
	return err
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxExtraRetries(defaultRetries int, err error) int {
	if defaultRetries < 0 {
		defaultRetries = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		limited := capErr.MaxExtraRetries()
		if limited < 0 {
			limited = 0
		}
		if limited < defaultRetries {
			return limited
		}
	}
	return defaultRetries
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}

func extractSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	c := resp.Candidates[0]

	var out []string
	if c.GroundingMetadata != nil {
		for _, chunk := range c.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil {
				continue
			}
			if strings.TrimSpace(chunk.Web.URI) != "" {
				out = append(out, strings.TrimSpace(chunk.Web.URI))
			}
		}
	}
	return dedupePreserveOrder(out)
}

func extractWebSearchQueries(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	c := resp.Candidates[0]
	if c.GroundingMetadata == nil {
		return nil
	}
	return dedupePreserveOrder(c.GroundingMetadata.WebSearchQueries)
}

func dedupePreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
