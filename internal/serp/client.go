// Package serp fetches Google result pages through SerpAPI and reads the AI
// overview and organic blocks out of them.
package serp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/metrics"
)

const (
	DefaultBaseURL = "https://serpapi.com"
	maxAttempts    = 3
	resultsPerPage = 20
)

// Response is the decoded SerpAPI JSON document.
type Response map[string]interface{}

// Adapter fetches one result page.
type Adapter interface {
	Fetch(ctx context.Context, keyword string, locale Locale) (Response, error)
}

// QuotaBlockedError means the upstream account is out of searches. It is
// terminal and never retried.
type QuotaBlockedError struct {
	Message string
}

func (e *QuotaBlockedError) Error() string {
	return fmt.Sprintf("serp quota blocked: %s", e.Message)
}

// IsQuotaBlocked reports whether err carries a QuotaBlockedError.
func IsQuotaBlocked(err error) bool {
	var qb *QuotaBlockedError
	return errors.As(err, &qb)
}

var quotaPhrases = []string{
	"run out of searches",
	"searches for the month",
	"plan searches",
	"account has been suspended",
	"quota",
}

type ClientOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Metrics *metrics.Metrics
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is the SerpAPI adapter. It performs at most three attempts with
// exponential backoff (1s base, x2, 20% jitter).
type Client struct {
	http    *resty.Client
	apiKey  string
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		apiKey:  opts.APIKey,
		metrics: opts.Metrics,
		sleep:   sleep,
	}
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) Fetch(ctx context.Context, keyword string, locale Locale) (Response, error) {
	policy := newBackOff()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, retry, err := c.fetchOnce(ctx, keyword, locale)
		if err == nil {
			c.metrics.SerpFetch("ok")
			return resp, nil
		}
		lastErr = err
		if !retry {
			break
		}
		if attempt == maxAttempts {
			break
		}

		wait := policy.NextBackOff()
		log.Warn().
			Err(err).
			Str("keyword", keyword).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("[serp.Client.Fetch] attempt failed, backing off")
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	switch {
	case IsQuotaBlocked(lastErr):
		c.metrics.SerpFetch("quota_blocked")
	default:
		c.metrics.SerpFetch("error")
	}
	return nil, lastErr
}

// fetchOnce performs one request and reports whether a failure is retryable.
func (c *Client) fetchOnce(ctx context.Context, keyword string, locale Locale) (Response, bool, error) {
	var body Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":        "google",
			"q":             keyword,
			"location":      locale.Location,
			"gl":            locale.GL,
			"hl":            locale.HL,
			"google_domain": locale.GoogleDomain,
			"num":           fmt.Sprint(resultsPerPage),
			"api_key":       c.apiKey,
		}).
		SetResult(&body).
		SetError(&body).
		Get("/search.json")
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("serp request failed: %w", err)
	}

	msg := errorMessage(body)
	if msg != "" && isQuotaMessage(msg) {
		return nil, false, &QuotaBlockedError{Message: msg}
	}

	status := resp.StatusCode()
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("serp returned status %d: %s", status, msg)
	case status >= 400:
		return nil, false, fmt.Errorf("serp returned status %d: %s", status, msg)
	}
	if body == nil {
		body = Response{}
	}
	return body, false, nil
}

func errorMessage(body Response) string {
	if body == nil {
		return ""
	}
	if s, ok := body["error"].(string); ok {
		return s
	}
	return ""
}

func isQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range quotaPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
