package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/thesavant42/rulesearch/internal/models"
	"github.com/valyala/fastjson"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	apiPrefix      = "/api/v2/"
	defaultTimeout = 30 * time.Second
	defaultDomain  = "zendesk.com"
	userAgent      = "rulesearch/1.0"
	maxRetries     = 3
)

// StatusError is returned when the API answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is a rate limit or temporary outage
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// Options configures a Client
type Options struct {
	BaseURL   string        // https://acme.zendesk.com
	Email     string        // agent email for API token auth
	Token     string        // API token
	Timeout   time.Duration // per request, 30s if zero
	PageDelay time.Duration // minimum spacing between requests, none if zero
	RetryBase time.Duration // first rate-limit backoff, 10s if zero
	Logger    *log.Logger
}

// Client fetches rule pages from the helpdesk REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	token      string
	limiter    *rate.Limiter
	retryBase  time.Duration
	logger     *log.Logger
	parsers    fastjson.ParserPool
}

// NewClient creates an API client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = 10 * time.Second
	}

	var limiter *rate.Limiter
	if opts.PageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.PageDelay), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		email:     opts.Email,
		token:     opts.Token,
		limiter:   limiter,
		retryBase: retryBase,
		logger:    opts.Logger,
	}
}

// BaseURL returns the account URL requests are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveBaseURL turns a subdomain, hostname or URL into an https base URL
// Examples:
//   - "acme" -> "https://acme.zendesk.com"
//   - "acme.zendesk.com" -> "https://acme.zendesk.com"
//   - "http://localhost:8080/" -> "http://localhost:8080"
func ResolveBaseURL(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty account URL")
	}

	// Full URLs are used as given (minus path), so local and proxied endpoints work
	if strings.Contains(input, "://") {
		parsed, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		if parsed.Host == "" {
			return "", fmt.Errorf("invalid URL: missing host in %q", input)
		}
		return parsed.Scheme + "://" + parsed.Host, nil
	}

	host := strings.ToLower(strings.TrimSuffix(input, "."))
	host = strings.TrimSuffix(host, "/")

	// Bare subdomain
	if !strings.Contains(host, ".") {
		return "https://" + host + "." + defaultDomain, nil
	}

	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return "", fmt.Errorf("invalid account host %q: %w", host, err)
	}
	return "https://" + host, nil
}

// Endpoint builds the first-page path for a resource type
// e.g. /api/v2/macros/active.json
func Endpoint(rt models.ResourceType, onlyActive bool) string {
	if !rt.Valid() {
		rt = models.DefaultResourceType
	}
	path := apiPrefix + string(rt)
	if onlyActive {
		path += "/active"
	}
	return path + ".json"
}

// resolve turns an endpoint path into a full URL. next_page cursors are already absolute.
func (c *Client) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return c.baseURL + target
}

// FetchPage fetches and decodes one page of rules.
// target is either an Endpoint path or a next_page URL returned by the previous page.
// Rate-limited responses are retried with exponential backoff.
func (c *Client) FetchPage(ctx context.Context, rt models.ResourceType, target string) (*models.Page, error) {
	retryCount := 0
	for {
		body, err := c.get(ctx, target)
		if err == nil {
			return c.parsePage(body, string(rt))
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable() || retryCount >= maxRetries {
			if retryCount >= maxRetries {
				return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			return nil, err
		}

		retryCount++
		backoff := c.retryBase << (retryCount - 1)
		if statusErr.retryAfter > 0 {
			backoff = statusErr.retryAfter
		}
		if c.logger != nil {
			c.logger.Warn("Rate limited, waiting", "backoff", backoff, "retry", retryCount, "maxRetries", maxRetries)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request cancelled: %w", err)
		}
	}

	reqURL := c.resolve(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Failed to create request", "url", reqURL, "error", err)
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	if c.email != "" && c.token != "" {
		req.SetBasicAuth(c.email+"/token", c.token)
	} else if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.logger != nil {
		c.logger.Info("GET", "endpoint", reqURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Request failed", "url", reqURL, "error", err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Debug("Rate limit", "remaining", resp.Header.Get("X-Rate-Limit-Remaining"), "status", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip") {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.logger != nil {
			c.logger.Error("API error", "status", resp.StatusCode, "response", string(body))
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return body, nil
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parsePage decodes the page envelope: { "<collection>": [...], "next_page": "...", "count": n }
// Records whose own fields have the wrong shape are skipped and counted rather than
// failing the page. Odd action values do not count: they decode as no value.
func (c *Client) parsePage(body []byte, collection string) (*models.Page, error) {
	p := c.parsers.Get()
	defer c.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("unexpected response type %s", v.Type())
	}

	items := v.Get(collection)
	if items == nil {
		return nil, fmt.Errorf("response has no %q collection", collection)
	}
	raw, err := items.Array()
	if err != nil {
		return nil, fmt.Errorf("collection %q is not an array: %w", collection, err)
	}

	page := &models.Page{
		Rules: make([]models.Rule, 0, len(raw)),
		Count: v.GetInt("count"),
	}

	var buf []byte
	for i, item := range raw {
		buf = item.MarshalTo(buf[:0])
		var rule models.Rule
		if err := json.Unmarshal(buf, &rule); err != nil {
			page.Skipped++
			if c.logger != nil {
				c.logger.Warn("Skipping malformed rule", "index", i, "error", err)
			}
			continue
		}
		page.Rules = append(page.Rules, rule)
	}

	if next := v.Get("next_page"); next != nil && next.Type() == fastjson.TypeString {
		page.NextPage = string(next.GetStringBytes())
	}

	return page, nil
}
