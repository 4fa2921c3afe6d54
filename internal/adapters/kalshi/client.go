package kalshi

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the production trade API.
	DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	// DemoBaseURL is the paper-trading environment.
	DemoBaseURL = "https://demo-api.kalshi.co/trade-api/v2"
)

// apiError carries a non-2xx response so callers can branch on the status.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("kalshi: HTTP %d: %s", e.Status, e.Body)
}

func isRetryable(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == 408 || code == 429 || (code >= 500 && code <= 599)
}

// Client is the signed HTTP client shared by the trading and market-data
// adapters.
type Client struct {
	http     *resty.Client
	creds    *Credentials
	signPath string // base URL path, prepended to endpoint paths when signing
}

// NewClient builds a client against baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, creds *Credentials) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewClient: parse base URL %q: %w", baseURL, err)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(isRetryable)

	return &Client{
		http:     httpClient,
		creds:    creds,
		signPath: u.Path,
	}, nil
}

// do signs and executes one request. out, when non-nil, receives the decoded
// JSON body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	headers, err := c.creds.Headers(method, c.signPath+path)
	if err != nil {
		return fmt.Errorf("kalshi: sign %s %s: %w", method, path, err)
	}

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("kalshi: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &apiError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}
