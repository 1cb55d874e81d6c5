// Package dynatrace implements page fetching against the Dynatrace
// environment API, including authentication.
package dynatrace

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/pagination"
)

// NextPageKeyHeader carries the v1 continuation token.
const NextPageKeyHeader = "Next-Page-Key"

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

// ClientOptions tunes the HTTP behaviour of a Client.
type ClientOptions struct {
	Timeout   time.Duration
	Retries   int           // retries on transport errors, 429 and 5xx
	RetryWait time.Duration // initial wait between retries; resty default when zero
	Logger    *zap.Logger
}

// Client fetches pages from one Dynatrace environment. It implements
// pagination.Fetcher.
type Client struct {
	BaseURL string
	tokens  TokenSource
	client  *resty.Client
	logger  *zap.Logger
}

var _ pagination.Fetcher = (*Client)(nil)

// NewClient creates a Client for the environment at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ClientOptions) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.RetryWait > 0 {
		client.SetRetryWaitTime(opts.RetryWait)
	}

	return &Client{
		BaseURL: baseURL,
		tokens:  tokens,
		client:  client,
		logger:  logger,
	}
}

// Fetch performs one GET. A 401 invalidates the token source and the request
// is retried exactly once with a fresh credential.
func (c *Client) Fetch(ctx context.Context, req pagination.Request) (*pagination.Response, error) {
	resp, err := c.get(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		c.logger.Warn("Request unauthorized, refreshing credentials", zap.String("path", req.Path))
		c.tokens.Invalidate()
		if resp, err = c.get(ctx, req); err != nil {
			return nil, err
		}
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{Path: req.Path, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return &pagination.Response{
		Body:        resp.Body(),
		NextPageKey: resp.Header().Get(NextPageKeyHeader),
	}, nil
}

func (c *Client) get(ctx context.Context, req pagination.Request) (*resty.Response, error) {
	auth, err := c.tokens.Authorization(ctx)
	if err != nil {
		return nil, fmt.Errorf("authorize request to %s: %w", req.Path, err)
	}

	r := c.client.R().SetContext(ctx).SetHeader("Authorization", auth)
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	resp, err := r.Get(req.Path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", req.Path, err)
	}
	c.logger.Debug("Fetched",
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", resp.Time()))
	return resp, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("dynatrace.Client{baseURL=%s}", c.BaseURL)
}
