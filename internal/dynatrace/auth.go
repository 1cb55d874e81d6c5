package dynatrace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// tokenSkew is subtracted from expires_in so a token is never used in its
	// last seconds. It is also the minimum lifetime of a cached token.
	tokenSkew = 30 * time.Second
	// defaultExpiresIn applies when the token endpoint omits expires_in.
	defaultExpiresIn = 300
)

// TokenSource yields the Authorization header value for API requests.
type TokenSource interface {
	Authorization(ctx context.Context) (string, error)
	// Invalidate drops any cached credential so the next call obtains a fresh
	// one. It is called after the API answers 401.
	Invalidate()
}

// StaticToken authenticates with a fixed API token.
type StaticToken string

func (t StaticToken) Authorization(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("API token is empty")
	}
	return "Api-Token " + string(t), nil
}

// Invalidate is a no-op; a static token cannot be refreshed.
func (StaticToken) Invalidate() {}

// ClientCredentialsConfig holds the OAuth client-credentials settings of one
// environment. Scope, Resource and Audience are sent only when set.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	Resource     string
	Audience     string
}

// ClientCredentials obtains bearer tokens with the OAuth client-credentials
// grant and caches them until shortly before they expire.
type ClientCredentials struct {
	cfg    ClientCredentialsConfig
	client *resty.Client
	now    func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredentials creates a token source for cfg. timeout bounds each
// token request.
func NewClientCredentials(cfg ClientCredentialsConfig, timeout time.Duration) *ClientCredentials {
	client := resty.New().SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &ClientCredentials{cfg: cfg, client: client, now: time.Now}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (c *ClientCredentials) Authorization(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.now().Before(c.expiry) {
		if err := c.refresh(ctx); err != nil {
			return "", err
		}
	}
	return "Bearer " + c.token, nil
}

func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// refresh must be called with c.mu held.
func (c *ClientCredentials) refresh(ctx context.Context) error {
	form := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	}
	for key, value := range map[string]string{
		"scope":    c.cfg.Scope,
		"resource": c.cfg.Resource,
		"audience": c.cfg.Audience,
	} {
		if value != "" {
			form[key] = value
		}
	}

	resp, err := c.client.R().SetContext(ctx).SetFormData(form).Post(c.cfg.TokenURL)
	if err != nil {
		return fmt.Errorf("token request to %s: %w", c.cfg.TokenURL, err)
	}
	if !resp.IsSuccess() {
		return &StatusError{Path: c.cfg.TokenURL, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var payload tokenResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return errors.New("token response did not contain 'access_token'")
	}

	expiresIn := int64(defaultExpiresIn)
	if payload.ExpiresIn != "" {
		if expiresIn, err = payload.ExpiresIn.Int64(); err != nil {
			return fmt.Errorf("token response has invalid expires_in %q: %w", payload.ExpiresIn, err)
		}
	}
	lifetime := time.Duration(expiresIn)*time.Second - tokenSkew
	if lifetime < tokenSkew {
		lifetime = tokenSkew
	}

	c.token = payload.AccessToken
	c.expiry = c.now().Add(lifetime)
	return nil
}
