package designapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go_certhub/internal/config"

	"github.com/sirupsen/logrus"
)

// Client talks to an external design/rendering provider that turns a design
// plus text substitutions into a finished PDF. Authentication is OAuth2
// client credentials; the bearer token is cached until shortly before expiry.
type Client struct {
	cfg    config.DesignAPIConfig
	http   *http.Client
	logger *logrus.Entry

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.DesignAPIConfig, logger *logrus.Entry) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.WithField("component", "design-api"),
	}
}

// Enabled reports whether the remote provider is configured
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.BaseURL != "" && c.cfg.TokenURL != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	c.token = tok.AccessToken
	// Refresh a minute early to avoid using a token mid-expiry
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > 2*time.Minute {
		ttl -= time.Minute
	}
	c.tokenExpiry = time.Now().Add(ttl)
	return c.token, nil
}

type renderRequest struct {
	DesignID      string            `json:"design_id"`
	Format        string            `json:"format"`
	Substitutions map[string]string `json:"substitutions"`
}

type renderResponse struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// Render asks the provider to produce a PDF for the design with the given
// text substitutions and returns the URL of the finished document.
func (c *Client) Render(ctx context.Context, designID string, substitutions map[string]string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(renderRequest{
		DesignID:      designID,
		Format:        "pdf",
		Substitutions: substitutions,
	})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/renders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("render endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode render response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("render response has no document URL (status %q)", out.Status)
	}

	c.logger.WithField("design_id", designID).Info("Remote render completed")
	return out.URL, nil
}

// Download fetches the finished document bytes
func (c *Client) Download(ctx context.Context, docURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
