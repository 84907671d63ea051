package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type Result struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ServiceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

type HealthStatus struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Deployments    int        `json:"deployments"`
	LastDeployedAt *time.Time `json:"lastDeployedAt,omitempty"`
}

// Event is one message from the /ws stream.
type Event struct {
	Type    string          `json:"type"`
	JobID   string          `json:"jobId"`
	Repo    string          `json:"repo"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) Health() (*HealthStatus, error) {
	var h HealthStatus
	if err := c.get("/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Me() (*User, error) {
	var u User
	if err := c.get("/api/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

type Repo struct {
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Private     bool      `json:"private"`
	Language    string    `json:"language"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repos lists the repositories the signed-in user can deploy.
func (c *Client) Repos() ([]Repo, error) {
	var body struct {
		Repos []Repo `json:"repos"`
	}
	if err := c.get("/api/repos", &body); err != nil {
		return nil, err
	}
	return body.Repos, nil
}

func (c *Client) Version() (string, error) {
	var v struct {
		Version string `json:"version"`
	}
	if err := c.get("/api/version", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Deploy blocks until the server finishes the job. A failed deployment
// is reported in the Result, not as an error.
func (c *Client) Deploy(ctx context.Context, repo string) (*Result, error) {
	body, _ := json.Marshal(map[string]string{"repoFullName": repo})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/deploy", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	// Builds can take minutes; the request is bounded by ctx only.
	hc := *c.HTTPClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("HTTP %d: unreadable response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK && res.Success {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && res.Error == "" {
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return &res, nil
}

// WebSocketURL is the event stream address, carrying the token as a
// query parameter.
func (c *Client) WebSocketURL() string {
	base := c.BaseURL
	base = strings.Replace(base, "http://", "ws://", 1)
	base = strings.Replace(base, "https://", "wss://", 1)
	u := base + "/ws"
	if c.Token != "" {
		u += "?token=" + url.QueryEscape(c.Token)
	}
	return u
}

func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}
