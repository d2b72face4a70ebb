package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the v2 API endpoint.
const DefaultBaseURL = "https://api.thetvdb.com"

// ErrNotFound is returned when the service has no series matching a search.
var ErrNotFound = errors.New("tvdb: not found")

// Credentials identify a TVDB account. All three values are required.
type Credentials struct {
	APIKey   string
	UserKey  string
	Username string
}

// Complete reports whether every credential is present.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.UserKey) != "" && strings.TrimSpace(c.Username) != ""
}

// Series is one search hit.
type Series struct {
	ID         int64  `json:"id"`
	SeriesName string `json:"seriesName"`
	FirstAired string `json:"firstAired"`
	Network    string `json:"network"`
}

// Episode describes one aired episode.
type Episode struct {
	ID                 int64  `json:"id"`
	EpisodeName        string `json:"episodeName"`
	AiredSeason        int    `json:"airedSeason"`
	AiredEpisodeNumber int    `json:"airedEpisodeNumber"`
	FirstAired         string `json:"firstAired"`
}

type searchResponse struct {
	Data []Series `json:"data"`
}

type episodesResponse struct {
	Links struct {
		Next *int `json:"next"`
		Last *int `json:"last"`
	} `json:"links"`
	Data []Episode `json:"data"`
}

// Client talks to the TVDB v2 REST API. Tokens are cached per credential set
// and refreshed once when the service answers 401.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu     sync.Mutex
	tokens map[Credentials]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithRateLimit paces outgoing requests.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// New creates a TVDB client.
func New(opts ...Option) *Client {
	client := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		tokens:     make(map[Credentials]string),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	if !creds.Complete() {
		return "", errors.New("tvdb credentials incomplete")
	}
	body, err := json.Marshal(map[string]string{
		"apikey":   creds.APIKey,
		"userkey":  creds.UserKey,
		"username": creds.Username,
	})
	if err != nil {
		return "", fmt.Errorf("encode login payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError("login", resp)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode tvdb login response: %w", err)
	}
	if payload.Token == "" {
		return "", errors.New("tvdb login returned empty token")
	}

	c.mu.Lock()
	c.tokens[creds] = payload.Token
	c.mu.Unlock()
	return payload.Token, nil
}

// SearchSeries returns series matching name in the service's own ordering.
func (c *Client) SearchSeries(ctx context.Context, creds Credentials, name string) ([]Series, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("series name must not be empty")
	}
	params := url.Values{}
	params.Set("name", name)

	var payload searchResponse
	if err := c.getJSON(ctx, creds, "/search/series?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("series %q: %w", name, ErrNotFound)
	}
	return payload.Data, nil
}

// Episodes returns every episode of a series, following links.next across
// pages.
func (c *Client) Episodes(ctx context.Context, creds Credentials, seriesID int64) ([]Episode, error) {
	var episodes []Episode
	page := 1
	for {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		var payload episodesResponse
		path := fmt.Sprintf("/series/%d/episodes?%s", seriesID, params.Encode())
		if err := c.getJSON(ctx, creds, path, &payload); err != nil {
			return nil, err
		}
		episodes = append(episodes, payload.Data...)
		if payload.Links.Next == nil || *payload.Links.Next <= page {
			return episodes, nil
		}
		page = *payload.Links.Next
	}
}

func (c *Client) getJSON(ctx context.Context, creds Credentials, path string, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.token(ctx, creds)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.do(ctx, req)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			resp.Body.Close()
			c.forget(creds)
			continue
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		case resp.StatusCode != http.StatusOK:
			err := statusError(path, resp)
			resp.Body.Close()
			return err
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode tvdb response: %w", err)
		}
		return nil
	}
}

func (c *Client) token(ctx context.Context, creds Credentials) (string, error) {
	c.mu.Lock()
	token, ok := c.tokens[creds]
	c.mu.Unlock()
	if ok {
		return token, nil
	}
	return c.Login(ctx, creds)
}

func (c *Client) forget(creds Credentials) {
	c.mu.Lock()
	delete(c.tokens, creds)
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tvdb rate limit: %w", err)
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", time.Since(start), err)
	}
	return resp, nil
}

func statusError(operation string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("tvdb %s returned %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
