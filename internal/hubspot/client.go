package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrEmptyResponse marks a decoded envelope with no results field at all,
// as opposed to a well-formed envelope with zero results.
var ErrEmptyResponse = errors.New("hubspot: empty response envelope")

// Config holds client configuration.
type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client talks to the HubSpot CRM v3 API. The access token is process-wide
// state set by the token manager and read before every call; it is guarded
// because extractions run concurrently.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	clientID       string
	clientSecret   string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	mu          sync.RWMutex
	accessToken string
}

// New creates a new HubSpot client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "hubspot"),
	}
}

// SetAccessToken replaces the access token used for subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Search fetches one page of records modified inside the request window,
// sorted ascending by the filter property.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	body := map[string]any{
		"filterGroups": []any{c.windowFilter(req)},
		"sorts": []any{map[string]any{
			"propertyName": req.FilterProperty,
			"direction":    "ASCENDING",
		}},
		"properties": req.Properties,
		"limit":      req.Limit,
	}
	if req.After != "" {
		body["after"] = req.After
	}

	var page SearchPage
	path := fmt.Sprintf("/crm/v3/objects/%s/search", req.ObjectType)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &page); err != nil {
		return nil, fmt.Errorf("search %s: %w", req.ObjectType, err)
	}

	return &page, nil
}

func (c *Client) windowFilter(req SearchRequest) map[string]any {
	if req.Since.IsZero() {
		return map[string]any{}
	}
	return map[string]any{
		"filters": []any{
			map[string]any{
				"propertyName": req.FilterProperty,
				"operator":     "GTE",
				"value":        strconv.FormatInt(req.Since.UnixMilli(), 10),
			},
			map[string]any{
				"propertyName": req.FilterProperty,
				"operator":     "LTE",
				"value":        strconv.FormatInt(req.Until.UnixMilli(), 10),
			},
		},
	}
}

// GetByID fetches a single record with the provider's default property set.
func (c *Client) GetByID(ctx context.Context, objectType, id string) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", objectType, id, err)
	}
	return &record, nil
}

type associationReadResponse struct {
	Results []struct {
		From struct {
			ID string `json:"id"`
		} `json:"from"`
		To []struct {
			ID string `json:"id"`
		} `json:"to"`
	} `json:"results"`
}

// BatchReadAssociations resolves associations for a batch of source ids in
// one call. Ids with no association are absent from the result.
func (c *Client) BatchReadAssociations(ctx context.Context, fromType, toType string, ids []string) ([]Association, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	inputs := make([]map[string]string, len(ids))
	for i, id := range ids {
		inputs[i] = map[string]string{"id": id}
	}

	var resp associationReadResponse
	path := fmt.Sprintf("/crm/v3/associations/%s/%s/batch/read",
		strings.ToUpper(fromType), strings.ToUpper(toType))
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"inputs": inputs}, &resp); err != nil {
		return nil, fmt.Errorf("batch read associations %s->%s: %w", fromType, toType, err)
	}

	associations := make([]Association, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.From.ID == "" || len(r.To) == 0 {
			continue
		}
		a := Association{FromID: r.From.ID}
		for _, to := range r.To {
			a.ToIDs = append(a.ToIDs, to.ID)
		}
		associations = append(associations, a)
	}
	return associations, nil
}

// ExchangeRefreshToken trades a refresh token for a fresh access token.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange refresh token: unexpected status: %d", resp.StatusCode)
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &token, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.doOnce(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &requestError{err: err, retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &requestError{
			err:       fmt.Errorf("unexpected status: %d", resp.StatusCode),
			retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

type requestError struct {
	err       error
	retryable bool
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *requestError
	return errors.As(err, &re) && re.retryable
}
