// Package hydration enriches post and user IDs with display metadata from
// the content backend. Every lookup is timeout-bounded and best-effort;
// failures degrade to missing data and never propagate into scoring.
package hydration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Post is the display metadata for one post.
type Post struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	AuthorID   int64  `json:"authorId"`
	AuthorName string `json:"authorName"`
	Category   string `json:"category"`
}

// UserProfile is the display metadata for one user.
type UserProfile struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Client talks to the content backend's internal lookup endpoints.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a hydration client. An empty baseURL disables lookups;
// every call then returns no data.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger,
	}
}

// PostInfo fetches one post's metadata, or nil when unavailable.
func (c *Client) PostInfo(ctx context.Context, postID int64) *Post {
	if c.baseURL == "" {
		return nil
	}
	var post Post
	if !c.getJSON(ctx, c.baseURL+"/internal/posts/"+strconv.FormatInt(postID, 10), &post) {
		return nil
	}
	if post.ID == 0 {
		return nil
	}
	return &post
}

// BatchPostInfo fetches metadata for many posts in one call. Posts the
// backend does not know are absent from the result; on failure the map is
// empty, never nil semantics the caller must special-case.
func (c *Client) BatchPostInfo(ctx context.Context, postIDs []int64) map[int64]*Post {
	result := make(map[int64]*Post, len(postIDs))
	if c.baseURL == "" || len(postIDs) == 0 {
		return result
	}

	body, err := json.Marshal(map[string]any{"postIds": postIDs})
	if err != nil {
		return result
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/posts/batch", bytes.NewReader(body))
	if err != nil {
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("batch post hydration failed", slog.String("error", err.Error()))
		return result
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("batch post hydration failed",
			slog.Int("status", resp.StatusCode))
		return result
	}

	var payload struct {
		Posts []Post `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("batch post hydration decode failed", slog.String("error", err.Error()))
		return result
	}
	for i := range payload.Posts {
		post := payload.Posts[i]
		result[post.ID] = &post
	}
	return result
}

// Profile fetches one user's profile, or nil when unavailable.
func (c *Client) Profile(ctx context.Context, userID int64) *UserProfile {
	if c.baseURL == "" {
		return nil
	}
	var profile UserProfile
	if !c.getJSON(ctx, c.baseURL+"/internal/users/"+strconv.FormatInt(userID, 10), &profile) {
		return nil
	}
	if profile.ID == 0 {
		return nil
	}
	return &profile
}

// HealthCheck reports whether the content backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("hydration base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach content backend: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("content backend unhealthy: unexpected status code %d", resp.StatusCode)
	}
	return nil
}

// getJSON performs a GET and decodes the body into out. It returns false on
// any failure, logging at warn level.
func (c *Client) getJSON(ctx context.Context, url string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("hydration lookup failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("hydration lookup failed",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode))
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("hydration decode failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return false
	}
	return true
}
