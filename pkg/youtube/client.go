// Package youtube is a minimal client for the YouTube Data API v3 videos endpoint.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DefaultBaseURL is the public Data API v3 endpoint.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Config holds the Data API client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ErrVideoNotFound is returned when the API answers with no items for an ID.
var ErrVideoNotFound = errors.New("video not found")

// APIError is a non-2xx answer from the Data API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube api status %d: %s", e.StatusCode, e.Body)
}

// idPattern captures the candidate identifier after the usual URL markers.
var idPattern = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// ExtractVideoID returns the 11 character video ID in rawURL, or "" if the
// URL has no recognizable ID.
func ExtractVideoID(rawURL string) string {
	m := idPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if len(m) < 3 || len(m[2]) != 11 {
		return ""
	}
	return m[2]
}

// Video is the subset of a videos resource this service uses.
type Video struct {
	ID      string  `json:"id"`
	Snippet Snippet `json:"snippet"`
}

// Snippet holds the basic details of a video.
type Snippet struct {
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	ChannelTitle string               `json:"channelTitle"`
	PublishedAt  string               `json:"publishedAt"`
	Thumbnails   map[string]Thumbnail `json:"thumbnails"`
}

// Thumbnail is one size of a video thumbnail.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// BestThumbnail returns the medium thumbnail, falling back to default.
func (s Snippet) BestThumbnail() string {
	for _, key := range []string{"medium", "default", "high"} {
		if t, ok := s.Thumbnails[key]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

// Client calls the Data API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Data API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type videoListResponse struct {
	Items []Video `json:"items"`
}

// GetVideo fetches the snippet for a single video ID.
func (c *Client) GetVideo(ctx context.Context, id string) (*Video, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", id)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var list videoListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, ErrVideoNotFound
	}
	return &list.Items[0], nil
}
