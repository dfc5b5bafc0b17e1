// Package aniliberty is a thin HTTP client for the AniLiberty catalog API,
// the upstream source the local catalog falls back to.
package aniliberty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://aniliberty.top/api/v1"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Release is the upstream representation of a title.
type Release struct {
	ID    int64 `json:"id"`
	Title struct {
		EN       string `json:"en"`
		JP       string `json:"jp"`
		Romaji   string `json:"romaji"`
		Synonyms []any  `json:"synonyms"`
	} `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Genres      []string `json:"genres"`
	Year        int      `json:"year"`
	Season      string   `json:"season"`
	Poster      struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"poster"`
	Episodes struct {
		Total    int `json:"total"`
		Duration int `json:"duration"`
	} `json:"episodes"`
	Rating struct {
		Average float32 `json:"average"`
		Count   int     `json:"count"`
	} `json:"rating"`
}

type releaseResponse struct {
	Data Release `json:"data"`
}

type releaseListResponse struct {
	Data       []Release `json:"data"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

// GetRelease fetches one release by its AniLiberty id.
func (c *Client) GetRelease(ctx context.Context, id int64) (*Release, error) {
	if id <= 0 {
		return nil, fmt.Errorf("aniliberty: id required")
	}
	var out releaseResponse
	if err := c.getJSON(ctx, c.BaseURL+"/releases/"+strconv.FormatInt(id, 10), &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetPopular returns a page of releases ordered by popularity.
func (c *Client) GetPopular(ctx context.Context, limit int) ([]Release, error) {
	u := fmt.Sprintf("%s/releases?perPage=%d&orderBy=popularity&sort=desc", c.BaseURL, limit)
	var out releaseListResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Search queries releases by name.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]Release, error) {
	u := fmt.Sprintf("%s/releases?search=%s&perPage=%d", c.BaseURL, url.QueryEscape(q), limit)
	var out releaseListResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "anime-tracker/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("aniliberty: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("aniliberty: decode error: %w body=%q", err, string(b[:min(len(b), 200)]))
	}
	return nil
}
