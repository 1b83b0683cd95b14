// Package photos provides a thin client for the Pexels photo search API.
package photos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// pexelsAPIURL is a var to allow test overrides via httptest.
var pexelsAPIURL = "https://api.pexels.com/v1/search"

// PexelsAPIURL returns the current Pexels search endpoint URL.
func PexelsAPIURL() string { return pexelsAPIURL }

// SetPexelsAPIURL overrides the Pexels search endpoint URL.
// Intended for use in tests only.
func SetPexelsAPIURL(u string) { pexelsAPIURL = u }

var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

type Client struct {
	apiKey string
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey}
}

type Photo struct {
	Photographer    string `json:"photographer"`
	PhotographerURL string `json:"photographer_url"`
	Src             struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"src"`
}

// BestURL prefers the large rendition, falling back to medium.
func (p Photo) BestURL() string {
	if p.Src.Large != "" {
		return p.Src.Large
	}
	return p.Src.Medium
}

type searchResponse struct {
	Photos []Photo `json:"photos"`
}

// Search runs a keyword query and returns up to perPage photos.
func (c *Client) Search(ctx context.Context, query string, perPage int) ([]Photo, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(perPage))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pexelsAPIURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	const maxBodyBytes = 5 * 1024 * 1024 // 5 MiB
	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pexels: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	var sr searchResponse
	if err := json.Unmarshal(respBytes, &sr); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	return sr.Photos, nil
}
