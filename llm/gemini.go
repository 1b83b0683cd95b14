// Package llm provides a thin client for the Gemini generateContent API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// geminiAPIURL is a var to allow test overrides via httptest.
var geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiAPIURL returns the current Gemini API base URL.
// Exposed for use by integration tests via httptest servers.
func GeminiAPIURL() string { return geminiAPIURL }

// SetGeminiAPIURL overrides the Gemini API base URL.
// Intended for use in tests only.
func SetGeminiAPIURL(u string) { geminiAPIURL = u }

// sharedHTTPClient is used for all generation calls; a 2-minute timeout
// covers slow model responses.
var sharedHTTPClient = &http.Client{
	Timeout: 2 * time.Minute,
}

type Client struct {
	model  string
	apiKey string // unexported; never serialized by encoding/json
}

func NewClient(model, apiKey string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("model must be set")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key must be set")
	}
	return &Client{model: model, apiKey: apiKey}, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends a single-turn prompt and returns the concatenated text
// of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiAPIURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := sharedHTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	const maxBodyBytes = 10 * 1024 * 1024 // 10 MiB
	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBytes, &gr); err != nil {
		return "", fmt.Errorf("parsing response JSON (HTTP %d, body: %s): %w", resp.StatusCode, truncate(string(respBytes), 200), err)
	}

	// Check status code first, then structured error field.
	if resp.StatusCode != http.StatusOK {
		if gr.Error != nil {
			return "", fmt.Errorf("gemini: %s: %s", gr.Error.Status, gr.Error.Message)
		}
		return "", fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, truncate(string(respBytes), 200))
	}

	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("gemini: empty candidates in response")
	}

	var content strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}
	if content.Len() == 0 {
		return "", fmt.Errorf("gemini: no text content in response")
	}
	return content.String(), nil
}

// StripFences removes markdown code-fence artifacts that models wrap
// around JSON output.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// truncate limits a string to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
