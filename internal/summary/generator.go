package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Generator produces a completion for a prompt. The live session never
// waits on it; compaction runs off the session loop.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is a direct HTTP client for the non-streaming
// generateContent endpoint.
type GeminiGenerator struct {
	endpoint  string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// NewGeminiGenerator creates a generator against the given API base URL
// (e.g. https://generativelanguage.googleapis.com/v1beta).
func NewGeminiGenerator(endpoint, apiKey, model string, maxTokens int) *GeminiGenerator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &GeminiGenerator{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate sends one completion request and returns the concatenated
// text of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": prompt}},
			},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": g.maxTokens,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.endpoint, g.model, url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("response contained no candidates")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}
