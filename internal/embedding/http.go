package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint. The vector is
// extracted from the response with a gjson path so providers with a
// different envelope (e.g. "result.data.0") work without code changes.
type HTTPEmbedder struct {
	URL          string
	APIKey       string
	Model        string
	Dim          int
	ResponsePath string
	Client       *http.Client
}

// NewHTTPEmbedder builds an embedder with a bounded HTTP client.
func NewHTTPEmbedder(url, apiKey, model string, dim int, responsePath string, timeout time.Duration) *HTTPEmbedder {
	if responsePath == "" {
		responsePath = "data.0.embedding"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		URL:          url,
		APIKey:       apiKey,
		Model:        model,
		Dim:          dim,
		ResponsePath: responsePath,
		Client:       &http.Client{Timeout: timeout},
	}
}

// Dimension implements Embedder.
func (e *HTTPEmbedder) Dimension() int { return e.Dim }

type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Prepare(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	body, err := json.Marshal(embedRequest{Model: e.Model, Input: []string{text}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	res, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("embedding response: %w", err)
	}
	if res.StatusCode/100 != 2 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("embedding provider returned %d: %s", res.StatusCode, msg)
	}

	field := gjson.GetBytes(raw, e.ResponsePath)
	if !field.IsArray() {
		return nil, fmt.Errorf("embedding response has no array at %q", e.ResponsePath)
	}
	arr := field.Array()
	if e.Dim > 0 && len(arr) != e.Dim {
		return nil, fmt.Errorf("embedding dimension %d, want %d", len(arr), e.Dim)
	}
	vec := make([]float32, len(arr))
	for i, v := range arr {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}
