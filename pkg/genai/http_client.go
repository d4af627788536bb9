package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/restage-ai/restage/pkg/activity"
)

// HTTPClient talks to the hosted model over its JSON API, with a client-side
// rate limiter so concurrent option-generation fan-out does not trip
// upstream throttling unnecessarily.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for baseURL. rps bounds outbound calls per
// second (0 disables the limiter).
func NewHTTPClient(baseURL, apiKey string, rps float64) *HTTPClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 120 * time.Second},
		limiter: limiter,
	}
}

// wire format for the generation endpoint
type wireRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Seed      int64     `json:"seed,omitempty"`
}

type wireBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"` // base64 for image blocks
}

type wireResponse struct {
	Model   string      `json:"model"`
	Content []wireBlock `json:"content"`
}

func (c *HTTPClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(wireRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
		Seed:      req.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, activity.ClassifyStatus(resp.StatusCode, string(msg))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}
	return decodeBlocks(&wire)
}

// decodeBlocks converts the wire content into the tagged union. Unknown
// block types are skipped; undecodable image data is an integrity failure.
func decodeBlocks(wire *wireResponse) (*Response, error) {
	out := &Response{Model: wire.Model}
	for _, b := range wire.Content {
		switch b.Type {
		case "text":
			out.Blocks = append(out.Blocks, TextBlock{Text: b.Text})
		case "image":
			data, err := base64.StdEncoding.DecodeString(b.Data)
			if err != nil {
				return nil, activity.Integrity("image block not base64: " + err.Error())
			}
			out.Blocks = append(out.Blocks, ImageBlock{MediaType: b.MediaType, Data: data})
		}
	}
	return out, nil
}

var _ Client = (*HTTPClient)(nil)
