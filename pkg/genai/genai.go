// Package genai is the boundary to the hosted generation model. The
// pipeline treats the model as an opaque, slow, possibly-failing call; this
// package defines the typed request/response shapes and decodes the wire
// format exactly once, into a tagged union of content blocks.
package genai

import "context"

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one generation call.
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Seed      int64     `json:"seed,omitempty"`
}

// Block is one piece of model output. Implementations: TextBlock, ImageBlock.
type Block interface {
	blockType() string
}

// TextBlock is the text-bearing variant.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) blockType() string { return "text" }

// ImageBlock carries generated image bytes.
type ImageBlock struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

func (ImageBlock) blockType() string { return "image" }

// Response is a decoded model reply.
type Response struct {
	Model  string
	Blocks []Block
}

// Text returns the first text block, if any.
func (r *Response) Text() (string, bool) {
	for _, b := range r.Blocks {
		if t, ok := b.(TextBlock); ok {
			return t.Text, true
		}
	}
	return "", false
}

// Image returns the first image block, if any.
func (r *Response) Image() (ImageBlock, bool) {
	for _, b := range r.Blocks {
		if img, ok := b.(ImageBlock); ok {
			return img, true
		}
	}
	return ImageBlock{}, false
}

// Client is implemented by generator adapters.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}
