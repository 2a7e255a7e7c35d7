package llm

import (
	"context"
)

// Backend represents a text generation backend
type Backend interface {
	// Infer performs one-shot inference
	Infer(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error)
}

// ImageBackend represents an image generation backend
type ImageBackend interface {
	// GenerateImage renders a single image for the prompt
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)
}

// ResponseFormatJSON asks the backend for a single JSON object.
const ResponseFormatJSON = "json_object"

// InferenceRequest represents a request for inference
type InferenceRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int

	// ResponseFormat constrains the output ("json_object" or empty for free text)
	ResponseFormat string
}

// InferenceResponse represents a response from inference
type InferenceResponse struct {
	Text         string
	FinishReason string
	TokensUsed   int
}

// ImageRequest represents an image generation request
type ImageRequest struct {
	Prompt string
	Size   string // "WIDTHxHEIGHT"
}

// ImageResponse carries the first generated image, base64 encoded
type ImageResponse struct {
	B64JSON       string
	RevisedPrompt string
}
