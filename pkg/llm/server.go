package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// ServerClient implements Backend and ImageBackend for OpenAI-compatible
// HTTP APIs. Works with api.openai.com, ollama, vllm, litellm, etc.
type ServerClient struct {
	baseURL    string
	apiKey     string
	modelName  string
	imageModel string
	httpClient *http.Client
	chatPath   string
	imagePath  string
	maxRetries int
	retryBase  time.Duration
	logger     *slog.Logger
}

// ServerClientConfig configures the HTTP server client
type ServerClientConfig struct {
	BaseURL    string
	APIKey     string
	ModelName  string
	ImageModel string
	ChatPath   string        // Optional, defaults to "/v1/chat/completions"
	ImagePath  string        // Optional, defaults to "/v1/images/generations"
	Timeout    time.Duration // Optional, defaults to 2min
	MaxRetries int           // Optional, defaults to 3
	Logger     *slog.Logger
}

// NewServerClient creates a new HTTP server client
func NewServerClient(cfg ServerClientConfig) *ServerClient {
	if cfg.ChatPath == "" {
		cfg.ChatPath = "/v1/chat/completions"
	}
	if cfg.ImagePath == "" {
		cfg.ImagePath = "/v1/images/generations"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ServerClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		modelName:  cfg.ModelName,
		imageModel: cfg.ImageModel,
		chatPath:   cfg.ChatPath,
		imagePath:  cfg.ImagePath,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryBase:  time.Second,
		logger:     cfg.Logger,
	}
}

// Infer performs inference using the chat completions API
func (c *ServerClient) Infer(ctx context.Context, req *InferenceRequest) (*InferenceResponse, error) {
	messages := []map[string]string{
		{"role": "system", "content": req.SystemPrompt},
		{"role": "user", "content": req.UserPrompt},
	}

	reqBody := map[string]interface{}{
		"model":       c.modelName,
		"messages":    messages,
		"temperature": req.Temperature,
		"stream":      false,
	}
	if req.MaxTokens > 0 {
		reqBody["max_tokens"] = req.MaxTokens
	}
	if req.ResponseFormat != "" {
		reqBody["response_format"] = map[string]string{"type": req.ResponseFormat}
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := c.post(ctx, c.chatPath, reqBody, &chatResp); err != nil {
		return nil, err
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	return &InferenceResponse{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		TokensUsed:   chatResp.Usage.TotalTokens,
	}, nil
}

// GenerateImage renders one image through the images API
func (c *ServerClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	reqBody := map[string]interface{}{
		"model":  c.imageModel,
		"prompt": req.Prompt,
		"n":      1,
	}
	if req.Size != "" {
		reqBody["size"] = req.Size
	}
	// gpt-image models always answer with b64_json and reject the field.
	if !strings.HasPrefix(c.imageModel, "gpt-image") {
		reqBody["response_format"] = "b64_json"
	}

	var imgResp struct {
		Data []struct {
			B64JSON       string `json:"b64_json"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}

	if err := c.post(ctx, c.imagePath, reqBody, &imgResp); err != nil {
		return nil, err
	}

	if len(imgResp.Data) == 0 {
		return nil, fmt.Errorf("no images in response")
	}

	return &ImageResponse{
		B64JSON:       imgResp.Data[0].B64JSON,
		RevisedPrompt: imgResp.Data[0].RevisedPrompt,
	}, nil
}

// post sends a JSON request with retry on network errors and 5xx responses,
// then decodes the body into out.
func (c *ServerClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// Recreated on every attempt since the body is consumed
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err = c.httpClient.Do(httpReq)
		if err != nil {
			resp = nil
			lastErr = err
			if attempt < c.maxRetries && ctx.Err() == nil && isRetryableError(err) {
				if err := c.backoff(ctx, attempt, err.Error()); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			break
		}

		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		status := resp.StatusCode
		resp = nil

		// 5xx and 429 are retryable, other 4xx are not
		lastErr = fmt.Errorf("server returned %d: %s", status, strings.TrimSpace(string(errorBody)))
		if isRetryableStatus(status) && attempt < c.maxRetries {
			if err := c.backoff(ctx, attempt, fmt.Sprintf("status %d", status)); err != nil {
				return err
			}
			continue
		}
		return lastErr
	}

	if resp == nil {
		return fmt.Errorf("all retry attempts failed: %w", lastErr)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// backoff waits 1s, 2s, 4s... before the next attempt, returning early if
// ctx is cancelled.
func (c *ServerClient) backoff(ctx context.Context, attempt int, reason string) error {
	wait := time.Duration(1<<uint(attempt)) * c.retryBase
	c.logger.Debug("retrying provider request",
		"attempt", attempt+1, "max_attempts", c.maxRetries+1, "reason", reason, "backoff", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if os.IsTimeout(err) {
		return true
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableMessages := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"deadline exceeded",
		"i/o timeout",
	}

	for _, msg := range retryableMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}

// Close closes idle HTTP connections
func (c *ServerClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
