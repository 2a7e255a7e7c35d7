package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultXBaseURL is the X API v2 host.
	DefaultXBaseURL = "https://api.x.com"
	// DefaultXTokenURL issues and refreshes OAuth 2.0 user tokens.
	DefaultXTokenURL = "https://api.x.com/2/oauth2/token"
	// DefaultXAuthURL is where a user authorizes the app.
	DefaultXAuthURL = "https://x.com/i/oauth2/authorize"
)

// XScopes are the OAuth 2.0 scopes needed to post with media.
var XScopes = []string{"tweet.read", "tweet.write", "users.read", "media.write", "offline.access"}

// XClient implements MediaUploader and PostCreator against the X API v2.
// Authentication is carried by httpClient, normally built by NewXHTTPClient.
type XClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// XClientConfig configures the X client
type XClientConfig struct {
	BaseURL    string // Optional, defaults to https://api.x.com
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewXClient creates a new X API client
func NewXClient(cfg XClientConfig) *XClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultXBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &XClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

type xDataResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// UploadMedia uploads an image file and returns its media id.
func (c *XClient) UploadMedia(ctx context.Context, path string, mimeType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read media file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}

	writer.WriteField("media_category", "tweet_image")
	if mimeType != "" {
		writer.WriteField("media_type", mimeType)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/media/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result xDataResponse
	if err := c.do(req, &result); err != nil {
		return "", fmt.Errorf("media upload failed: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("media upload returned no media id")
	}

	return result.Data.ID, nil
}

// CreatePost publishes text with the given media attached and returns the post id.
func (c *XClient) CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error) {
	payload := map[string]interface{}{
		"text": text,
	}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result xDataResponse
	if err := c.do(req, &result); err != nil {
		return "", fmt.Errorf("post creation failed: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("post creation returned no post id")
	}

	return result.Data.ID, nil
}

// do sends req and decodes a 2xx JSON body into out.
func (c *XClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return parseAPIError(resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseAPIError understands both the problem+json and the errors[] shapes.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &problem); err != nil {
		return apiErr
	}

	apiErr.Title = problem.Title
	apiErr.Detail = problem.Detail
	if apiErr.Detail == "" && len(problem.Errors) > 0 {
		apiErr.Detail = problem.Errors[0].Message
	}
	return apiErr
}
