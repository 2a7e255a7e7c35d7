// Package content turns an idea into post copy and a rendered illustration
// using a generative-content provider.
package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	_ "golang.org/x/image/webp"

	"github.com/soypete/pedropost/pkg/ideas"
	"github.com/soypete/pedropost/pkg/llm"
)

// DefaultImageSize is requested when no size is configured.
const DefaultImageSize = "1024x1024"

// GeneratedContent is the text half of a cycle's output.
type GeneratedContent struct {
	PostText    string `json:"post_text"`
	ImagePrompt string `json:"image_prompt"`
}

// responseSchema is what the provider must return for SynthesizeText.
var responseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"post_text", "image_prompt"},
	"properties": map[string]interface{}{
		"post_text": map[string]interface{}{
			"type":    "string",
			"pattern": `\S`,
		},
		"image_prompt": map[string]interface{}{
			"type":    "string",
			"pattern": `\S`,
		},
	},
}

var schemaLoader = gojsonschema.NewGoLoader(responseSchema)

// Config holds the model settings used for every request.
type Config struct {
	Temperature float64
	MaxTokens   int
	ImageSize   string
}

// Synthesizer derives post text, an image prompt, and image bytes from an idea.
type Synthesizer struct {
	text   llm.Backend
	images llm.ImageBackend
	cfg    Config
}

// NewSynthesizer creates a synthesizer. text and images may be the same
// *llm.ServerClient.
func NewSynthesizer(text llm.Backend, images llm.ImageBackend, cfg Config) *Synthesizer {
	if cfg.ImageSize == "" {
		cfg.ImageSize = DefaultImageSize
	}
	return &Synthesizer{text: text, images: images, cfg: cfg}
}

// SynthesizeText makes one structured-output request and returns the trimmed
// post text and image prompt.
func (s *Synthesizer) SynthesizeText(ctx context.Context, idea ideas.Idea) (*GeneratedContent, error) {
	resp, err := s.text.Infer(ctx, &llm.InferenceRequest{
		SystemPrompt:   systemPrompt,
		UserPrompt:     buildUserPrompt(idea),
		Temperature:    s.cfg.Temperature,
		MaxTokens:      s.cfg.MaxTokens,
		ResponseFormat: llm.ResponseFormatJSON,
	})
	if err != nil {
		return nil, textError("provider request failed", err)
	}

	return parseGeneratedContent(resp.Text)
}

// parseGeneratedContent validates and decodes the provider's JSON answer.
func parseGeneratedContent(raw string) (*GeneratedContent, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return nil, textError("empty response", nil)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, textError("response is not a JSON object", err)
	}

	// Older prompts asked for tweet_text
	if _, ok := doc["post_text"]; !ok {
		if legacy, ok := doc["tweet_text"]; ok {
			doc["post_text"] = legacy
		}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, textError("schema validation error", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			errs[i] = e.String()
		}
		return nil, textError("response failed validation", errors.New(strings.Join(errs, "; ")))
	}

	return &GeneratedContent{
		PostText:    strings.TrimSpace(doc["post_text"].(string)),
		ImagePrompt: strings.TrimSpace(doc["image_prompt"].(string)),
	}, nil
}

// stripCodeFence removes a surrounding ```json fence some models add even
// in JSON mode.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = ""
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// SynthesizeImage renders prompt and returns the decoded image bytes.
func (s *Synthesizer) SynthesizeImage(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, imageError("image prompt is empty", nil)
	}

	resp, err := s.images.GenerateImage(ctx, &llm.ImageRequest{
		Prompt: prompt,
		Size:   s.cfg.ImageSize,
	})
	if err != nil {
		return nil, imageError("provider request failed", err)
	}

	return decodeImage(resp.B64JSON)
}

func decodeImage(b64 string) ([]byte, error) {
	if strings.TrimSpace(b64) == "" {
		return nil, imageError("provider returned no image data", nil)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, imageError("failed to decode base64 payload", err)
	}
	if len(data) == 0 {
		return nil, imageError("provider returned an empty image", nil)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, imageError("payload is not a valid image", err)
	}

	return data, nil
}
