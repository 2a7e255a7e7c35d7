// Package vision prepares generated images for upload to a social provider.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw" // For high-quality resizing
	_ "golang.org/x/image/webp"
)

// ImageProcessor fits images inside a provider's media limits.
type ImageProcessor struct {
	maxWidth  int
	maxHeight int
	maxBytes  int
	quality   int // JPEG quality (1-100)
}

// ImageProcessorConfig configures the image processor.
type ImageProcessorConfig struct {
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
	MaxBytes  int `json:"max_bytes"`
	Quality   int `json:"quality"` // JPEG quality (1-100)
}

// DefaultImageProcessorConfig returns limits that satisfy X image uploads.
func DefaultImageProcessorConfig() *ImageProcessorConfig {
	return &ImageProcessorConfig{
		MaxWidth:  4096,
		MaxHeight: 4096,
		MaxBytes:  5 * 1024 * 1024,
		Quality:   85,
	}
}

// NewImageProcessor creates a new image processor. Zero fields fall back to
// the defaults.
func NewImageProcessor(cfg *ImageProcessorConfig) *ImageProcessor {
	def := DefaultImageProcessorConfig()
	if cfg == nil {
		cfg = def
	}
	p := &ImageProcessor{
		maxWidth:  cfg.MaxWidth,
		maxHeight: cfg.MaxHeight,
		maxBytes:  cfg.MaxBytes,
		quality:   cfg.Quality,
	}
	if p.maxWidth <= 0 {
		p.maxWidth = def.MaxWidth
	}
	if p.maxHeight <= 0 {
		p.maxHeight = def.MaxHeight
	}
	if p.maxBytes <= 0 {
		p.maxBytes = def.MaxBytes
	}
	if p.quality <= 0 || p.quality > 100 {
		p.quality = def.Quality
	}
	return p
}

// ProcessedImage contains the upload-ready image and what was done to it.
type ProcessedImage struct {
	Data           []byte `json:"-"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Format         string `json:"format"`
	OriginalWidth  int    `json:"original_width"`
	OriginalHeight int    `json:"original_height"`
	Resized        bool   `json:"resized"`
	Reencoded      bool   `json:"reencoded"`
}

// MimeType returns the media type for the processed format.
func (p *ProcessedImage) MimeType() string {
	return "image/" + p.Format
}

// Extension returns a file extension for the processed format.
func (p *ProcessedImage) Extension() string {
	if p.Format == "jpeg" {
		return ".jpg"
	}
	return "." + p.Format
}

// jpegFallbackQualities are tried in order when an image is still too large.
var jpegFallbackQualities = []int{70, 55, 40}

// Prepare returns data unchanged when it already fits the limits. Otherwise
// it downscales and re-encodes, falling back to JPEG when the byte limit
// still is not met.
func (p *ImageProcessor) Prepare(data []byte) (*ProcessedImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid image data: %w", err)
	}

	result := &ProcessedImage{
		Width:          cfg.Width,
		Height:         cfg.Height,
		Format:         format,
		OriginalWidth:  cfg.Width,
		OriginalHeight: cfg.Height,
	}

	fitsDims := cfg.Width <= p.maxWidth && cfg.Height <= p.maxHeight
	if fitsDims && len(data) <= p.maxBytes && uploadable(format) {
		result.Data = data
		return result, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if !fitsDims {
		img = p.resize(img, p.maxWidth, p.maxHeight)
		result.Resized = true
	}
	bounds := img.Bounds()
	result.Width = bounds.Dx()
	result.Height = bounds.Dy()
	result.Reencoded = true

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality})
	default:
		// Everything else is re-encoded as PNG
		err = png.Encode(&buf, img)
		result.Format = "png"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	if buf.Len() <= p.maxBytes {
		result.Data = buf.Bytes()
		return result, nil
	}

	flat := flatten(img)
	for _, q := range append([]int{p.quality}, jpegFallbackQualities...) {
		if q > p.quality {
			continue
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		if buf.Len() <= p.maxBytes {
			result.Data = buf.Bytes()
			result.Format = "jpeg"
			return result, nil
		}
	}

	return nil, fmt.Errorf("image is %d bytes after compression, limit is %d", buf.Len(), p.maxBytes)
}

// uploadable reports whether the provider accepts the format as-is.
func uploadable(format string) bool {
	switch format {
	case "png", "jpeg", "gif", "webp":
		return true
	}
	return false
}

// resize resizes an image while maintaining aspect ratio.
func (p *ImageProcessor) resize(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	ratio := float64(width) / float64(height)
	newWidth := maxWidth
	newHeight := int(float64(maxWidth) / ratio)

	if newHeight > maxHeight {
		newHeight = maxHeight
		newWidth = int(float64(maxHeight) * ratio)
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	return dst
}

// flatten composites img onto white since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
