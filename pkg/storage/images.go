package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ImageStorage stages images for upload and optionally archives every
// generated image.
type ImageStorage struct {
	basePath string
}

// ImageStorageConfig configures the image storage.
type ImageStorageConfig struct {
	// BasePath roots the staging and generated directories. Empty stages
	// in the OS temp dir and disables archiving.
	BasePath string `json:"base_path"`
}

// NewImageStorage creates a new image storage instance.
func NewImageStorage(cfg *ImageStorageConfig) (*ImageStorage, error) {
	if cfg == nil {
		cfg = &ImageStorageConfig{}
	}

	if cfg.BasePath != "" {
		dirs := []string{
			filepath.Join(cfg.BasePath, "staging"),
			filepath.Join(cfg.BasePath, "generated"),
		}
		for _, dir := range dirs {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return &ImageStorage{
		basePath: cfg.BasePath,
	}, nil
}

// ImageInfo contains metadata about an image.
type ImageInfo struct {
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// StagedImage is a temporary file holding image bytes for an upload.
type StagedImage struct {
	Path     string
	MimeType string

	once sync.Once
	err  error
}

// Release removes the staged file. Safe to call more than once.
func (s *StagedImage) Release() error {
	s.once.Do(func() {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			s.err = fmt.Errorf("failed to remove staged image: %w", err)
		}
	})
	return s.err
}

// Stage writes data to a uniquely named temporary file. The caller must
// Release it once the upload is finished.
func (s *ImageStorage) Stage(data []byte, ext string) (*StagedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no image data to stage")
	}

	dir := os.TempDir()
	if s.basePath != "" {
		dir = filepath.Join(s.basePath, "staging")
	}

	mimeType := http.DetectContentType(data)
	if ext == "" {
		ext = mimeToExtension(mimeType)
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	file, err := os.CreateTemp(dir, "pedropost-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	staged := &StagedImage{Path: file.Name(), MimeType: mimeType}

	if _, err := file.Write(data); err != nil {
		file.Close()
		staged.Release()
		return nil, fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := file.Close(); err != nil {
		staged.Release()
		return nil, fmt.Errorf("failed to close staging file: %w", err)
	}

	return staged, nil
}

// ArchiveEnabled reports whether SaveGenerated will keep copies.
func (s *ImageStorage) ArchiveEnabled() bool {
	return s.basePath != ""
}

// SaveGenerated archives a generated image under generated/<cycleID>/.
func (s *ImageStorage) SaveGenerated(ctx context.Context, cycleID string, data []byte) (*ImageInfo, error) {
	if !s.ArchiveEnabled() {
		return nil, fmt.Errorf("image archive requires a storage base path")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cycleID == "" {
		cycleID = uuid.New().String()
	}

	dir := filepath.Join(s.basePath, "generated", cycleID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	info := describeImage(data)
	info.Path = filepath.Join(dir, info.Filename)
	if err := os.WriteFile(info.Path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return info, nil
}

// describeImage fills everything in ImageInfo except Path.
func describeImage(data []byte) *ImageInfo {
	mimeType := http.DetectContentType(data)
	hash := sha256.Sum256(data)
	info := &ImageInfo{
		Filename:  uuid.New().String() + mimeToExtension(mimeType),
		MimeType:  mimeType,
		Size:      int64(len(data)),
		Checksum:  hex.EncodeToString(hash[:]),
		CreatedAt: time.Now(),
	}

	// Non-fatal: dimensions might not be available for all formats
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info
}

// ListGenerated lists archived images for a cycle.
func (s *ImageStorage) ListGenerated(cycleID string) ([]string, error) {
	if !s.ArchiveEnabled() {
		return nil, nil
	}
	dir := filepath.Join(s.basePath, "generated", cycleID)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

func mimeToExtension(mimeType string) string {
	extensions := map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/gif":  ".gif",
		"image/webp": ".webp",
		"image/bmp":  ".bmp",
	}
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}
