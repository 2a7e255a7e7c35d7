// Package social publishes a post with an attached image to a social
// provider.
package social

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/soypete/pedropost/pkg/storage"
	"github.com/soypete/pedropost/pkg/vision"
)

// MediaUploader uploads a file and returns the provider's media id.
type MediaUploader interface {
	UploadMedia(ctx context.Context, path string, mimeType string) (string, error)
}

// PostCreator creates a post that references previously uploaded media.
type PostCreator interface {
	CreatePost(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// PublishResult describes a published post.
type PublishResult struct {
	PostID      string
	MediaID     string
	PublishedAt time.Time
}

// Publisher uploads an image and then creates a post referencing it.
type Publisher struct {
	uploader  MediaUploader
	creator   PostCreator
	staging   *storage.ImageStorage
	processor *vision.ImageProcessor
	logger    *slog.Logger
}

// NewPublisher creates a publisher. processor may be nil, in which case
// images are uploaded exactly as generated.
func NewPublisher(uploader MediaUploader, creator PostCreator, staging *storage.ImageStorage, processor *vision.ImageProcessor, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		uploader:  uploader,
		creator:   creator,
		staging:   staging,
		processor: processor,
		logger:    logger,
	}
}

// Publish posts text with image attached. The staged upload file is removed
// on every path. A failed create may leave the uploaded media orphaned on
// the provider side.
func (p *Publisher) Publish(ctx context.Context, text string, image []byte) (*PublishResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &InvalidInputError{Field: "text", Reason: "post text is empty"}
	}
	if len(image) == 0 {
		return nil, &InvalidInputError{Field: "image", Reason: "image data is empty"}
	}

	data, ext := image, ""
	if p.processor != nil {
		prepared, err := p.processor.Prepare(image)
		if err != nil {
			return nil, &PublishError{Phase: PhaseUpload, Err: err}
		}
		if prepared.Reencoded {
			p.logger.Debug("prepared image for upload",
				"format", prepared.Format,
				"width", prepared.Width,
				"height", prepared.Height,
				"bytes", len(prepared.Data))
		}
		data, ext = prepared.Data, prepared.Extension()
	}

	staged, err := p.staging.Stage(data, ext)
	if err != nil {
		return nil, &PublishError{Phase: PhaseUpload, Err: err}
	}
	defer func() {
		if err := staged.Release(); err != nil {
			p.logger.Warn("failed to remove staged image", "path", staged.Path, "error", err)
		}
	}()

	mediaID, err := p.uploader.UploadMedia(ctx, staged.Path, staged.MimeType)
	if err != nil {
		return nil, &PublishError{Phase: PhaseUpload, Err: err}
	}
	p.logger.Debug("uploaded media", "media_id", mediaID)

	postID, err := p.creator.CreatePost(ctx, text, []string{mediaID})
	if err != nil {
		return nil, &PublishError{Phase: PhaseCreate, Err: err}
	}

	return &PublishResult{
		PostID:      postID,
		MediaID:     mediaID,
		PublishedAt: time.Now().UTC(),
	}, nil
}
