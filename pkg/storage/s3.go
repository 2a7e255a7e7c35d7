package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// objectPutter is the part of *s3.Client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive keeps generated images in an S3 bucket, one prefix per cycle.
type S3Archive struct {
	client objectPutter
	bucket string
	prefix string
}

// S3ArchiveConfig holds configuration for S3Archive.
type S3ArchiveConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional key prefix, e.g. "pedropost/"
}

// NewS3Archive creates an archive using the default AWS credential chain.
func NewS3Archive(ctx context.Context, cfg S3ArchiveConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires a bucket")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	return newS3Archive(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archive(client objectPutter, bucket, prefix string) *S3Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// SaveGenerated uploads a generated image to <prefix><cycleID>/<file>.
// The returned Path is an s3:// URL.
func (a *S3Archive) SaveGenerated(ctx context.Context, cycleID string, data []byte) (*ImageInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no image data to archive")
	}
	if cycleID == "" {
		cycleID = uuid.New().String()
	}

	info := describeImage(data)
	key := a.prefix + path.Join(cycleID, info.Filename)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(info.MimeType),
		ContentLength: aws.Int64(info.Size),
		Metadata: map[string]string{
			"cycle-id": cycleID,
			"sha256":   info.Checksum,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put failed for %s: %w", key, err)
	}

	info.Path = "s3://" + a.bucket + "/" + key
	return info, nil
}
