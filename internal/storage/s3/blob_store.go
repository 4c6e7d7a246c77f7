// Package s3 provides a BlobStore backed by Amazon S3 (or an S3-compatible endpoint).
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config captures the parameters required to reach the bucket. Credentials come from the
// default AWS chain (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, shared config, IAM role).
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// BlobStore writes artifacts to an S3 bucket using the multipart upload manager.
type BlobStore struct {
	uploader uploader
	bucket   string
}

// New loads the default AWS configuration and builds an uploader for the bucket.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithUploader(manager.NewUploader(client), cfg.Bucket)
}

// NewWithUploader builds a store around an existing uploader (primarily for testing).
func NewWithUploader(up uploader, bucket string) (*BlobStore, error) {
	if up == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{uploader: up, bucket: bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *BlobStore) Bucket() string {
	return s.bucket
}

// PutObject uploads data under path and returns an s3:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", path, s.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, path), nil
}
