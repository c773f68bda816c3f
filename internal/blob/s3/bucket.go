// Package s3blob exports position ledgers to an S3-compatible bucket (AWS,
// MinIO, R2) and prunes the generations it supersedes.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// exportPartSize is the multipart chunk used for large ledgers. S3 requires
// at least 5 MiB per part.
const exportPartSize int64 = 8 << 20

// BucketConfig locates the export bucket.
type BucketConfig struct {
	// Endpoint overrides the AWS endpoint for compatible providers. A value
	// without a scheme gets https when UseSSL is set, http otherwise.
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
	// UploadConcurrency bounds the parts one multipart upload sends at once.
	UploadConcurrency int
}

// Bucket is the export target. It implements domain.BlobWriter and
// domain.BlobReader.
type Bucket struct {
	s3       *s3.Client
	uploader *manager.Uploader
	name     string
}

// NewBucket builds an S3 client with static credentials for cfg.Bucket.
func NewBucket(ctx context.Context, cfg BucketConfig) (*Bucket, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: bucket and region are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Bucket{
		s3: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = exportPartSize
			if cfg.UploadConcurrency > 0 {
				u.Concurrency = cfg.UploadConcurrency
			}
		}),
		name: cfg.Bucket,
	}, nil
}

// Ping checks that the bucket exists and the credentials can reach it.
func (b *Bucket) Ping(ctx context.Context) error {
	if _, err := b.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", b.name, err)
	}
	return nil
}

// Put stores a ledger file in one request.
func (b *Bucket) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart stores a large ledger file in exportPartSize chunks.
func (b *Bucket) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a generation file is already stored.
func (b *Bucket) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
	return true, nil
}

// List returns every object under a position's prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	pages := s3.NewListObjectsV2Paginator(b.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, domain.BlobInfo{
				Path:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

// Delete removes a superseded generation. Missing objects are not an error.
func (b *Bucket) Delete(ctx context.Context, path string) error {
	_, err := b.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3blob: delete %s: %w", path, err)
	}
	return nil
}

// isNotFound matches the error codes S3 and compatible providers use for a
// missing key. HeadObject has no body, so it only carries "NotFound".
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

func normaliseEndpoint(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

var (
	_ domain.BlobWriter = (*Bucket)(nil)
	_ domain.BlobReader = (*Bucket)(nil)
)
