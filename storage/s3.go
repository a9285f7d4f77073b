package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Backend implements interfaces.ObjectStore using Amazon S3.
type S3Backend struct {
	client      s3iface.S3API
	uploader    s3manageriface.UploaderAPI
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates a new S3 object store for bucketName. Keys are
// stored under prefix when it is not empty.
func NewS3Backend(sess client.ConfigProvider, bucketName, prefix string, log *slog.Logger) *S3Backend {
	return newS3Backend(s3.New(sess), s3manager.NewUploader(sess), bucketName, prefix, log)
}

func newS3Backend(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucketName, prefix string, log *slog.Logger) *S3Backend {
	prefix = strings.Trim(prefix, "/")
	return &S3Backend{
		client:      client,
		uploader:    uploader,
		bucketName:  bucketName,
		prefix:      prefix,
		log:         log,
		locationURI: fmt.Sprintf("s3://%s/%s", bucketName, prefix),
	}
}

// Upload streams body to the bucket and returns the object key used.
func (b *S3Backend) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	start := time.Now()
	objectKey := b.objectKey(key)

	out, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		b.log.Error("Failed to upload object to S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", objectKey),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Info("Uploaded object to S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", objectKey),
		slog.String("location", out.Location),
		slog.Duration("duration", time.Since(start)))

	return objectKey, nil
}

// Bucket implements interfaces.ObjectStore.
func (b *S3Backend) Bucket() string {
	return b.bucketName
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}
