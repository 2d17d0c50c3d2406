package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Default timeout for presign operations. Archive puts stream large bodies
// and rely on the caller's context instead.
const DefaultS3Timeout = 30 * time.Second

// SourceArchive retains raw upload sources in S3 so a lesson can be
// re-transcoded without asking the instructor for the file again.
type SourceArchive struct {
	client *s3.Client
	bucket string
}

// NewSourceArchive creates a SourceArchive from an existing S3 client.
func NewSourceArchive(client *s3.Client, bucket string) *SourceArchive {
	return &SourceArchive{client: client, bucket: bucket}
}

func (a *SourceArchive) key(lessonID, assetID, ext string) string {
	return path.Join("sources", lessonID, assetID+ext)
}

// Put archives one raw source. Failures here never fail an ingest; the
// caller logs and moves on.
func (a *SourceArchive) Put(ctx context.Context, lessonID, assetID, ext string, body io.Reader, contentType string) (string, error) {
	key := a.key(lessonID, assetID, ext)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive source: %w", err)
	}

	return key, nil
}

// PresignGet returns a time-limited download URL for an archived source, for
// operator tooling.
func (a *SourceArchive) PresignGet(ctx context.Context, key string, lifetime time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	presignClient := s3.NewPresignClient(a.client)

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = lifetime
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}

	return req.URL, nil
}
