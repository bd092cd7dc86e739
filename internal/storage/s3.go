package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ugoite/ugoite/internal/tracing"
)

// S3 is an Operator backed by an S3-compatible object store.
// It works against AWS S3 as well as R2/MinIO-style endpoints
// (path-style addressing, static credentials).
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3 operator for the given bucket.
func NewS3(bucket string, opts Options) *S3 {
	region := opts.S3Region
	if region == "" {
		// Compatible stores accept "auto"; AWS requires an explicit region.
		region = "auto"
	}

	s3Opts := s3.Options{
		Region:       region,
		UsePathStyle: true,
	}
	if opts.S3AccessKeyID != "" {
		s3Opts.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			opts.S3AccessKeyID,
			opts.S3SecretAccessKey,
			"",
		))
	}
	if opts.S3Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(opts.S3Endpoint)
	}

	return &S3{
		client: s3.New(s3Opts),
		bucket: bucket,
	}
}

// Exists reports whether the object exists via HeadObject.
func (s *S3) Exists(ctx context.Context, path string) (ok bool, err error) {
	if path == "" {
		return false, ErrEmptyPath
	}
	ctx, end := tracing.StartStorageSpan(ctx, "s3", tracing.StorageOperationExists)
	defer func() { end(err) }()

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: head %s: %w", path, err)
	}
	return true, nil
}

// Read returns the object content, or ErrNotFound.
func (s *S3) Read(ctx context.Context, path string) (data []byte, err error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	ctx, end := tracing.StartStorageSpan(ctx, "s3", tracing.StorageOperationRead)
	defer func() { end(err) }()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get %s: %w", path, err)
	}
	defer out.Body.Close()
	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read body %s: %w", path, err)
	}
	return data, nil
}

// Write replaces the object in a single PutObject call.
func (s *S3) Write(ctx context.Context, path string, data []byte) (err error) {
	if path == "" {
		return ErrEmptyPath
	}
	ctx, end := tracing.StartStorageSpan(ctx, "s3", tracing.StorageOperationWrite)
	defer func() { end(err) }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", path, err)
	}
	return nil
}

// CreateDir writes a zero-byte directory marker. Object stores have a flat
// keyspace, so this exists only for interface parity with fs backends.
func (s *S3) CreateDir(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	key := path
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("storage: create dir %s: %w", path, err)
	}
	return nil
}

// List returns all object keys under prefix, sorted ascending.
func (s *S3) List(ctx context.Context, prefix string) (keys []string, err error) {
	ctx, end := tracing.StartStorageSpan(ctx, "s3", tracing.StorageOperationList)
	defer func() { end(err) }()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// isS3NotFound reports whether err indicates a missing key or object.
func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
