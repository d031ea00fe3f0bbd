package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// S3Fetcher downloads s3://bucket/key URLs from an S3-compatible store.
type S3Fetcher struct {
	client *minio.Client
	opts   *options
}

func NewS3(client *minio.Client, opts ...Option) *S3Fetcher {
	return &S3Fetcher{client: client, opts: defaultOptions().apply(opts)}
}

// ParseS3URL splits s3://bucket/key into its bucket and object key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 url %q", raw)
	}
	return u.Host, key, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, rawURL, dest, md5 string) (err error) {
	var n int64
	start := time.Now()
	defer func() {
		f.opts.metrics.observe(n, err)
		f.opts.logger.LogFetch(ctx, rawURL, dest, n, time.Since(start), err)
	}()

	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return err
	}
	if _, err := f.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return s3Error(rawURL, err)
	}
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return s3Error(rawURL, err)
	}
	defer obj.Close()

	n, err = place(ctx, obj, rawURL, dest, md5, f.opts)
	return err
}

func s3Error(rawURL string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", rawURL, err)
}
