// Package fetch acquires dataset files. A Fetcher downloads one URL to a
// destination path, verifying its MD5 digest and placing it atomically;
// Ensure skips files that are already present.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dlr-wf/go-crackmnist/internal/logging"
)

var (
	ErrChecksum          = errors.New("checksum mismatch")
	ErrNotFound          = errors.New("remote file not found")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// ChecksumError reports a downloaded file whose MD5 digest differs from the
// published one.
type ChecksumError struct {
	URL  string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: md5 %s, want %s", e.URL, e.Got, e.Want)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Fetcher downloads url to dest. An md5 of "" or "-" skips verification.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest, md5 string) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url, dest, md5 string) error

func (f FetcherFunc) Fetch(ctx context.Context, url, dest, md5 string) error {
	return f(ctx, url, dest, md5)
}

// Option configures a fetcher.
type Option func(*options)

type options struct {
	logger  *logging.Logger
	metrics *Metrics
	limiter *rate.Limiter
	retries int
	client  *http.Client
}

func defaultOptions() *options {
	return &options{logger: logging.NoopLogger()}
}

func (o *options) apply(opts []Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNoop(o.logger).WithComponent("fetch")
	return o
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRateLimit caps the download bandwidth at bytesPerSec. Zero or
// negative disables the limit.
func WithRateLimit(bytesPerSec int) Option {
	return func(o *options) {
		if bytesPerSec <= 0 {
			o.limiter = nil
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
	}
}

// WithLimiter shares a bandwidth limiter between fetchers. Tokens are bytes.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithRetries sets how often a failed HTTP request is retried. The default
// is no retries.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithHTTPClient sets the transport client of an HTTPFetcher.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

func unverified(sum string) bool {
	return sum == "" || sum == "-"
}

// place copies body into a temporary file next to dest, checks its digest
// and renames it into place. It returns the number of bytes written.
func place(ctx context.Context, body io.Reader, url, dest, sum string, o *options) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if o.limiter != nil {
		body = &limitedReader{ctx: ctx, r: body, l: o.limiter}
	}
	h := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), body)
	if err != nil {
		return n, fmt.Errorf("downloading %s: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}

	got := hex.EncodeToString(h.Sum(nil))
	if unverified(sum) {
		o.logger.WarnContext(ctx, "checksum not published, skipping verification",
			"url", url,
			"md5", got,
		)
	} else if !strings.EqualFold(got, sum) {
		return n, &ChecksumError{URL: url, Want: strings.ToLower(sum), Got: got}
	}

	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, err
	}
	ok = true
	return n, nil
}

// limitedReader waits on a byte-rate limiter before handing out data.
type limitedReader struct {
	ctx context.Context
	r   io.Reader
	l   *rate.Limiter
}

func (r *limitedReader) Read(p []byte) (int, error) {
	if b := r.l.Burst(); b > 0 && len(p) > b {
		p = p[:b]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.l.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
