package fetch

import (
	"context"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// HTTPFetcher downloads over HTTP(S).
type HTTPFetcher struct {
	client *retryablehttp.Client
	opts   *options
}

// NewHTTP returns an HTTP fetcher. Failed requests are not retried unless
// WithRetries is given.
func NewHTTP(opts ...Option) *HTTPFetcher {
	o := defaultOptions().apply(opts)
	c := retryablehttp.NewClient()
	if o.client != nil {
		c.HTTPClient = o.client
	}
	c.RetryMax = o.retries
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 10 * time.Second
	c.Logger = o.logger.Logger
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &HTTPFetcher{client: c, opts: o}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest, md5 string) (err error) {
	var n int64
	start := time.Now()
	defer func() {
		f.opts.metrics.observe(n, err)
		f.opts.logger.LogFetch(ctx, url, dest, n, time.Since(start), err)
	}()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, Status: resp.StatusCode}
	}
	n, err = place(ctx, resp.Body, url, dest, md5, f.opts)
	return err
}
