package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var flights singleflight.Group

// flight is the context a shared fetch runs under. It is canceled once
// every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

var (
	flightsMu sync.Mutex
	inflight  = map[string]*flight{}
)

func join(ctx context.Context, dest string) *flight {
	flightsMu.Lock()
	defer flightsMu.Unlock()
	fl, ok := inflight[dest]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		inflight[dest] = fl
	}
	fl.waiters++
	return fl
}

func (fl *flight) leave(dest string) {
	flightsMu.Lock()
	defer flightsMu.Unlock()
	fl.waiters--
	if fl.waiters == 0 {
		fl.cancel()
		if inflight[dest] == fl {
			delete(inflight, dest)
		}
	}
}

// Ensure makes sure dest exists, calling f only when it does not.
// Concurrent calls for the same dest share one fetch. A caller whose ctx
// ends returns ctx.Err() at once; the fetch itself is canceled only when
// no caller is left waiting for it.
func Ensure(ctx context.Context, f Fetcher, url, dest, md5 string) error {
	if ok, err := exists(dest); err != nil || ok {
		return err
	}
	fl := join(ctx, dest)
	defer fl.leave(dest)

	do := func() <-chan singleflight.Result {
		return flights.DoChan(dest, func() (any, error) {
			if ok, err := exists(dest); err != nil || ok {
				return nil, err
			}
			return nil, f.Fetch(fl.ctx, url, dest, md5)
		})
	}
	ch := do()
	retried := false
	for {
		select {
		case r := <-ch:
			// A fetch abandoned by all of its earlier callers may still be
			// finishing when this caller joins it; start a fresh one.
			if errors.Is(r.Err, context.Canceled) && !retried && ctx.Err() == nil && fl.ctx.Err() == nil {
				retried = true
				ch = do()
				continue
			}
			return r.Err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Request names one file for EnsureAll.
type Request struct {
	URL  string
	Dest string
	MD5  string
}

// EnsureAll ensures every request, running at most limit fetches at once.
// A limit below one means no limit. The first error cancels the rest.
func EnsureAll(ctx context.Context, f Fetcher, reqs []Request, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, r := range reqs {
		g.Go(func() error {
			return Ensure(ctx, f, r.URL, r.Dest, r.MD5)
		})
	}
	return g.Wait()
}

// Mux dispatches to a fetcher by URL scheme.
type Mux map[string]Fetcher

// NewMux routes http and https to h and s3 to s. Either may be nil.
func NewMux(h *HTTPFetcher, s *S3Fetcher) Mux {
	m := Mux{}
	if h != nil {
		m["http"] = h
		m["https"] = h
	}
	if s != nil {
		m["s3"] = s
	}
	return m
}

func (m Mux) Fetch(ctx context.Context, rawURL, dest, md5 string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	f, ok := m[u.Scheme]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return f.Fetch(ctx, rawURL, dest, md5)
}
