package fetch

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dlr-wf/go-crackmnist/internal/logging"
)

var payload = bytes.Repeat([]byte("crack tip "), 4096)

func digest(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func payloadHandler(w http.ResponseWriter, r *http.Request) {
	w.Write(payload)
}

// leftovers lists every file in dir except keep.
func leftovers(t *testing.T, dir, keep string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.Name() != keep {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestHTTPFetch(t *testing.T) {
	srv := serve(t, payloadHandler)
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "crackmnist_28_S.h5")

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := NewHTTP(WithMetrics(m))
	require.NoError(t, f.Fetch(context.Background(), srv.URL+"/a.h5", dest, digest(payload)))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Empty(t, leftovers(t, filepath.Dir(dest), "crackmnist_28_S.h5"))
	assert.Equal(t, float64(len(payload)), testutil.ToFloat64(m.Bytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("ok")))
}

func TestHTTPFetchChecksum(t *testing.T) {
	srv := serve(t, payloadHandler)
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.h5")

	m := NewMetrics(nil)
	err := NewHTTP(WithMetrics(m)).Fetch(context.Background(), srv.URL, dest, "0123456789abcdef0123456789abcdef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChecksum))
	var ce *ChecksumError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, digest(payload), ce.Got)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", ce.Want)

	assert.NoFileExists(t, dest)
	assert.Empty(t, leftovers(t, dir, ""))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("checksum")))
}

func TestHTTPFetchUpperCaseChecksum(t *testing.T) {
	srv := serve(t, payloadHandler)
	dest := filepath.Join(t.TempDir(), "a.h5")
	sum := bytes.ToUpper([]byte(digest(payload)))
	require.NoError(t, NewHTTP().Fetch(context.Background(), srv.URL, dest, string(sum)))
	assert.FileExists(t, dest)
}

func TestHTTPFetchUnpublishedChecksum(t *testing.T) {
	srv := serve(t, payloadHandler)
	for _, sum := range []string{"", "-"} {
		var buf bytes.Buffer
		log := logging.NewJSONLogger(&buf, slog.LevelDebug)
		dest := filepath.Join(t.TempDir(), "a.h5")

		require.NoError(t, NewHTTP(WithLogger(log)).Fetch(context.Background(), srv.URL, dest, sum))
		assert.FileExists(t, dest)
		assert.Contains(t, buf.String(), "checksum not published")
		assert.Contains(t, buf.String(), digest(payload))
	}
}

func TestHTTPFetchStatus(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	dir := t.TempDir()
	f := NewHTTP()

	err := f.Fetch(context.Background(), srv.URL+"/missing", filepath.Join(dir, "a"), "-")
	assert.True(t, errors.Is(err, ErrNotFound))

	hits.Store(0)
	err = f.Fetch(context.Background(), srv.URL+"/broken", filepath.Join(dir, "b"), "-")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), hits.Load(), "retried without WithRetries")
	assert.Empty(t, leftovers(t, dir, ""))
}

func TestHTTPFetchRetries(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(payload)
	})
	dest := filepath.Join(t.TempDir(), "a.h5")
	require.NoError(t, NewHTTP(WithRetries(2)).Fetch(context.Background(), srv.URL, dest, digest(payload)))
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetchCanceled(t *testing.T) {
	srv := serve(t, payloadHandler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	err := NewHTTP().Fetch(ctx, srv.URL, filepath.Join(dir, "a.h5"), "-")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, leftovers(t, dir, ""))
}

func TestRateLimit(t *testing.T) {
	r := &limitedReader{
		ctx: context.Background(),
		r:   bytes.NewReader(make([]byte, 300)),
		l:   rate.NewLimiter(1000, 100),
	}
	start := time.Now()
	var n int
	buf := make([]byte, 4096)
	for {
		k, err := r.Read(buf)
		require.LessOrEqual(t, k, 100)
		n += k
		if err != nil {
			break
		}
	}
	assert.Equal(t, 300, n)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	srv := serve(t, payloadHandler)
	dest := filepath.Join(t.TempDir(), "a.h5")
	require.NoError(t, NewHTTP(WithRateLimit(1<<24)).Fetch(context.Background(), srv.URL, dest, digest(payload)))
}

func countingFetcher(calls *atomic.Int32, delay time.Duration) FetcherFunc {
	return func(ctx context.Context, url, dest, md5 string) error {
		calls.Add(1)
		time.Sleep(delay)
		return os.WriteFile(dest, []byte(url), 0o644)
	}
}

func TestEnsureExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.h5")
	require.NoError(t, os.WriteFile(dest, []byte("x"), 0o644))

	var calls atomic.Int32
	require.NoError(t, Ensure(context.Background(), countingFetcher(&calls, 0), "https://example.org/a.h5", dest, "-"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestEnsureDeduplicates(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.h5")
	var calls atomic.Int32
	f := countingFetcher(&calls, 50*time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = Ensure(context.Background(), f, "https://example.org/a.h5", dest, "-")
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.FileExists(t, dest)
}

// waiting reports how many callers share the fetch of dest.
func waiting(dest string) int {
	flightsMu.Lock()
	defer flightsMu.Unlock()
	if fl, ok := inflight[dest]; ok {
		return fl.waiters
	}
	return 0
}

func TestEnsureCallerCancel(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.h5")
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	f := FetcherFunc(func(ctx context.Context, url, dest, md5 string) error {
		calls.Add(1)
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return os.WriteFile(dest, []byte(url), 0o644)
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- Ensure(ctxA, f, "https://example.org/a.h5", dest, "-") }()
	<-started

	errB := make(chan error, 1)
	go func() { errB <- Ensure(context.Background(), f, "https://example.org/a.h5", dest, "-") }()
	require.Eventually(t, func() bool { return waiting(dest) == 2 }, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)
	assert.NoError(t, <-errB)
	assert.Equal(t, int32(1), calls.Load())
	assert.FileExists(t, dest)
	assert.Zero(t, waiting(dest))
}

func TestEnsureCancelAbortsFetch(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.h5")
	started := make(chan struct{})
	aborted := make(chan error, 1)
	f := FetcherFunc(func(ctx context.Context, url, dest, md5 string) error {
		close(started)
		<-ctx.Done()
		aborted <- ctx.Err()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Ensure(ctx, f, "https://example.org/a.h5", dest, "-") }()
	<-started
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	select {
	case err := <-aborted:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("fetch still running after its only caller left")
	}
	assert.NoFileExists(t, dest)
	assert.Zero(t, waiting(dest))
}

func TestEnsureError(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.h5")
	f := FetcherFunc(func(ctx context.Context, url, dest, md5 string) error {
		return &ChecksumError{URL: url, Want: "a", Got: "b"}
	})
	err := Ensure(context.Background(), f, "https://example.org/a.h5", dest, "a")
	assert.True(t, errors.Is(err, ErrChecksum))
	assert.NoFileExists(t, dest)
}

func TestEnsureAll(t *testing.T) {
	dir := t.TempDir()
	var running, peak atomic.Int32
	f := FetcherFunc(func(ctx context.Context, url, dest, md5 string) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return os.WriteFile(dest, nil, 0o644)
	})

	var reqs []Request
	for i := range 6 {
		name := "f" + strconv.Itoa(i)
		reqs = append(reqs, Request{URL: "https://example.org/" + name, Dest: filepath.Join(dir, name), MD5: "-"})
	}
	require.NoError(t, EnsureAll(context.Background(), f, reqs, 2))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for _, r := range reqs {
		assert.FileExists(t, r.Dest)
	}

	boom := errors.New("boom")
	err := EnsureAll(context.Background(), FetcherFunc(func(context.Context, string, string, string) error { return boom }),
		[]Request{{URL: "https://example.org/x", Dest: filepath.Join(dir, "x")}}, 0)
	assert.ErrorIs(t, err, boom)
}

func TestMux(t *testing.T) {
	var got []string
	record := func(name string) FetcherFunc {
		return func(ctx context.Context, url, dest, md5 string) error {
			got = append(got, name)
			return nil
		}
	}
	m := Mux{"https": record("http"), "s3": record("s3")}
	ctx := context.Background()
	require.NoError(t, m.Fetch(ctx, "https://example.org/a", "a", "-"))
	require.NoError(t, m.Fetch(ctx, "s3://bucket/a", "a", "-"))
	assert.Equal(t, []string{"http", "s3"}, got)

	err := m.Fetch(ctx, "ftp://example.org/a", "a", "-")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))

	h := NewHTTP()
	nm := NewMux(h, nil)
	assert.Same(t, h, nm["http"])
	assert.Same(t, h, nm["https"])
	assert.NotContains(t, nm, "s3")
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://mirror/crackmnist/crackmnist_28_S.h5")
	require.NoError(t, err)
	assert.Equal(t, "mirror", bucket)
	assert.Equal(t, "crackmnist/crackmnist_28_S.h5", key)

	for _, bad := range []string{"s3://mirror", "s3:///key", "https://mirror/key"} {
		_, _, err := ParseS3URL(bad)
		assert.Error(t, err, bad)
	}
}

// fakeS3 serves payload at /mirror/crackmnist/crackmnist_28_S.h5.
func fakeS3(t *testing.T) *minio.Client {
	t.Helper()
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mirror/crackmnist/crackmnist_28_S.h5" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"`+digest(payload)+`"`)
		w.Header().Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Header().Set("Content-Type", "application/octet-stream")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(payload)
	})
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return c
}

func TestS3Fetch(t *testing.T) {
	f := NewS3(fakeS3(t))
	dir := t.TempDir()
	ctx := context.Background()

	dest := filepath.Join(dir, "crackmnist_28_S.h5")
	require.NoError(t, f.Fetch(ctx, "s3://mirror/crackmnist/crackmnist_28_S.h5", dest, digest(payload)))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	err = f.Fetch(ctx, "s3://mirror/crackmnist/crackmnist_64_S.h5", filepath.Join(dir, "b.h5"), "-")
	assert.True(t, errors.Is(err, ErrNotFound), "%v", err)

	err = f.Fetch(ctx, "https://mirror/a.h5", filepath.Join(dir, "c.h5"), "-")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
}
