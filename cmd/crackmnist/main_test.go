package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlr-wf/go-crackmnist/crackmnist"
)

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errb bytes.Buffer
	rc := NewRootCommand(strings.NewReader(""), &out, &errb)
	rc.SetArgs(args)
	err = rc.Execute()
	return out.String(), errb.String(), err
}

// synth writes a 28_S variant with 6/2/2 samples into a fresh directory.
func synth(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out, _, err := run(t, "synth", dir, "--train", "6", "--val", "2", "--test", "2")
	require.NoError(t, err)
	require.Contains(t, out, filepath.Join(dir, "crackmnist_28_S.h5"))
	require.Contains(t, out, filepath.Join(dir, "experiments_metadata.json"))
	return dir
}

func sample(t *testing.T, args ...string) sampleReport {
	t.Helper()
	out, _, err := run(t, append([]string{"sample"}, args...)...)
	require.NoError(t, err)
	var r sampleReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func TestHelp(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"fetch", "info", "inspect", "sample", "stats", "synth"} {
		assert.Contains(t, out, sub)
	}
}

func TestInfo(t *testing.T) {
	out, _, err := run(t, "info", "--root", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "crackmnist_28_S.h5")
	assert.Contains(t, out, "crackmnist_256_L.h5")
	assert.Contains(t, out, "experiments_metadata.json")
	assert.Contains(t, out, "https://zenodo.org/records/-/files/experiments_metadata.json?download=1")
	assert.NotContains(t, out, "EXPERIMENTS_METADATA.JSON")
	assert.Contains(t, out, "10,048")
	assert.Contains(t, out, "no")
}

func TestSample(t *testing.T) {
	dir := synth(t)

	r := sample(t, "--root", dir, "--download=false", "--index", "4")
	assert.Equal(t, 4, r.Index)
	assert.Equal(t, "train", r.Split)
	assert.Equal(t, crackmnist.TaskSegmentation, r.Task)
	assert.Equal(t, 6, r.Samples)
	assert.Equal(t, []int{2, 28, 28}, r.ImageShape)
	assert.Equal(t, []int{28, 28}, r.TargetShape)
	assert.Nil(t, r.Target)
	assert.Equal(t, 1040.0, r.Force)
	assert.Equal(t, crackmnist.Augmentation{Shift: [2]float64{4, -4}}, r.Augmentation)
	assert.Equal(t, "1_S950_lower", r.Metadata["experiment"])

	r = sample(t, "--root", dir, "--download=false", "--split", "val", "--task", crackmnist.TaskRegression, "--index", "1")
	assert.Equal(t, 2, r.Samples)
	assert.Equal(t, []int{3}, r.TargetShape)
	assert.Equal(t, []float32{1, -1, 0.5}, r.Target)
	assert.Equal(t, crackmnist.Augmentation{Shift: [2]float64{1, -1}, Rotation: 90, VerticalFlip: true}, r.Augmentation)
}

func TestSampleErrors(t *testing.T) {
	dir := synth(t)

	_, _, err := run(t, "sample", "--root", dir, "--download=false", "--index", "6")
	require.Error(t, err)
	assert.ErrorIs(t, err, crackmnist.ErrIndexOutOfRange)

	_, _, err = run(t, "sample", "--root", dir, "--download=false", "--pixels", "32")
	require.Error(t, err)
	assert.ErrorIs(t, err, crackmnist.ErrInvalidParameter)

	_, _, err = run(t, "sample", "--root", t.TempDir(), "--download=false")
	require.Error(t, err)
	assert.ErrorIs(t, err, crackmnist.ErrMissingData)

	_, _, err = run(t, "sample", "--root", dir, "--log-format", "xml")
	assert.ErrorContains(t, err, "log format")
}

func TestStats(t *testing.T) {
	dir := synth(t)
	out, _, err := run(t, "stats", "--root", dir, "--download=false", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "train split, 3 of 6 samples")
	assert.Contains(t, out, "u_x")
	assert.Contains(t, out, "u_y")
	// Channel 0 of sample i holds i*10000 + k for k < 784.
	assert.Contains(t, out, "10391.5")
	assert.Contains(t, out, "11391.5")
}

func TestInspect(t *testing.T) {
	dir := synth(t)
	path := filepath.Join(dir, "crackmnist_28_S.h5")
	for _, mmap := range []string{"--mmap=true", "--mmap=false"} {
		out, _, err := run(t, "inspect", path, mmap)
		require.NoError(t, err, mmap)
		assert.Contains(t, out, "/train_images")
		assert.Contains(t, out, "[6 2 28 28]")
		assert.Contains(t, out, "/val_SIFs")
		assert.Contains(t, out, "/experiments")
		assert.Contains(t, out, "total")
	}

	_, _, err := run(t, "inspect", filepath.Join(dir, "experiments_metadata.json"))
	assert.Error(t, err)

	legacy := t.TempDir()
	_, _, err = run(t, "synth", legacy, "--legacy", "--train", "3", "--val", "1", "--test", "1")
	require.NoError(t, err)
	out, _, err := run(t, "inspect", filepath.Join(legacy, "crackmnist_28_S.h5"))
	require.NoError(t, err)
	assert.Contains(t, out, "(superblock v0)")
	assert.Contains(t, out, "[3 2 28 28]")

	r := sample(t, "--root", legacy, "--download=false", "--index", "2")
	assert.Equal(t, 3, r.Samples)
}

func TestConfigFile(t *testing.T) {
	dir := synth(t)
	cfg := filepath.Join(t.TempDir(), "crackmnist.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf("root = %q\ndownload = false\nsplit = \"val\"\n", dir)), 0o644))

	r := sample(t, "--config", cfg)
	assert.Equal(t, "val", r.Split)
	assert.Equal(t, 2, r.Samples)

	// Flags win over the file.
	r = sample(t, "--config", cfg, "--split", "test", "--index", "1")
	assert.Equal(t, "test", r.Split)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("bogus = 1\n"), 0o644))
	_, _, err := run(t, "info", "--config", bad)
	assert.ErrorContains(t, err, "invalid option in configuration file: bogus")

	_, _, err = run(t, "info", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "error reading configuration file")
}

func TestEnv(t *testing.T) {
	dir := synth(t)
	t.Setenv("CRACKMNIST_ROOT", dir)
	t.Setenv("CRACKMNIST_DOWNLOAD", "false")
	t.Setenv("CRACKMNIST_SPLIT", "val")

	r := sample(t, "--index", "1")
	assert.Equal(t, "val", r.Split)
	assert.Equal(t, 1, r.Index)

	r = sample(t, "--split", "test")
	assert.Equal(t, "test", r.Split)
}

func TestFetch(t *testing.T) {
	src := synth(t)
	variant, err := os.ReadFile(filepath.Join(src, "crackmnist_28_S.h5"))
	require.NoError(t, err)
	sum := md5.Sum(variant)

	var hits atomic.Int32
	fs := http.FileServer(http.Dir(src))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fs.ServeHTTP(w, r)
	}))
	defer srv.Close()

	manifest := filepath.Join(t.TempDir(), "mirror.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(fmt.Sprintf(
		"url_base = %q\n\n[variants.28_S]\nmd5 = %q\n", srv.URL, hex.EncodeToString(sum[:]))), 0o644))

	root := t.TempDir()
	out, stderr, err := run(t, "fetch", "--root", root, "--manifest", manifest)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Contains(t, out, filepath.Join(root, "crackmnist_28_S.h5"))
	assert.Contains(t, stderr, "checksum not published")

	got, err := os.ReadFile(filepath.Join(root, "crackmnist_28_S.h5"))
	require.NoError(t, err)
	assert.Equal(t, variant, got)

	// Present files are not fetched again, and unpublished variants are
	// skipped with a warning.
	_, stderr, err = run(t, "fetch", "--root", root, "--manifest", manifest, "--pixels", "256", "--size", "M,L")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Contains(t, stderr, "variant not published")

	// The fetched copy opens like any other.
	r := sample(t, "--root", root, "--manifest", manifest, "--index", "2")
	assert.Equal(t, 6, r.Samples)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	manifest := filepath.Join(t.TempDir(), "mirror.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(fmt.Sprintf("url_base = %q\n", srv.URL)), 0o644))

	_, _, err := run(t, "fetch", "--root", t.TempDir(), "--manifest", manifest)
	assert.ErrorContains(t, err, "404")

	_, _, err = run(t, "fetch", "--root", t.TempDir(), "--pixels", "32")
	assert.ErrorContains(t, err, `pixels "32" is not available`)

	_, _, err = run(t, "fetch", "--root", t.TempDir(), "--size", "XL")
	assert.ErrorContains(t, err, `size "XL" is not available`)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("mirror = 1\n"), 0o644))
	_, _, err = run(t, "info", "--manifest", bad)
	assert.ErrorContains(t, err, "loading manifest")
}
