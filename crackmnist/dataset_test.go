package crackmnist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlr-wf/go-crackmnist/crackmnist/crackmnisttest"
	"github.com/dlr-wf/go-crackmnist/fetch"
	"github.com/dlr-wf/go-crackmnist/registry"
)

func fixture(t *testing.T, opts crackmnisttest.Options) *crackmnisttest.Fixture {
	t.Helper()
	fx, err := crackmnisttest.Write(t.TempDir(), opts)
	require.NoError(t, err)
	return fx
}

func openFixture(t *testing.T, fx *crackmnisttest.Fixture, split string, opts ...Option) *Dataset {
	t.Helper()
	base := []Option{
		WithRoot(fx.Root),
		WithPixels(fx.Pixels),
		WithSize(fx.Size),
		WithManifest(fx.Manifest),
		WithDownload(false),
	}
	ds, err := New(context.Background(), split, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func image(fx *crackmnisttest.Fixture, i int) Tensor {
	data := append(fx.Image(i, 0), fx.Image(i, 1)...)
	return Tensor{Shape: []int{2, fx.Pixels, fx.Pixels}, Data: data}
}

func TestSplitsAndTasks(t *testing.T) {
	for _, opts := range []crackmnisttest.Options{
		{},
		{Compressed: true},
		{Compressed: true, Legacy: true},
	} {
		fx := fixture(t, opts)
		for _, split := range []string{"train", "val", "test"} {
			for _, task := range []string{TaskSegmentation, TaskRegression} {
				ds := openFixture(t, fx, split, WithTask(task))
				want, _ := fx.Manifest.SampleCount(split, fx.Size)
				require.Equal(t, want, ds.Len())
				assert.Equal(t, split, ds.Split())

				s, err := ds.Get(ds.Len() - 1)
				require.NoError(t, err)
				assert.Equal(t, []int{2, 28, 28}, s.Image.Shape)
				if task == TaskSegmentation {
					assert.Equal(t, []int{28, 28}, s.Target.Shape)
				} else {
					assert.Equal(t, []int{3}, s.Target.Shape)
				}
			}
		}
	}
}

func TestGet(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{Pixels: 64, Size: "M", Samples: map[string]int{"train": 5}})
	ds := openFixture(t, fx, "train")

	s, err := ds.Get(3)
	require.NoError(t, err)
	if diff := cmp.Diff(image(fx, 3), s.Image); diff != "" {
		t.Errorf("image (-want +got):\n%s", diff)
	}
	assert.Equal(t, fx.Mask(3), s.Target.Data)

	reg := openFixture(t, fx, "train", WithTask(TaskRegression))
	s, err = reg.Get(4)
	require.NoError(t, err)
	assert.Equal(t, Tensor{Shape: []int{3}, Data: fx.SIF(4)}, s.Target)
	assert.Contains(t, reg.Description(), "stress intensity factors")
	assert.Contains(t, ds.Description(), "crack tip segmentation masks")
}

func TestLegacyLayout(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{Legacy: true, Compressed: true, VarLenNames: true})
	ds := openFixture(t, fx, "val")

	b, err := ds.GetBatch([]int{3, 0})
	require.NoError(t, err)
	if diff := cmp.Diff([]Tensor{image(fx, 3), image(fx, 0)}, b.Images); diff != "" {
		t.Errorf("images (-want +got):\n%s", diff)
	}
	md, err := ds.Metadata(2)
	require.NoError(t, err)
	assert.Equal(t, "2_S160_upper", md["experiment"])
	f, err := ds.Force(1)
	require.NoError(t, err)
	assert.Equal(t, fx.Force(1), f)
}

func TestIndexErrors(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	ds := openFixture(t, fx, "val")

	for _, i := range []int{-1, ds.Len(), 1 << 20} {
		_, err := ds.Get(i)
		require.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d: %v", i, err)
		var ie *IndexError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, IndexError{Index: i, Len: 4}, *ie)

		_, err = ds.Metadata(i)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
		_, err = ds.Force(i)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
		_, err = ds.Augmentation(i)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	}
	_, err := ds.GetBatch([]int{0, 1, 4})
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestGetBatchTransform(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{Compressed: true})
	var imageCalls, targetCalls atomic.Int32
	double := func(calls *atomic.Int32) Transform {
		return func(in Tensor) (Tensor, error) {
			calls.Add(1)
			out := in.Clone()
			for i := range out.Data {
				out.Data[i] *= 2
			}
			return out, nil
		}
	}
	plain := openFixture(t, fx, "train")
	ds := openFixture(t, fx, "train",
		WithTransform(double(&imageCalls)),
		WithTargetTransform(double(&targetCalls)))

	idx := []int{5, 0, 5, 6, 1}
	b, err := ds.GetBatch(idx)
	require.NoError(t, err)
	require.Equal(t, len(idx), b.Len())
	assert.Equal(t, int32(len(idx)), imageCalls.Load())
	assert.Equal(t, int32(len(idx)), targetCalls.Load())

	for k, i := range idx {
		raw, err := plain.Get(i)
		require.NoError(t, err)
		want, _ := double(new(atomic.Int32))(raw.Image)
		if diff := cmp.Diff(want, b.Images[k]); diff != "" {
			t.Errorf("image %d (-want +got):\n%s", i, diff)
		}
		want, _ = double(new(atomic.Int32))(raw.Target)
		assert.Equal(t, want, b.Targets[k])
	}

	b.Images[0].Data[0] = -1
	assert.NotEqual(t, float32(-1), b.Images[2].Data[0], "duplicate indices share storage")

	empty, err := ds.GetBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestTransformError(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	boom := errors.New("boom")
	ds := openFixture(t, fx, "test", WithTransform(func(Tensor) (Tensor, error) { return Tensor{}, boom }))
	_, err := ds.Get(0)
	assert.ErrorIs(t, err, boom)
}

func TestMetadata(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{VarLenNames: true})
	ds := openFixture(t, fx, "train")

	for i := range ds.Len() {
		rec, err := ds.Metadata(i)
		require.NoError(t, err)
		name := fx.Experiments[fx.ExpID(i)]
		if diff := cmp.Diff(Record(fx.Table[name]), rec); diff != "" {
			t.Errorf("sample %d (-want +got):\n%s", i, diff)
		}
	}
	recs, err := ds.MetadataBatch([]int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, fx.Experiments[2], recs[0]["experiment"])
	assert.Equal(t, fx.Experiments[0], recs[1]["experiment"])
	assert.Equal(t, fx.Experiments, ds.Experiments())
}

func TestMetadataMissing(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{DropMetadata: true})
	ds := openFixture(t, fx, "train")

	_, err := ds.Metadata(0)
	require.NoError(t, err)
	_, err = ds.Metadata(2)
	require.True(t, errors.Is(err, ErrMetadataKey))
	var mk *MetadataKeyError
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, fx.Experiments[2], mk.Name)

	ds.experiments = ds.experiments[:1]
	_, err = ds.Metadata(1)
	require.True(t, errors.As(err, &mk))
	assert.True(t, mk.BadID)
	assert.Contains(t, err.Error(), "experiment id 1")
}

func TestForcesAndAugmentations(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	ds := openFixture(t, fx, "train")

	f, err := ds.Forces([]int{3, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{fx.Force(3), fx.Force(1), fx.Force(3)}, f)

	a, err := ds.Augmentation(1)
	require.NoError(t, err)
	assert.Equal(t, Augmentation{Shift: [2]float64{1, -1}, Rotation: 90, VerticalFlip: true}, a)

	as, err := ds.Augmentations(Range(0, 4))
	require.NoError(t, err)
	for i, a := range as {
		assert.Equal(t, AugmentationFromRaw(fx.RawAugmentation(i)), a)
	}
	assert.False(t, as[2].VerticalFlip)
}

func TestAugmentationFromRaw(t *testing.T) {
	assert.Equal(t,
		Augmentation{Shift: [2]float64{1, -2}, Rotation: 90, VerticalFlip: true},
		AugmentationFromRaw([4]float64{1, -2, 90, 1}))
	assert.False(t, AugmentationFromRaw([4]float64{0, 0, 0, 0}).VerticalFlip)
	assert.True(t, AugmentationFromRaw([4]float64{0, 0, 0, -1}).VerticalFlip)
}

func TestExperimentSamples(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	ds := openFixture(t, fx, "train")

	got, err := ds.ExperimentSamples(fx.Experiments[1])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 7}, got)

	b, err := ds.ExperimentBitmap(fx.Experiments[0])
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, Indices(b))
	b.Add(1)
	again, _ := ds.ExperimentSamples(fx.Experiments[0])
	assert.Equal(t, []int{0, 3, 6}, again)

	_, err = ds.ExperimentSamples("unknown")
	assert.True(t, errors.Is(err, ErrMetadataKey))
}

func TestInvalidParameters(t *testing.T) {
	tests := []struct {
		split string
		opts  []Option
		param string
	}{
		{"validation", nil, "split"},
		{"train", []Option{WithSize("XL")}, "size"},
		{"train", []Option{WithPixels(32)}, "pixels"},
		{"train", []Option{WithTask("classification")}, "task"},
		{"train", []Option{WithPixels(0)}, "pixels"},
		{"train", []Option{WithSize("")}, "size"},
		{"train", []Option{WithTask("")}, "task"},
		// the first bad parameter wins: size, pixels, task, split
		{"validation", []Option{WithTask("x"), WithPixels(32), WithSize("XL")}, "size"},
		{"validation", []Option{WithTask("x"), WithPixels(32)}, "pixels"},
		{"validation", []Option{WithTask("x")}, "task"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.param, len(tt.opts)), func(t *testing.T) {
			var calls atomic.Int32
			opts := append([]Option{WithRoot(t.TempDir()), WithFetcher(counting(&calls, ""))}, tt.opts...)
			_, err := New(context.Background(), tt.split, opts...)
			require.True(t, errors.Is(err, ErrInvalidParameter), "%v", err)
			var pe *InvalidParameterError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.param, pe.Param)
			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

// counting returns a fetcher that copies files from src, or fails when src
// is empty.
func counting(calls *atomic.Int32, src string) fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, url, dest, md5 string) error {
		calls.Add(1)
		if src == "" {
			return errors.New("offline")
		}
		b, err := os.ReadFile(filepath.Join(src, filepath.Base(dest)))
		if err != nil {
			return err
		}
		return os.WriteFile(dest, b, 0o644)
	})
}

func TestUnavailable(t *testing.T) {
	var calls atomic.Int32
	for _, size := range []string{"M", "L"} {
		_, err := New(context.Background(), "train",
			WithPixels(256), WithSize(size),
			WithRoot(t.TempDir()), WithFetcher(counting(&calls, "")))
		require.True(t, errors.Is(err, ErrUnavailable))
		assert.Equal(t, "crackmnist_256_"+size+".h5 is not available on Zenodo. Please contact the authors to get access.", err.Error())
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestAcquisition(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	root := filepath.Join(t.TempDir(), "data")
	var calls atomic.Int32
	opts := []Option{WithRoot(root), WithManifest(fx.Manifest), WithFetcher(counting(&calls, fx.Root))}

	ds, err := New(context.Background(), "train", opts...)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, filepath.Join(root, "crackmnist_28_S.h5"), ds.Path())
	require.NoError(t, ds.Close())

	ds, err = New(context.Background(), "val", opts...)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "existing files fetched again")
	assert.Equal(t, 4, ds.Len())
	require.NoError(t, ds.Close())
}

func TestAcquisitionError(t *testing.T) {
	root := t.TempDir()
	f := fetch.FetcherFunc(func(ctx context.Context, url, dest, md5 string) error {
		return &fetch.ChecksumError{URL: url, Want: "aa", Got: "bb"}
	})
	_, err := New(context.Background(), "train", WithRoot(root), WithFetcher(f))
	require.True(t, errors.Is(err, ErrAcquisition))
	assert.True(t, errors.Is(err, fetch.ErrChecksum))

	var ae *AcquisitionError
	require.True(t, errors.As(err, &ae))
	md := registry.CrackMNIST.Metadata()
	assert.Equal(t, registry.MetadataFilename, ae.File)
	assert.Equal(t, md.URL, ae.URL)
	assert.Equal(t, root, ae.Root)
	for _, s := range []string{registry.Homepage, md.URL, root, "1. ", "4. "} {
		assert.Contains(t, err.Error(), s)
	}
}

func TestMissingData(t *testing.T) {
	_, err := New(context.Background(), "train", WithRoot(t.TempDir()), WithDownload(false))
	assert.True(t, errors.Is(err, ErrMissingData))

	fx := fixture(t, crackmnisttest.Options{})
	require.NoError(t, os.Remove(fx.MetadataPath))
	_, err = New(context.Background(), "train", WithRoot(fx.Root), WithManifest(fx.Manifest), WithDownload(false))
	assert.True(t, errors.Is(err, ErrMissingData))
}

func TestNewFromConfig(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{Pixels: 128, Size: "L", Samples: map[string]int{"test": 2}})
	ds, err := NewFromConfig(context.Background(), Config{
		Split:      "test",
		Size:       "L",
		Pixels:     128,
		Task:       TaskRegression,
		Root:       fx.Root,
		Manifest:   fx.Manifest,
		NoDownload: true,
	})
	require.NoError(t, err)
	defer ds.Close()
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, registry.Key{Pixels: 128, Size: "L"}, ds.Variant().Key)

	// zero fields select the defaults
	fx = fixture(t, crackmnisttest.Options{Samples: map[string]int{"val": 1}})
	ds, err = NewFromConfig(context.Background(), Config{Split: "val", Root: fx.Root, Manifest: fx.Manifest, NoDownload: true})
	require.NoError(t, err)
	defer ds.Close()
	assert.Equal(t, registry.Key{Pixels: 28, Size: "S"}, ds.Variant().Key)
	assert.Equal(t, TaskSegmentation, ds.Task())
}

func TestCorruptColumns(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{Samples: map[string]int{"train": 2}})
	_, err := New(context.Background(), "val", WithRoot(fx.Root), WithManifest(fx.Manifest), WithDownload(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "val_images")

	require.NoError(t, os.WriteFile(fx.MetadataPath, []byte("{"), 0o644))
	_, err = New(context.Background(), "train", WithRoot(fx.Root), WithManifest(fx.Manifest), WithDownload(false))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parsing"))
}

func TestClose(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	ds := openFixture(t, fx, "train")
	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())

	_, err := ds.Get(0)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = ds.Metadata(0)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = ds.Forces([]int{0})
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = ds.ExperimentSamples(fx.Experiments[0])
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestMetrics(t *testing.T) {
	fx := fixture(t, crackmnisttest.Options{})
	m := NewMetrics(prometheus.NewRegistry())
	ds := openFixture(t, fx, "train", WithMetrics(m))

	_, err := ds.GetBatch([]int{0, 1, 2})
	require.NoError(t, err)
	_, err = ds.Get(-1)
	require.Error(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Samples))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("index")))
}

func TestGather(t *testing.T) {
	var reads [][2]int
	read := func(start, count int) ([]int, error) {
		reads = append(reads, [2]int{start, count})
		return Range(start, start+count), nil
	}
	got, err := gather([]int{7, 3, 4, 3, 9, 8}, 1, read)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{7}, {3}, {4}, {3}, {9}, {8}}, got)
	assert.Equal(t, [][2]int{{3, 2}, {7, 3}}, reads)

	got, err = gather(nil, 1, read)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRange(t *testing.T) {
	assert.Equal(t, []int{2, 3, 4}, Range(2, 5))
	assert.Empty(t, Range(5, 5))
	assert.Empty(t, Range(5, 2))
}
