// Package crackmnist gives indexed access to CrackMNIST, a dataset of
// digital image correlation displacement fields from fatigue crack growth
// experiments.
//
// A Dataset binds one split of one variant (resolution and size). New
// validates its arguments, downloads missing files, opens the HDF5 file
// over a memory mapping and then answers every query by reading only the
// rows it needs:
//
//	ds, err := crackmnist.New(ctx, "train", crackmnist.WithPixels(64))
//	if err != nil {
//		return err
//	}
//	defer ds.Close()
//	s, err := ds.Get(0)
//
// A Dataset is safe for concurrent readers. Close must not run concurrently
// with queries.
package crackmnist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dlr-wf/go-crackmnist/fetch"
	"github.com/dlr-wf/go-crackmnist/hdf5"
	"github.com/dlr-wf/go-crackmnist/internal/logging"
	"github.com/dlr-wf/go-crackmnist/registry"
)

// Record is the free-form metadata of one experiment.
type Record = map[string]any

// MetadataTable maps experiment names to their records.
type MetadataTable map[string]Record

// Dataset is one split of a CrackMNIST variant.
type Dataset struct {
	cfg     Config
	variant registry.Variant
	path    string
	log     *logging.Logger

	file    *hdf5.File
	images  *column
	targets *column
	expIDs  *column
	forces  *column
	augs    *column
	n       int

	experiments []string
	table       MetadataTable

	indexOnce sync.Once
	index     map[int64]*roaring.Bitmap
	indexErr  error

	closed atomic.Bool
}

// New opens split of the variant selected by opts, downloading the variant
// and the experiment metadata first when they are missing.
func New(ctx context.Context, split string, opts ...Option) (*Dataset, error) {
	cfg := Config{Split: split}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewFromConfig(ctx, cfg)
}

// NewFromConfig is New with its options given as a struct.
func NewFromConfig(ctx context.Context, cfg Config) (*Dataset, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := cfg.Manifest
	v, err := m.Variant(cfg.Pixels, cfg.Size)
	if err != nil {
		return nil, err
	}
	if !v.Available {
		return nil, &UnavailableError{File: v.Filename}
	}

	log := cfg.Logger.WithComponent("crackmnist").WithVariant(cfg.Pixels, cfg.Size)
	d := &Dataset{
		cfg:     cfg,
		variant: v,
		path:    filepath.Join(cfg.Root, v.Filename),
		log:     log,
	}
	if !cfg.NoDownload {
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, err
		}
		if err := d.acquire(ctx, m.Metadata()); err != nil {
			return nil, err
		}
		if err := d.acquire(ctx, v.File); err != nil {
			return nil, err
		}
	}
	for _, name := range []string{m.Metadata().Filename, v.Filename} {
		p := filepath.Join(cfg.Root, name)
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingData, p)
		}
	}

	err = d.open()
	log.LogOpen(ctx, d.path, d.n, err)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) acquire(ctx context.Context, f registry.File) error {
	dest := filepath.Join(d.cfg.Root, f.Filename)
	if err := fetch.Ensure(ctx, d.cfg.Fetcher, f.URL, dest, f.MD5); err != nil {
		return &AcquisitionError{
			File:     f.Filename,
			Homepage: d.cfg.Manifest.Homepage,
			URL:      f.URL,
			MD5:      f.MD5,
			Root:     d.cfg.Root,
			Err:      err,
		}
	}
	return nil
}

func (d *Dataset) open() (err error) {
	d.file, err = hdf5.Open(d.path, hdf5.WithLogger(d.log))
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			d.file.Close()
			d.file = nil
		}
	}()

	split := d.cfg.Split
	target := "masks"
	if d.cfg.Task == TaskRegression {
		target = "SIFs"
	}
	cols := []struct {
		dst  **column
		name string
	}{
		{&d.images, split + "_images"},
		{&d.targets, split + "_" + target},
		{&d.expIDs, split + "_exp_ids"},
		{&d.forces, split + "_forces"},
		{&d.augs, split + "_augs"},
	}
	for _, c := range cols {
		if *c.dst, err = openColumn(d.file, c.name); err != nil {
			return err
		}
	}
	d.n = d.images.len()
	for _, c := range cols[1:] {
		if n := (*c.dst).len(); n != d.n {
			return fmt.Errorf("column %s: %d samples, %s has %d", c.name, n, d.images.name(), d.n)
		}
	}
	if err := d.expIDs.expect(1); err != nil {
		return err
	}
	if err := d.forces.expect(1); err != nil {
		return err
	}
	if err := d.augs.expect(4); err != nil {
		return err
	}

	exps, err := d.file.OpenDataset("experiments")
	if err != nil {
		return fmt.Errorf("column experiments: %w", err)
	}
	if d.experiments, err = exps.ReadStrings(); err != nil {
		return err
	}

	mdPath := filepath.Join(d.cfg.Root, d.cfg.Manifest.Metadata().Filename)
	b, err := os.ReadFile(mdPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, &d.table); err != nil {
		return fmt.Errorf("parsing %s: %w", mdPath, err)
	}
	return nil
}

// Close releases the file. It is safe to call more than once.
func (d *Dataset) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.file.Close()
}

func (d *Dataset) check() error {
	if d.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Len returns the number of samples in the split.
func (d *Dataset) Len() int { return d.n }

// Split returns the split the dataset was opened on.
func (d *Dataset) Split() string { return d.cfg.Split }

// Task returns the configured task.
func (d *Dataset) Task() string { return d.cfg.Task }

// Variant returns the registry entry of the open file.
func (d *Dataset) Variant() registry.Variant { return d.variant }

// Path returns the location of the HDF5 file.
func (d *Dataset) Path() string { return d.path }

// Description summarises the dataset for the configured task.
func (d *Dataset) Description() string {
	const inputs = "CrackMNIST is a dataset of 2-channel DIC images (u_x, u_y displacements) as inputs from fatigue " +
		"crack growth experiments"
	if d.cfg.Task == TaskRegression {
		return inputs + " with corresponding stress intensity factors (SIFs) (K_I, K_II, T-Stress) as targets."
	}
	return inputs + " and corresponding crack tip segmentation masks as targets."
}

// checkIndices validates every index against [0, Len).
func (d *Dataset) checkIndices(idx []int) error {
	if err := d.check(); err != nil {
		return err
	}
	for _, i := range idx {
		if i < 0 || i >= d.n {
			return &IndexError{Index: i, Len: d.n}
		}
	}
	return nil
}

// Get returns sample i with the configured transforms applied.
func (d *Dataset) Get(i int) (Sample, error) {
	b, err := d.GetBatch([]int{i})
	if err != nil {
		return Sample{}, err
	}
	return Sample{Image: b.Images[0], Target: b.Targets[0]}, nil
}

// GetBatch returns the samples at idx, in the order given. Indices may
// repeat and need not be sorted. Each transform runs once per element.
func (d *Dataset) GetBatch(idx []int) (Batch, error) {
	b, err := d.getBatch(idx)
	if err != nil {
		return Batch{}, d.cfg.Metrics.observe(err)
	}
	d.cfg.Metrics.samples(b.Len())
	return b, nil
}

func (d *Dataset) getBatch(idx []int) (Batch, error) {
	if err := d.checkIndices(idx); err != nil {
		return Batch{}, err
	}
	images, err := d.images.tensors(idx)
	if err != nil {
		return Batch{}, err
	}
	targets, err := d.targets.tensors(idx)
	if err != nil {
		return Batch{}, err
	}
	if err := apply(d.cfg.Transform, images); err != nil {
		return Batch{}, fmt.Errorf("image transform: %w", err)
	}
	if err := apply(d.cfg.TargetTransform, targets); err != nil {
		return Batch{}, fmt.Errorf("target transform: %w", err)
	}
	return Batch{Images: images, Targets: targets}, nil
}

func apply(t Transform, ts []Tensor) error {
	if t == nil {
		return nil
	}
	for i := range ts {
		out, err := t(ts[i])
		if err != nil {
			return err
		}
		ts[i] = out
	}
	return nil
}
