// Package crackmnisttest writes small synthetic CrackMNIST variants for
// tests and offline experiments. Every value is a simple function of its
// sample index, so callers can recompute what they expect to read back.
package crackmnisttest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dlr-wf/go-crackmnist/hdf5"
	"github.com/dlr-wf/go-crackmnist/registry"
)

// Options selects what Write produces. Zero fields take defaults.
type Options struct {
	Pixels int
	Size   string
	// Samples maps split to sample count. Default train 8, val 4, test 4.
	// Splits with no samples get no columns.
	Samples     map[string]int
	Experiments []string
	// VarLenNames stores the experiment names as variable-length strings.
	VarLenNames bool
	// Compressed chunks images and masks per sample and deflates them.
	Compressed bool
	// DropMetadata leaves the last experiment out of the metadata file.
	DropMetadata bool
	// Legacy writes the oldest HDF5 format, as h5py does by default.
	Legacy bool
}

// Fixture describes a written variant.
type Fixture struct {
	Root         string
	Path         string
	MetadataPath string
	Pixels       int
	Size         string
	Samples      map[string]int
	Experiments  []string
	Table        map[string]map[string]any
	// Manifest is registry.CrackMNIST with the fixture's sample counts.
	Manifest *registry.Manifest
}

// Write creates the variant file and the metadata file in dir.
func Write(dir string, opts Options) (*Fixture, error) {
	if opts.Pixels == 0 {
		opts.Pixels = 28
	}
	if opts.Size == "" {
		opts.Size = "S"
	}
	if opts.Samples == nil {
		opts.Samples = map[string]int{"train": 8, "val": 4, "test": 4}
	}
	if opts.Experiments == nil {
		opts.Experiments = []string{"1_S950_upper", "1_S950_lower", "2_S160_upper"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	key := registry.Key{Pixels: opts.Pixels, Size: opts.Size}
	fx := &Fixture{
		Root:         dir,
		Path:         filepath.Join(dir, key.H5File()),
		MetadataPath: filepath.Join(dir, registry.MetadataFilename),
		Pixels:       opts.Pixels,
		Size:         opts.Size,
		Samples:      opts.Samples,
		Experiments:  opts.Experiments,
		Table:        map[string]map[string]any{},
		Manifest:     registry.CrackMNIST.Clone(),
	}
	for split, n := range opts.Samples {
		if _, ok := fx.Manifest.Samples[split]; !ok {
			return nil, fmt.Errorf("unknown split %q", split)
		}
		fx.Manifest.Samples[split][opts.Size] = n
	}

	if err := fx.writeVariant(opts); err != nil {
		return nil, err
	}
	if err := fx.writeMetadata(opts); err != nil {
		return nil, err
	}
	return fx, nil
}

func (fx *Fixture) writeVariant(opts Options) (err error) {
	var hopts []hdf5.WriterOption
	if opts.Legacy {
		hopts = append(hopts, hdf5.WithLegacyFormat())
	}
	w, err := hdf5.Create(fx.Path, hopts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	if err := w.WriteStrings("experiments", fx.Experiments, opts.VarLenNames); err != nil {
		return err
	}
	p := uint64(fx.Pixels)
	for _, split := range registry.CrackMNIST.Splits {
		n, ok := fx.Samples[split]
		if !ok || n == 0 {
			continue
		}
		rows := uint64(n)
		var img, mask []hdf5.DatasetOption
		if opts.Compressed {
			img = []hdf5.DatasetOption{hdf5.WithChunks(1, 2, p, p), hdf5.WithShuffle(), hdf5.WithDeflate(4)}
			mask = []hdf5.DatasetOption{hdf5.WithChunks(1, p, p), hdf5.WithDeflate(4)}
		}
		cols := []struct {
			name  string
			shape []uint64
			data  any
			opts  []hdf5.DatasetOption
		}{
			{"images", []uint64{rows, 2, p, p}, fx.images(n), img},
			{"masks", []uint64{rows, p, p}, fx.masks(n), mask},
			{"SIFs", []uint64{rows, 3}, fx.sifs(n), nil},
			{"exp_ids", []uint64{rows}, fx.expIDs(n), nil},
			{"forces", []uint64{rows}, fx.forces(n), nil},
			{"augs", []uint64{rows, 4}, fx.augs(n), nil},
		}
		for _, c := range cols {
			if err := w.WriteDataset(split+"_"+c.name, c.shape, c.data, c.opts...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fx *Fixture) writeMetadata(opts Options) error {
	for j, name := range fx.Experiments {
		if opts.DropMetadata && j == len(fx.Experiments)-1 {
			continue
		}
		fx.Table[name] = map[string]any{
			"experiment": name,
			"material":   "AA2024-T3",
			"index":      float64(j),
		}
	}
	b, err := json.MarshalIndent(fx.Table, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fx.MetadataPath, b, 0o644)
}

func (fx *Fixture) images(n int) []float32 {
	out := make([]float32, 0, n*2*fx.Pixels*fx.Pixels)
	for i := range n {
		for c := range 2 {
			out = append(out, fx.Image(i, c)...)
		}
	}
	return out
}

func (fx *Fixture) masks(n int) []uint8 {
	out := make([]uint8, 0, n*fx.Pixels*fx.Pixels)
	for i := range n {
		for _, v := range fx.Mask(i) {
			out = append(out, uint8(v))
		}
	}
	return out
}

func (fx *Fixture) sifs(n int) []float64 {
	out := make([]float64, 0, n*3)
	for i := range n {
		s := fx.SIF(i)
		out = append(out, float64(s[0]), float64(s[1]), float64(s[2]))
	}
	return out
}

func (fx *Fixture) expIDs(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = fx.ExpID(i)
	}
	return out
}

func (fx *Fixture) forces(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = fx.Force(i)
	}
	return out
}

func (fx *Fixture) augs(n int) []float64 {
	out := make([]float64, 0, n*4)
	for i := range n {
		a := fx.RawAugmentation(i)
		out = append(out, a[:]...)
	}
	return out
}

// Image returns channel c of sample i.
func (fx *Fixture) Image(i, c int) []float32 {
	px := fx.Pixels * fx.Pixels
	out := make([]float32, px)
	for k := range out {
		out[k] = float32(i*10000 + c*1000 + k%1000)
	}
	return out
}

// Mask returns the segmentation mask of sample i.
func (fx *Fixture) Mask(i int) []float32 {
	out := make([]float32, fx.Pixels*fx.Pixels)
	for k := range out {
		out[k] = float32((i + k) % 2)
	}
	return out
}

// SIF returns (K_I, K_II, T) of sample i.
func (fx *Fixture) SIF(i int) []float32 {
	return []float32{float32(i), -float32(i), 0.5 * float32(i)}
}

// ExpID returns the experiment id of sample i.
func (fx *Fixture) ExpID(i int) int64 {
	return int64(i % len(fx.Experiments))
}

// Force returns the applied load of sample i.
func (fx *Fixture) Force(i int) float64 {
	return 1000 + 10*float64(i)
}

// RawAugmentation returns the stored augmentation row of sample i.
func (fx *Fixture) RawAugmentation(i int) [4]float64 {
	return [4]float64{float64(i), -float64(i), float64(90 * (i % 4)), float64(i % 2)}
}
