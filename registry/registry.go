// Package registry holds the static description of the CrackMNIST variants:
// which sizes, resolutions, tasks and splits exist, where each file is
// published and how many samples each split has.
package registry

import (
	"errors"
	"fmt"
	"slices"
)

// Name is the name of the built-in manifest.
const Name = "crackmnist"

// Homepage is where manual download instructions point.
const Homepage = "https://github.com/dlr-wf/CrackMNIST/"

// MetadataFilename is the experiment metadata document shared by all
// variants.
const MetadataFilename = "experiments_metadata.json"

const zenodoBase = "https://zenodo.org/records/-/files"

var ErrUnknownVariant = errors.New("unknown variant")

// Key identifies a variant by resolution and size.
type Key struct {
	Pixels int
	Size   string
}

func (k Key) String() string { return fmt.Sprintf("%d_%s", k.Pixels, k.Size) }

// H5File returns the HDF5 file name of the variant.
func (k Key) H5File() string { return fmt.Sprintf("%s_%d_%s.h5", Name, k.Pixels, k.Size) }

// Unavailable lists the variants that are not published.
var Unavailable = []Key{{256, "M"}, {256, "L"}}

// File is one downloadable file.
type File struct {
	Filename string
	URL      string
	// MD5 is the expected hex digest; "" or "-" means unpublished.
	MD5 string
}

// Variant describes one HDF5 file of the dataset.
type Variant struct {
	Key
	File
	Available bool
}

// Manifest describes a dataset and its published files. Manifests are
// shared read-only; use Clone before changing one.
type Manifest struct {
	Name        string
	Description string
	Homepage    string
	License     string
	Sizes       []string
	Pixels      []int
	Tasks       []string
	Splits      []string
	// Labels maps segmentation class names to mask values.
	Labels   map[string]int
	Channels int

	// Files maps Key.String() to the variant file.
	Files        map[string]File
	MetadataFile File
	// Samples maps split, then size, to the number of samples.
	Samples     map[string]map[string]int
	Unavailable []Key
}

// CrackMNIST is the built-in manifest.
var CrackMNIST = newCrackMNIST()

func newCrackMNIST() *Manifest {
	m := &Manifest{
		Name:        Name,
		Description: "Digital image correlation data of fatigue crack growth experiments",
		Homepage:    Homepage,
		License:     "",
		Sizes:       []string{"S", "M", "L"},
		Pixels:      []int{28, 64, 128, 256},
		Tasks:       []string{"crack_tip_segmentation", "SIF_regression"},
		Splits:      []string{"train", "val", "test"},
		Labels:      map[string]int{"crack_tip": 1, "no_crack_tip": 0},
		Channels:    2,
		Files:       map[string]File{},
		MetadataFile: File{
			Filename: MetadataFilename,
			URL:      zenodoBase + "/" + MetadataFilename + "?download=1",
			MD5:      "-",
		},
		Samples: map[string]map[string]int{
			"train": {"S": 10048, "M": 21672, "L": 42088},
			"val":   {"S": 5944, "M": 11736, "L": 11736},
			"test":  {"S": 5944, "M": 11672, "L": 16560},
		},
		Unavailable: slices.Clone(Unavailable),
	}
	for _, p := range m.Pixels {
		for _, s := range m.Sizes {
			k := Key{p, s}
			m.Files[k.String()] = File{
				Filename: k.H5File(),
				URL:      zenodoBase + "/" + k.H5File() + "?download=1",
				MD5:      "-",
			}
		}
	}
	return m
}

var manifests = map[string]*Manifest{Name: CrackMNIST}

// Lookup returns the built-in manifest called name.
func Lookup(name string) (*Manifest, bool) {
	m, ok := manifests[name]
	return m, ok
}

// Variant returns the file for a resolution and size.
func (m *Manifest) Variant(pixels int, size string) (Variant, error) {
	k := Key{pixels, size}
	f, ok := m.Files[k.String()]
	if !ok || !m.ValidPixels(pixels) || !m.ValidSize(size) {
		return Variant{}, fmt.Errorf("%w: %s", ErrUnknownVariant, k)
	}
	return Variant{Key: k, File: f, Available: m.Available(pixels, size)}, nil
}

// Variants lists every variant, by resolution then size.
func (m *Manifest) Variants() []Variant {
	var out []Variant
	for _, p := range m.Pixels {
		for _, s := range m.Sizes {
			if v, err := m.Variant(p, s); err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}

// Available reports whether a variant is published.
func (m *Manifest) Available(pixels int, size string) bool {
	return !slices.Contains(m.Unavailable, Key{pixels, size})
}

// Metadata returns the experiment metadata file.
func (m *Manifest) Metadata() File { return m.MetadataFile }

// SampleCount returns the number of samples of a split for a size.
func (m *Manifest) SampleCount(split, size string) (int, bool) {
	n, ok := m.Samples[split][size]
	return n, ok
}

func (m *Manifest) ValidSize(s string) bool { return slices.Contains(m.Sizes, s) }

func (m *Manifest) ValidPixels(p int) bool { return slices.Contains(m.Pixels, p) }

func (m *Manifest) ValidTask(t string) bool { return slices.Contains(m.Tasks, t) }

func (m *Manifest) ValidSplit(s string) bool { return slices.Contains(m.Splits, s) }

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Sizes = slices.Clone(m.Sizes)
	c.Pixels = slices.Clone(m.Pixels)
	c.Tasks = slices.Clone(m.Tasks)
	c.Splits = slices.Clone(m.Splits)
	c.Unavailable = slices.Clone(m.Unavailable)
	c.Labels = make(map[string]int, len(m.Labels))
	for k, v := range m.Labels {
		c.Labels[k] = v
	}
	c.Files = make(map[string]File, len(m.Files))
	for k, v := range m.Files {
		c.Files[k] = v
	}
	c.Samples = make(map[string]map[string]int, len(m.Samples))
	for split, sizes := range m.Samples {
		c.Samples[split] = make(map[string]int, len(sizes))
		for s, n := range sizes {
			c.Samples[split][s] = n
		}
	}
	return &c
}
