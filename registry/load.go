package registry

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml"
)

// Override is the TOML form of a manifest override. Every field is
// optional.
//
//	base = "crackmnist"
//	url_base = "s3://mirror/crackmnist"
//	homepage = "https://example.org/crackmnist"
//
//	[metadata]
//	url = "https://example.org/experiments_metadata.json"
//	md5 = "0123456789abcdef0123456789abcdef"
//
//	[variants.28_S]
//	md5 = "fedcba9876543210fedcba9876543210"
//
//	[samples.train]
//	S = 128
type Override struct {
	Base     string                    `toml:"base"`
	URLBase  string                    `toml:"url_base"`
	Homepage string                    `toml:"homepage"`
	License  string                    `toml:"license"`
	Metadata FileOverride              `toml:"metadata"`
	Variants map[string]FileOverride   `toml:"variants"`
	Samples  map[string]map[string]int `toml:"samples"`
}

// FileOverride replaces the URL or checksum of one file.
type FileOverride struct {
	URL string `toml:"url"`
	MD5 string `toml:"md5"`
}

// Load reads a TOML override from path and applies it to a copy of the
// manifest it names (the built-in one by default). Unknown keys are
// rejected.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var o Override
	if err := toml.NewDecoder(f).Strict(true).Decode(&o); err != nil {
		return nil, fmt.Errorf("manifest override %s: %w", path, err)
	}
	m, err := o.Apply()
	if err != nil {
		return nil, fmt.Errorf("manifest override %s: %w", path, err)
	}
	return m, nil
}

// Apply returns a copy of the base manifest with the override applied.
func (o *Override) Apply() (*Manifest, error) {
	name := o.Base
	if name == "" {
		name = Name
	}
	base, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown base manifest %q", name)
	}
	m := base.Clone()

	if o.Homepage != "" {
		m.Homepage = o.Homepage
	}
	if o.License != "" {
		m.License = o.License
	}
	if o.URLBase != "" {
		prefix := strings.TrimSuffix(o.URLBase, "/") + "/"
		for k, f := range m.Files {
			f.URL = prefix + f.Filename
			m.Files[k] = f
		}
		m.MetadataFile.URL = prefix + m.MetadataFile.Filename
	}
	m.MetadataFile = o.Metadata.apply(m.MetadataFile)
	for k, fo := range o.Variants {
		f, ok := m.Files[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, k)
		}
		m.Files[k] = fo.apply(f)
	}
	for split, sizes := range o.Samples {
		if !m.ValidSplit(split) {
			return nil, fmt.Errorf("unknown split %q", split)
		}
		for size, n := range sizes {
			if !m.ValidSize(size) {
				return nil, fmt.Errorf("unknown size %q", size)
			}
			if n < 0 {
				return nil, fmt.Errorf("negative sample count for %s/%s", split, size)
			}
			m.Samples[split][size] = n
		}
	}
	return m, nil
}

func (o FileOverride) apply(f File) File {
	if o.URL != "" {
		f.URL = o.URL
	}
	if o.MD5 != "" {
		f.MD5 = strings.ToLower(o.MD5)
	}
	return f
}
