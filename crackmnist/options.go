package crackmnist

import (
	"github.com/dlr-wf/go-crackmnist/fetch"
	"github.com/dlr-wf/go-crackmnist/internal/logging"
	"github.com/dlr-wf/go-crackmnist/registry"
)

// Tasks select the target returned with each image.
const (
	// TaskSegmentation pairs each image with its P×P crack tip mask.
	TaskSegmentation = "crack_tip_segmentation"
	// TaskRegression pairs each image with (K_I, K_II, T).
	TaskRegression = "SIF_regression"
)

// Config holds everything New accepts as options. The zero value of every
// field except Split selects its default. Size, Pixels and Task given
// through their options are taken as is, zero values included.
type Config struct {
	Split  string
	Size   string
	Pixels int
	Task   string
	// Root is the directory holding the variant and metadata files.
	Root            string
	Transform       Transform
	TargetTransform Transform
	Fetcher         fetch.Fetcher
	Logger          *logging.Logger
	Metrics         *Metrics
	Manifest        *registry.Manifest
	// NoDownload disables acquisition; missing files fail with
	// ErrMissingData.
	NoDownload bool

	explicit uint8
}

const (
	explicitSize uint8 = 1 << iota
	explicitPixels
	explicitTask
)

// Option configures New.
type Option func(*Config)

// WithSize selects the variant size, one of the manifest's sizes. The
// default is "S".
func WithSize(size string) Option {
	return func(c *Config) {
		c.Size = size
		c.explicit |= explicitSize
	}
}

// WithPixels selects the image resolution, one of the manifest's pixel
// counts. The default is 28.
func WithPixels(pixels int) Option {
	return func(c *Config) {
		c.Pixels = pixels
		c.explicit |= explicitPixels
	}
}

// WithTask selects TaskSegmentation (the default) or TaskRegression.
func WithTask(task string) Option {
	return func(c *Config) {
		c.Task = task
		c.explicit |= explicitTask
	}
}

// WithTransform sets the function applied to every image read.
func WithTransform(t Transform) Option {
	return func(c *Config) { c.Transform = t }
}

// WithTargetTransform sets the function applied to every target read.
func WithTargetTransform(t Transform) Option {
	return func(c *Config) { c.TargetTransform = t }
}

// WithRoot sets the data directory. The default is DefaultRoot().
func WithRoot(dir string) Option {
	return func(c *Config) { c.Root = dir }
}

// WithFetcher replaces the HTTP fetcher used for missing files.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *Config) { c.Fetcher = f }
}

// WithLogger sets the logger for acquisition and open events. Nothing is
// logged by default.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics counts samples read and failed queries into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithManifest replaces the built-in registry.CrackMNIST manifest.
func WithManifest(m *registry.Manifest) Option {
	return func(c *Config) { c.Manifest = m }
}

// WithDownload enables or disables acquisition of missing files. It is
// enabled by default.
func WithDownload(enabled bool) Option {
	return func(c *Config) { c.NoDownload = !enabled }
}

func (c *Config) setDefaults() {
	if c.Size == "" && c.explicit&explicitSize == 0 {
		c.Size = "S"
	}
	if c.Pixels == 0 && c.explicit&explicitPixels == 0 {
		c.Pixels = 28
	}
	if c.Task == "" && c.explicit&explicitTask == 0 {
		c.Task = TaskSegmentation
	}
	if c.Root == "" {
		c.Root = DefaultRoot()
	}
	if c.Manifest == nil {
		c.Manifest = registry.CrackMNIST
	}
	c.Logger = logging.OrNoop(c.Logger)
	if c.Fetcher == nil {
		c.Fetcher = fetch.NewMux(fetch.NewHTTP(fetch.WithLogger(c.Logger)), nil)
	}
}

// validate reports the first invalid parameter in the order size, pixels,
// task, split.
func (c *Config) validate() error {
	m := c.Manifest
	switch {
	case !m.ValidSize(c.Size):
		return &InvalidParameterError{Param: "size", Value: c.Size, Allowed: m.Sizes}
	case !m.ValidPixels(c.Pixels):
		return &InvalidParameterError{Param: "pixels", Value: c.Pixels, Allowed: m.Pixels}
	case !m.ValidTask(c.Task):
		return &InvalidParameterError{Param: "task", Value: c.Task, Allowed: m.Tasks}
	case !m.ValidSplit(c.Split):
		return &InvalidParameterError{Param: "split", Value: c.Split, Allowed: m.Splits}
	}
	return nil
}
