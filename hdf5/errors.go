// Package hdf5 reads the subset of HDF5 that dataset files produced by h5py
// use, and writes small files of the same shape for tests and synthetic data.
package hdf5

import (
	"errors"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/layout"
	"github.com/dlr-wf/go-crackmnist/internal/superblock"
)

// Common errors
var (
	ErrNotHDF5     = superblock.ErrNotHDF5
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = binary.ErrUnsupported
	ErrInvalidPath = errors.New("invalid path")
	ErrClosed      = errors.New("file is closed")
	ErrOutOfRange  = layout.ErrOutOfRange
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
)

// MaxLinkDepth is the maximum number of soft links followed while resolving
// one path.
const MaxLinkDepth = 32
