package hdf5

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync/atomic"

	binpkg "github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/heap"
	"github.com/dlr-wf/go-crackmnist/internal/logging"
	"github.com/dlr-wf/go-crackmnist/internal/mmap"
	"github.com/dlr-wf/go-crackmnist/internal/object"
	"github.com/dlr-wf/go-crackmnist/internal/superblock"
)

// File is an open HDF5 file. Its methods and those of the groups and
// datasets opened from it are safe for concurrent use.
type File struct {
	path       string
	closer     io.Closer
	reader     *binpkg.Reader
	superblock *superblock.Superblock
	heap       *heap.Cache
	root       *Group
	log        *logging.Logger
	closed     atomic.Bool
}

// Open opens an HDF5 file for reading.
func Open(path string, opts ...FileOption) (*File, error) {
	options := defaultFileOptions()
	for _, opt := range opts {
		opt(options)
	}

	var (
		ra     io.ReaderAt
		closer io.Closer
	)
	if options.mmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, err
		}
		ra, closer = m, m
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		ra, closer = f, f
	}

	f, err := open(ra, closer, options)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	f.path = path
	f.log = f.log.WithPath(path)
	f.log.Debug("opened hdf5 file", "superblock", f.superblock.Version, "mmap", options.mmap)
	return f, nil
}

// OpenReaderAt reads an HDF5 file from r. Closing the returned File does not
// close r.
func OpenReaderAt(r io.ReaderAt, opts ...FileOption) (*File, error) {
	options := defaultFileOptions()
	for _, opt := range opts {
		opt(options)
	}
	return open(r, nil, options)
}

func open(ra io.ReaderAt, closer io.Closer, options *fileOptions) (*File, error) {
	sb, err := superblock.Read(ra)
	if err != nil {
		return nil, err
	}
	if sb.BaseAddress != 0 {
		ra = io.NewSectionReader(ra, int64(sb.BaseAddress), math.MaxInt64-int64(sb.BaseAddress))
	}
	r := binpkg.NewReader(ra, sb.Config())

	f := &File{
		closer:     closer,
		reader:     r,
		superblock: sb,
		heap:       heap.NewCache(r),
		log:        logging.OrNoop(options.logger).WithComponent("hdf5"),
	}

	header, err := object.Read(r, sb.RootGroupAddress)
	if err != nil {
		return nil, fmt.Errorf("root group: %w", err)
	}
	f.root = &Group{file: f, path: "/", header: header}
	return f, nil
}

// Close releases the file. Closing twice is a no-op.
func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.log.Debug("closed hdf5 file")
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Path returns the path the file was opened from, or "" for OpenReaderAt.
func (f *File) Path() string {
	return f.path
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.superblock.Version)
}

// Root returns the root group.
func (f *File) Root() *Group {
	return f.root
}

// OpenGroup opens the group at an absolute or root-relative path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens the dataset at an absolute or root-relative path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.root.OpenDataset(path)
}

func (f *File) check() error {
	if f.closed.Load() {
		return ErrClosed
	}
	return nil
}

// splitPath splits a slash-separated path into its components. Leading and
// trailing slashes are ignored; empty or dot components are rejected.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
