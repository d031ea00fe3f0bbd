package hdf5

import (
	"github.com/dlr-wf/go-crackmnist/internal/logging"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// FileOption configures how a file is opened.
type FileOption func(*fileOptions)

type fileOptions struct {
	mmap   bool
	logger *logging.Logger
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{mmap: true}
}

// WithMmap selects between a memory-mapped file (the default) and plain
// positioned reads.
func WithMmap(enabled bool) FileOption {
	return func(o *fileOptions) {
		o.mmap = enabled
	}
}

// WithLogger sets the logger used for open and close events.
func WithLogger(l *logging.Logger) FileOption {
	return func(o *fileOptions) {
		o.logger = l
	}
}

// WriterOption configures file creation.
type WriterOption func(*writerOptions)

type writerOptions struct {
	legacy bool
}

// WithLegacyFormat writes the oldest file format, which is what h5py and
// the HDF5 library produce by default: a version 0 superblock, version 1
// object headers and a root group indexed by a symbol table.
func WithLegacyFormat() WriterOption {
	return func(o *writerOptions) {
		o.legacy = true
	}
}

// DatasetOption configures dataset creation.
type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	chunks     []uint64
	compressor *message.FilterInfo
	shuffle    bool
	fletcher32 bool
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{}
}

// WithChunks selects chunked storage with the given chunk dimensions. The
// number of dimensions must match the dataset shape.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = append([]uint64(nil), dims...)
	}
}

// WithDeflate compresses chunks with zlib at level 0-9. It replaces any
// other compressor and requires WithChunks.
func WithDeflate(level int) DatasetOption {
	return func(o *datasetOptions) {
		if level >= 0 && level <= 9 {
			o.compressor = &message.FilterInfo{ID: message.FilterDeflate, Flags: 1, ClientData: []uint32{uint32(level)}}
		}
	}
}

// WithZstd compresses chunks with the registered zstd filter. It replaces
// any other compressor and requires WithChunks.
func WithZstd(level int) DatasetOption {
	return func(o *datasetOptions) {
		o.compressor = &message.FilterInfo{ID: message.FilterZstd, Flags: 1, ClientData: []uint32{uint32(level)}}
	}
}

// WithLZ4 compresses chunks with the registered LZ4 filter. It replaces
// any other compressor and requires WithChunks.
func WithLZ4() DatasetOption {
	return func(o *datasetOptions) {
		o.compressor = &message.FilterInfo{ID: message.FilterLZ4, Flags: 1}
	}
}

// WithFletcher32 appends a checksum to every chunk. It requires WithChunks.
func WithFletcher32() DatasetOption {
	return func(o *datasetOptions) {
		o.fletcher32 = true
	}
}

// WithShuffle byte-shuffles chunks before compression. It requires
// WithChunks.
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) {
		o.shuffle = true
	}
}

// pipeline returns the filter pipeline the options describe, or nil.
func (o *datasetOptions) pipeline(elemSize int) *message.FilterPipeline {
	var filters []message.FilterInfo
	if o.shuffle {
		filters = append(filters, message.FilterInfo{ID: message.FilterShuffle, Flags: 1, ClientData: []uint32{uint32(elemSize)}})
	}
	if o.compressor != nil {
		filters = append(filters, *o.compressor)
	}
	if o.fletcher32 {
		filters = append(filters, message.FilterInfo{ID: message.FilterFletcher32})
	}
	if len(filters) == 0 {
		return nil
	}
	return &message.FilterPipeline{Version: 2, Filters: filters}
}
