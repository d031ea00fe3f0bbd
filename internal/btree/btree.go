// Package btree reads the B-tree indexes of HDF5 files: version 1 trees for
// old-style groups and chunked datasets, and version 2 trees used as chunk
// indexes by newer files. It also encodes version 1 chunk and group trees.
package btree

import (
	"errors"
	"sort"
)

var (
	ErrSignature = errors.New("invalid B-tree signature")
	ErrNodeType  = errors.New("unexpected B-tree node type")
)

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the chunk origin in dataset element coordinates, one value
	// per dataset dimension.
	Offset []uint64
	// Size is the stored (possibly filtered) size in bytes. Zero means the
	// chunk is stored unfiltered at its nominal size.
	Size       uint32
	FilterMask uint32
	Address    uint64
}

// ChunkIndex is the flattened set of chunks of one dataset, ordered by
// chunk origin.
type ChunkIndex struct {
	Rank    int
	Entries []ChunkEntry
}

// NewChunkIndex sorts entries and wraps them in an index.
func NewChunkIndex(rank int, entries []ChunkEntry) *ChunkIndex {
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i].Offset, entries[j].Offset)
	})
	return &ChunkIndex{Rank: rank, Entries: entries}
}

func less(a, b []uint64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Rows returns the chunks whose first-dimension extent intersects the
// element rows [start, end). chunkRows is the chunk size along that
// dimension.
func (x *ChunkIndex) Rows(start, end uint64, chunkRows uint32) []ChunkEntry {
	first := start - start%uint64(chunkRows)
	lo := sort.Search(len(x.Entries), func(i int) bool {
		return x.Entries[i].Offset[0] >= first
	})
	hi := sort.Search(len(x.Entries), func(i int) bool {
		return x.Entries[i].Offset[0] >= end
	})
	if lo > hi {
		return nil
	}
	return x.Entries[lo:hi]
}
