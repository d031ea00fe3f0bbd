// Package layout reads the raw bytes of HDF5 datasets by row range.
//
// A row is one index along the first dimension. [New] returns a [Reader]
// for the dataset's storage class:
//
//   - [Compact]: data held in the layout message itself.
//   - [Contiguous]: one block in the file. An undefined address means the
//     storage was never allocated and reads as zeros.
//   - [Chunked]: fixed-size chunks located through a chunk index, each
//     passed through the dataset's filter pipeline.
//
// Chunked reads only touch the chunks whose extent along the first
// dimension overlaps the requested rows. The chunk index is loaded on first
// use and kept for the life of the Reader. Chunks missing from the index
// read as zeros.
//
// Supported chunk indexes are the version 1 B-tree, single chunk, implicit,
// fixed array (unpaged), extensible array (elements held in the index block)
// and version 2 B-tree.
package layout
