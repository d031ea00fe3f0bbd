// Package filter implements the HDF5 filter pipeline applied to chunk data.
//
// When reading, filters run in reverse pipeline order. Each stored chunk
// carries a filter mask; bit i set means the filter at position i of the
// pipeline message was not applied to that chunk.
//
// # Filters
//
//   - Deflate (ID 1): zlib streams, via github.com/klauspost/compress/zlib.
//   - Shuffle (ID 2): byte transposition by element size.
//   - Fletcher-32 (ID 3): trailing checksum, verified and stripped.
//   - LZ4 (ID 32004): the registered plugin framing over LZ4 blocks.
//   - Zstandard (ID 32015): a plain zstd frame.
//
// SZIP, N-bit and scale-offset are recognised by name only. A mandatory
// filter without an implementation makes the pipeline fail with an error
// matching binary.ErrUnsupported; optional ones are skipped.
package filter
