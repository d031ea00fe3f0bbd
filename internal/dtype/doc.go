// Package dtype converts raw HDF5 element bytes into Go values and encodes
// Go slices for the fixture writer.
//
// A [Converter] is built once per dataset. Numeric conversion widens or
// narrows from any stored integer (1 to 8 bytes, either byte order, signed
// or unsigned), IEEE float (4 or 8 bytes) or integer-based enum into
// float32, float64 or int64. Strings may be fixed length, with any of the
// three padding conventions, or variable length in the global heap.
package dtype
