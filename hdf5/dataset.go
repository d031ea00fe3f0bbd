package hdf5

import (
	"fmt"
	"path"

	"github.com/dlr-wf/go-crackmnist/internal/dtype"
	"github.com/dlr-wf/go-crackmnist/internal/layout"
	"github.com/dlr-wf/go-crackmnist/internal/message"
	"github.com/dlr-wf/go-crackmnist/internal/object"
)

// Dataset is an HDF5 dataset. Reads address whole rows along the first
// dimension.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	dataspace *message.Dataspace
	converter *dtype.Converter
	storage   layout.Reader
	shape     layout.Shape
}

// DatatypeInfo summarises the stored element type.
type DatatypeInfo struct {
	// Class is the HDF5 datatype class, e.g. "fixed-point" or "string".
	Class string
	// Size is the element size in bytes.
	Size int
	// String is a short form such as "float32", "uint8" or "vlen string".
	String string
}

func newDataset(f *File, p string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{file: f, path: p, header: header}

	ds.dataspace = header.Dataspace()
	dt := header.Datatype()
	if dt == nil {
		return nil, fmt.Errorf("%s: dataset missing datatype message", p)
	}

	var err error
	ds.converter, err = dtype.New(dt, f.reader.Config(), f.heap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	ds.shape = layout.Shape{
		Dims:     ds.dataspace.Dims,
		MaxDims:  ds.dataspace.MaxDims,
		ElemSize: uint64(dt.Size),
	}
	if ds.dataspace.Kind == message.DataspaceNull {
		ds.shape.Dims = []uint64{0}
	}
	ds.storage, err = layout.New(f.reader, header.Layout(), ds.shape, header.FilterPipeline())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return ds, nil
}

// Name returns the last component of the dataset path.
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the absolute path of the dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Shape returns a copy of the dataset dimensions. A scalar has no
// dimensions.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.Kind != message.DataspaceSimple {
		return nil
	}
	return append([]uint64(nil), d.dataspace.Dims...)
}

// Len returns the extent of the first dimension. A scalar has one row.
func (d *Dataset) Len() int {
	return int(d.shape.Rows())
}

// RowElements returns the number of elements in one row.
func (d *Dataset) RowElements() int {
	return int(d.shape.RowSize() / d.shape.ElemSize)
}

// Datatype describes the stored element type.
func (d *Dataset) Datatype() DatatypeInfo {
	dt := d.converter.Datatype()
	return DatatypeInfo{Class: dt.Class.String(), Size: int(dt.Size), String: dt.String()}
}

// ReadRows returns the raw little- or big-endian bytes of rows
// [start, start+count) exactly as stored, after filters are undone.
func (d *Dataset) ReadRows(start, count int) ([]byte, error) {
	if err := d.file.check(); err != nil {
		return nil, err
	}
	if start < 0 || count < 0 {
		return nil, fmt.Errorf("%s: rows [%d, %d): %w", d.path, start, start+count, ErrOutOfRange)
	}
	b, err := d.storage.ReadRows(uint64(start), uint64(count))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	return b, nil
}

// ReadFloat32Rows reads rows [start, start+count) converted to float32.
func (d *Dataset) ReadFloat32Rows(start, count int) ([]float32, error) {
	b, err := d.ReadRows(start, count)
	if err != nil {
		return nil, err
	}
	v, err := d.converter.Float32s(b)
	return v, d.wrap(err)
}

// ReadFloat64Rows reads rows [start, start+count) converted to float64.
func (d *Dataset) ReadFloat64Rows(start, count int) ([]float64, error) {
	b, err := d.ReadRows(start, count)
	if err != nil {
		return nil, err
	}
	v, err := d.converter.Float64s(b)
	return v, d.wrap(err)
}

// ReadInt64Rows reads rows [start, start+count) converted to int64.
func (d *Dataset) ReadInt64Rows(start, count int) ([]int64, error) {
	b, err := d.ReadRows(start, count)
	if err != nil {
		return nil, err
	}
	v, err := d.converter.Int64s(b)
	return v, d.wrap(err)
}

// ReadStringRows reads rows [start, start+count) of a string dataset.
func (d *Dataset) ReadStringRows(start, count int) ([]string, error) {
	b, err := d.ReadRows(start, count)
	if err != nil {
		return nil, err
	}
	v, err := d.converter.Strings(b)
	return v, d.wrap(err)
}

// ReadFloat32 reads the whole dataset as float32.
func (d *Dataset) ReadFloat32() ([]float32, error) {
	return d.ReadFloat32Rows(0, d.Len())
}

// ReadInt64 reads the whole dataset as int64.
func (d *Dataset) ReadInt64() ([]int64, error) {
	return d.ReadInt64Rows(0, d.Len())
}

// ReadStrings reads the whole dataset as strings.
func (d *Dataset) ReadStrings() ([]string, error) {
	return d.ReadStringRows(0, d.Len())
}

func (d *Dataset) wrap(err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	return nil
}
