package message

import "github.com/dlr-wf/go-crackmnist/internal/binary"

// DataspaceKind distinguishes scalar, simple and null dataspaces.
type DataspaceKind uint8

const (
	DataspaceScalar DataspaceKind = 0
	DataspaceSimple DataspaceKind = 1
	DataspaceNull   DataspaceKind = 2
)

// Dataspace describes the shape of a dataset.
type Dataspace struct {
	Version uint8
	Kind    DataspaceKind
	Dims    []uint64
	MaxDims []uint64
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NumElements returns the product of the dimensions; 1 for a scalar and 0
// for a null dataspace.
func (m *Dataspace) NumElements() uint64 {
	if m.Kind == DataspaceNull {
		return 0
	}
	n := uint64(1)
	for _, d := range m.Dims {
		n *= d
	}
	return n
}

// NewDataspace returns a simple dataspace with fixed dimensions.
func NewDataspace(dims []uint64) *Dataspace {
	kind := DataspaceSimple
	if len(dims) == 0 {
		kind = DataspaceScalar
	}
	return &Dataspace{Version: 2, Kind: kind, Dims: append([]uint64(nil), dims...)}
}

func parseDataspace(d *binary.Decoder) (*Dataspace, error) {
	m := &Dataspace{Version: d.Uint8()}
	rank := int(d.Uint8())
	flags := d.Uint8()
	switch m.Version {
	case 1:
		d.Skip(5)
		m.Kind = DataspaceSimple
		if rank == 0 {
			m.Kind = DataspaceScalar
		}
	case 2:
		m.Kind = DataspaceKind(d.Uint8())
	default:
		return nil, unsupported("dataspace version %d", m.Version)
	}
	m.Dims = make([]uint64, rank)
	for i := range m.Dims {
		m.Dims[i] = d.Length()
	}
	if flags&0x01 != 0 {
		m.MaxDims = make([]uint64, rank)
		for i := range m.MaxDims {
			m.MaxDims[i] = d.Length()
		}
	}
	return m, nil
}

// Encode writes a version 2 dataspace without maximum dimensions.
func (m *Dataspace) Encode(e *binary.Encoder) {
	e.PutUint8(2)
	e.PutUint8(uint8(len(m.Dims)))
	e.PutUint8(0)
	e.PutUint8(uint8(m.Kind))
	for _, d := range m.Dims {
		e.PutLength(d)
	}
}
