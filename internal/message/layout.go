package message

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
)

// LayoutClass is the storage strategy of a dataset.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	}
	return fmt.Sprintf("layout %d", uint8(c))
}

// ChunkIndex identifies how chunk addresses are located.
type ChunkIndex uint8

const (
	// IndexBTreeV1 is used by layout messages before version 4.
	IndexBTreeV1     ChunkIndex = 0
	IndexSingleChunk ChunkIndex = 1
	IndexImplicit    ChunkIndex = 2
	IndexFixedArray  ChunkIndex = 3
	IndexExtensible  ChunkIndex = 4
	IndexBTreeV2     ChunkIndex = 5
)

// Layout is the data layout message.
type Layout struct {
	Version uint8
	Class   LayoutClass

	// Address of the contiguous data or of the chunk index.
	Address uint64
	// Size of contiguous storage in bytes.
	Size uint64
	// CompactData holds the raw data of a compact dataset.
	CompactData []byte

	// ChunkDims are the chunk dimensions without the trailing element size.
	ChunkDims   []uint32
	ElementSize uint32
	Index       ChunkIndex
	Flags       uint8

	// Single chunk index with filters.
	FilteredSize uint64
	FilterMask   uint32

	// Fixed and extensible array parameters.
	PageBits      uint8
	MaxBits       uint8
	IndexElements uint8
	MinPointers   uint8
	MinElements   uint8

	// Version 2 B-tree parameters.
	NodeSize     uint32
	SplitPercent uint8
	MergePercent uint8
}

func (m *Layout) Type() Type { return TypeLayout }

func parseLayout(d *binary.Decoder) (*Layout, error) {
	m := &Layout{Version: d.Uint8()}
	switch m.Version {
	case 1, 2:
		return m, m.parseV1(d)
	case 3, 4:
		return m, m.parseV3(d)
	}
	return nil, unsupported("layout version %d", m.Version)
}

func (m *Layout) parseV1(d *binary.Decoder) error {
	ndims := int(d.Uint8())
	m.Class = LayoutClass(d.Uint8())
	d.Skip(5)
	if m.Class != LayoutCompact {
		m.Address = d.Offset()
	}
	dims := make([]uint32, ndims)
	for i := range dims {
		dims[i] = d.Uint32()
	}
	switch m.Class {
	case LayoutChunked:
		if ndims < 1 {
			return fmt.Errorf("chunked layout with no dimensions")
		}
		m.ChunkDims = dims[:ndims-1]
		m.ElementSize = d.Uint32()
		if m.ElementSize == 0 {
			m.ElementSize = dims[ndims-1]
		}
	case LayoutCompact:
		n := d.Uint32()
		m.CompactData = d.Bytes(int(n))
		m.Size = uint64(n)
	case LayoutContiguous:
		m.Size = 1
		for _, v := range dims {
			m.Size *= uint64(v)
		}
	default:
		return unsupported("layout class %d", m.Class)
	}
	return nil
}

func (m *Layout) parseV3(d *binary.Decoder) error {
	m.Class = LayoutClass(d.Uint8())
	switch m.Class {
	case LayoutCompact:
		n := d.Uint16()
		m.CompactData = d.Bytes(int(n))
		m.Size = uint64(n)
	case LayoutContiguous:
		m.Address = d.Offset()
		m.Size = d.Length()
	case LayoutChunked:
		if m.Version == 3 {
			return m.parseChunkedV3(d)
		}
		return m.parseChunkedV4(d)
	default:
		return unsupported("%s layout", m.Class)
	}
	return nil
}

// The dimension list of a version 3 chunked layout ends with the element
// size, as do the chunk offsets stored in the v1 B-tree keys.
func (m *Layout) parseChunkedV3(d *binary.Decoder) error {
	ndims := int(d.Uint8())
	if ndims < 1 {
		return fmt.Errorf("chunked layout with no dimensions")
	}
	m.Address = d.Offset()
	dims := make([]uint32, ndims)
	for i := range dims {
		dims[i] = d.Uint32()
	}
	m.ChunkDims = dims[:ndims-1]
	m.ElementSize = dims[ndims-1]
	m.Index = IndexBTreeV1
	return nil
}

func (m *Layout) parseChunkedV4(d *binary.Decoder) error {
	m.Flags = d.Uint8()
	ndims := int(d.Uint8())
	width := int(d.Uint8())
	if ndims < 1 {
		return fmt.Errorf("chunked layout with no dimensions")
	}
	dims := make([]uint32, ndims)
	for i := range dims {
		dims[i] = uint32(d.UintN(width))
	}
	m.ChunkDims = dims[:ndims-1]
	m.ElementSize = dims[ndims-1]
	m.Index = ChunkIndex(d.Uint8())
	switch m.Index {
	case IndexSingleChunk:
		if m.Flags&0x02 != 0 {
			m.FilteredSize = d.Length()
			m.FilterMask = d.Uint32()
		}
	case IndexImplicit:
	case IndexFixedArray:
		m.PageBits = d.Uint8()
	case IndexExtensible:
		m.MaxBits = d.Uint8()
		m.IndexElements = d.Uint8()
		m.MinPointers = d.Uint8()
		m.MinElements = d.Uint8()
		m.PageBits = d.Uint8()
	case IndexBTreeV2:
		m.NodeSize = d.Uint32()
		m.SplitPercent = d.Uint8()
		m.MergePercent = d.Uint8()
	default:
		return unsupported("chunk index type %d", m.Index)
	}
	m.Address = d.Offset()
	return nil
}

// NewContiguous returns a version 3 contiguous layout.
func NewContiguous(addr, size uint64) *Layout {
	return &Layout{Version: 3, Class: LayoutContiguous, Address: addr, Size: size}
}

// NewChunked returns a version 3 chunked layout indexed by a v1 B-tree.
func NewChunked(btree uint64, chunk []uint32, elemSize uint32) *Layout {
	return &Layout{
		Version:     3,
		Class:       LayoutChunked,
		Address:     btree,
		ChunkDims:   append([]uint32(nil), chunk...),
		ElementSize: elemSize,
	}
}

// Encode writes a version 3 layout. Only contiguous and chunked classes are
// written.
func (m *Layout) Encode(e *binary.Encoder) {
	e.PutUint8(3)
	e.PutUint8(uint8(m.Class))
	switch m.Class {
	case LayoutContiguous:
		e.PutOffset(m.Address)
		e.PutLength(m.Size)
	case LayoutChunked:
		e.PutUint8(uint8(len(m.ChunkDims) + 1))
		e.PutOffset(m.Address)
		for _, v := range m.ChunkDims {
			e.PutUint32(v)
		}
		e.PutUint32(m.ElementSize)
	case LayoutCompact:
		e.PutUint16(uint16(len(m.CompactData)))
		e.PutBytes(m.CompactData)
	}
}
