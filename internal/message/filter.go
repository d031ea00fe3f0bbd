package message

import "github.com/dlr-wf/go-crackmnist/internal/binary"

// Filter identifiers defined by HDF5 and the registered plugins this module
// can decode.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
	FilterLZ4         uint16 = 32004
	FilterZstd        uint16 = 32015
)

// FilterInfo describes one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// Optional reports whether the filter may be skipped when unavailable.
func (f FilterInfo) Optional() bool { return f.Flags&0x01 != 0 }

// FilterPipeline lists the filters applied to every chunk, in write order.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

func parseFilterPipeline(d *binary.Decoder) (*FilterPipeline, error) {
	m := &FilterPipeline{Version: d.Uint8()}
	n := int(d.Uint8())
	switch m.Version {
	case 1:
		d.Skip(6)
	case 2:
	default:
		return nil, unsupported("filter pipeline version %d", m.Version)
	}
	m.Filters = make([]FilterInfo, n)
	for i := range m.Filters {
		f := &m.Filters[i]
		f.ID = d.Uint16()
		var nameLen int
		if m.Version == 1 || f.ID >= 256 {
			nameLen = int(d.Uint16())
		}
		f.Flags = d.Uint16()
		nvals := int(d.Uint16())
		if nameLen > 0 {
			name := d.Bytes(nameLen)
			if m.Version == 1 && nameLen%8 != 0 {
				d.Skip(8 - nameLen%8)
			}
			f.Name = cstring(name)
		}
		f.ClientData = make([]uint32, nvals)
		for j := range f.ClientData {
			f.ClientData[j] = d.Uint32()
		}
		if m.Version == 1 && nvals%2 == 1 {
			d.Skip(4)
		}
	}
	return m, nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Encode writes a version 2 pipeline without filter names.
func (m *FilterPipeline) Encode(e *binary.Encoder) {
	e.PutUint8(2)
	e.PutUint8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		e.PutUint16(f.ID)
		if f.ID >= 256 {
			e.PutUint16(0)
		}
		e.PutUint16(f.Flags)
		e.PutUint16(uint16(len(f.ClientData)))
		for _, v := range f.ClientData {
			e.PutUint32(v)
		}
	}
}
