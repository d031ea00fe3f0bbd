package message

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
)

// LinkKind is the kind of target a link points at.
type LinkKind uint8

const (
	LinkHard     LinkKind = 0
	LinkSoft     LinkKind = 1
	LinkExternal LinkKind = 64
)

// Link is a named entry of a compact (new-style) group.
type Link struct {
	Kind          LinkKind
	Name          string
	CreationOrder uint64

	// Address of the target object header for hard links.
	Address uint64
	// Target path for soft links, or file and path for external links.
	Target string
	File   string
}

func (m *Link) Type() Type { return TypeLink }

func parseLink(d *binary.Decoder) (*Link, error) {
	if v := d.Uint8(); v != 1 {
		return nil, unsupported("link version %d", v)
	}
	flags := d.Uint8()
	m := &Link{}
	if flags&0x08 != 0 {
		m.Kind = LinkKind(d.Uint8())
	}
	if flags&0x04 != 0 {
		m.CreationOrder = d.Uint64()
	}
	if flags&0x10 != 0 {
		d.Skip(1)
	}
	nameLen := int(d.UintN(1 << (flags & 0x03)))
	m.Name = string(d.Bytes(nameLen))

	switch m.Kind {
	case LinkHard:
		m.Address = d.Offset()
	case LinkSoft:
		m.Target = string(d.Bytes(int(d.Uint16())))
	case LinkExternal:
		body := binary.NewDecoder(d.Bytes(int(d.Uint16())), d.Config())
		body.Skip(1)
		m.File = body.CString()
		m.Target = body.CString()
		if err := body.Err(); err != nil {
			return nil, fmt.Errorf("external link: %w", err)
		}
	default:
		return nil, unsupported("link kind %d", m.Kind)
	}
	return m, nil
}

// NewHardLink returns a link to the object header at addr.
func NewHardLink(name string, addr uint64) *Link {
	return &Link{Kind: LinkHard, Name: name, Address: addr}
}

// Encode writes a hard link with a name length field sized to fit.
func (m *Link) Encode(e *binary.Encoder) {
	var sizeBits uint8
	switch n := len(m.Name); {
	case n > 0xFFFF:
		sizeBits = 2
	case n > 0xFF:
		sizeBits = 1
	}
	e.PutUint8(1)
	e.PutUint8(sizeBits)
	e.PutUintN(uint64(len(m.Name)), 1<<sizeBits)
	e.PutBytes([]byte(m.Name))
	e.PutOffset(m.Address)
}

// LinkInfo accompanies link messages in new-style groups. A defined fractal
// heap address means the links are stored densely.
type LinkInfo struct {
	Flags             uint8
	MaxCreationIndex  uint64
	HeapAddress       uint64
	NameIndexAddress  uint64
	OrderIndexAddress uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func parseLinkInfo(d *binary.Decoder) (*LinkInfo, error) {
	if v := d.Uint8(); v != 0 {
		return nil, unsupported("link info version %d", v)
	}
	m := &LinkInfo{Flags: d.Uint8()}
	if m.Flags&0x01 != 0 {
		m.MaxCreationIndex = d.Uint64()
	}
	m.HeapAddress = d.Offset()
	m.NameIndexAddress = d.Offset()
	if m.Flags&0x02 != 0 {
		m.OrderIndexAddress = d.Offset()
	}
	return m, nil
}

// Dense reports whether links live in a fractal heap instead of link messages.
func (m *LinkInfo) Dense(cfg binary.Config) bool {
	return m.HeapAddress != cfg.Undefined()
}

// Encode writes link info for a group whose links are all compact.
func (m *LinkInfo) Encode(e *binary.Encoder) {
	e.PutUint8(0)
	e.PutUint8(0)
	e.PutUndefined()
	e.PutUndefined()
}
