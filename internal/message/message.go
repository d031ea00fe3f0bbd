// Package message decodes the header messages stored in HDF5 object headers
// and encodes the subset needed to write a dataset file.
//
// Header messages describe the properties of an object: its dataspace,
// datatype, storage layout, filters and, for groups, its links. Only the
// message types needed to locate and decode array data are parsed; all
// others come back as [Unknown].
package message

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
)

// Type identifies a header message.
type Type uint16

const (
	TypeNIL            Type = 0x0000
	TypeDataspace      Type = 0x0001
	TypeLinkInfo       Type = 0x0002
	TypeDatatype       Type = 0x0003
	TypeFillValueOld   Type = 0x0004
	TypeFillValue      Type = 0x0005
	TypeLink           Type = 0x0006
	TypeExternalFiles  Type = 0x0007
	TypeLayout         Type = 0x0008
	TypeBogus          Type = 0x0009
	TypeGroupInfo      Type = 0x000A
	TypeFilterPipeline Type = 0x000B
	TypeAttribute      Type = 0x000C
	TypeComment        Type = 0x000D
	TypeModTimeOld     Type = 0x000E
	TypeSharedTable    Type = 0x000F
	TypeContinuation   Type = 0x0010
	TypeSymbolTable    Type = 0x0011
	TypeModTime        Type = 0x0012
	TypeBTreeK         Type = 0x0013
	TypeDriverInfo     Type = 0x0014
	TypeAttributeInfo  Type = 0x0015
	TypeRefCount       Type = 0x0016
)

var typeNames = map[Type]string{
	TypeNIL:            "nil",
	TypeDataspace:      "dataspace",
	TypeLinkInfo:       "link info",
	TypeDatatype:       "datatype",
	TypeFillValueOld:   "fill value (old)",
	TypeFillValue:      "fill value",
	TypeLink:           "link",
	TypeExternalFiles:  "external files",
	TypeLayout:         "layout",
	TypeBogus:          "bogus",
	TypeGroupInfo:      "group info",
	TypeFilterPipeline: "filter pipeline",
	TypeAttribute:      "attribute",
	TypeComment:        "comment",
	TypeModTimeOld:     "modification time (old)",
	TypeSharedTable:    "shared message table",
	TypeContinuation:   "continuation",
	TypeSymbolTable:    "symbol table",
	TypeModTime:        "modification time",
	TypeBTreeK:         "b-tree k values",
	TypeDriverInfo:     "driver info",
	TypeAttributeInfo:  "attribute info",
	TypeRefCount:       "reference count",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("message 0x%04x", uint16(t))
}

// Header message flag bits.
const (
	FlagConstant    uint8 = 0x01
	FlagShared      uint8 = 0x02
	FlagNoShare     uint8 = 0x04
	FlagFailUnknown uint8 = 0x08
)

// Message is implemented by every decoded header message.
type Message interface {
	Type() Type
}

// Encodable messages can be written back into an object header.
type Encodable interface {
	Message
	Encode(e *binary.Encoder)
}

// Encode returns the body of m using cfg.
func Encode(m Encodable, cfg binary.Config) []byte {
	e := binary.NewEncoder(cfg, 0)
	m.Encode(e)
	return e.Bytes()
}

// Parse decodes one message body. Messages flagged as shared are returned as
// [*Shared] regardless of their type; the caller resolves them.
func Parse(typ Type, data []byte, flags uint8, cfg binary.Config) (Message, error) {
	d := binary.NewDecoder(data, cfg)
	var (
		m   Message
		err error
	)
	if flags&FlagShared != 0 {
		m, err = parseShared(typ, d)
	} else {
		switch typ {
		case TypeDataspace:
			m, err = parseDataspace(d)
		case TypeDatatype:
			m, err = parseDatatype(d)
		case TypeLayout:
			m, err = parseLayout(d)
		case TypeFilterPipeline:
			m, err = parseFilterPipeline(d)
		case TypeLink:
			m, err = parseLink(d)
		case TypeLinkInfo:
			m, err = parseLinkInfo(d)
		case TypeSymbolTable:
			m, err = parseSymbolTable(d)
		case TypeContinuation:
			m, err = parseContinuation(d)
		default:
			return &Unknown{MsgType: typ, Data: data}, nil
		}
	}
	if err == nil {
		err = d.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%s message: %w", typ, err)
	}
	return m, nil
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{binary.ErrUnsupported}, args...)...)
}

// Unknown holds the raw body of a message this package does not interpret.
type Unknown struct {
	MsgType Type
	Data    []byte
}

func (m *Unknown) Type() Type { return m.MsgType }

// Continuation points at a further block of header messages.
type Continuation struct {
	Address uint64
	Length  uint64
}

func (m *Continuation) Type() Type { return TypeContinuation }

func parseContinuation(d *binary.Decoder) (*Continuation, error) {
	return &Continuation{Address: d.Offset(), Length: d.Length()}, nil
}

// Shared is a message whose body lives elsewhere, either in another object
// header (a committed datatype) or in the shared message heap.
type Shared struct {
	MsgType Type
	Version uint8
	// InHeap is set when the message is stored in the shared object header
	// message heap rather than in an object header.
	InHeap  bool
	Address uint64
	HeapID  []byte
}

func (m *Shared) Type() Type { return m.MsgType }

func parseShared(typ Type, d *binary.Decoder) (*Shared, error) {
	s := &Shared{MsgType: typ, Version: d.Uint8()}
	kind := d.Uint8()
	switch s.Version {
	case 1:
		d.Skip(6)
		s.Address = d.Offset()
	case 2:
		s.Address = d.Offset()
	case 3:
		if kind == 1 {
			s.InHeap = true
			s.HeapID = d.Bytes(8)
		} else {
			s.Address = d.Offset()
		}
	default:
		return nil, unsupported("shared message version %d", s.Version)
	}
	return s, nil
}

// SymbolTable marks an old-style group and locates its B-tree and heap.
type SymbolTable struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func (m *SymbolTable) Encode(e *binary.Encoder) {
	e.PutOffset(m.BTreeAddress)
	e.PutOffset(m.HeapAddress)
}

func parseSymbolTable(d *binary.Decoder) (*SymbolTable, error) {
	return &SymbolTable{BTreeAddress: d.Offset(), HeapAddress: d.Offset()}, nil
}

// FillValue is the version 3 fill value message. Only the allocation and
// write-time flags are written; a defined fill value is never emitted.
type FillValue struct{}

func (m *FillValue) Type() Type { return TypeFillValue }

// Encode writes allocation time late and fill write time "if set".
func (m *FillValue) Encode(e *binary.Encoder) {
	e.PutUint8(3)
	e.PutUint8(0x02 | 2<<2)
}

// GroupInfo is an empty version 0 group info message.
type GroupInfo struct{}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) Encode(e *binary.Encoder) {
	e.PutUint8(0)
	e.PutUint8(0)
}
