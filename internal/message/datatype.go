package message

import (
	"encoding/binary"
	"fmt"

	hbin "github.com/dlr-wf/go-crackmnist/internal/binary"
)

// Class is the datatype class stored in the low nibble of the first byte.
type Class uint8

const (
	ClassFixedPoint Class = 0
	ClassFloat      Class = 1
	ClassTime       Class = 2
	ClassString     Class = 3
	ClassBitfield   Class = 4
	ClassOpaque     Class = 5
	ClassCompound   Class = 6
	ClassReference  Class = 7
	ClassEnum       Class = 8
	ClassVarLen     Class = 9
	ClassArray      Class = 10
)

var classNames = [...]string{
	"integer", "float", "time", "string", "bitfield", "opaque",
	"compound", "reference", "enum", "vlen", "array",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class %d", uint8(c))
}

// StringPadding is the padding convention of fixed-length strings.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharSet is the character encoding of string data.
type CharSet uint8

const (
	CharSetASCII CharSet = 0
	CharSetUTF8  CharSet = 1
)

// Member is one field of a compound datatype.
type Member struct {
	Name   string
	Offset uint32
	Type   *Datatype
}

// Datatype describes the element type of a dataset.
type Datatype struct {
	Class   Class
	Version uint8
	Size    uint32
	Bits    uint32

	// Fixed point, float, bitfield.
	Order     binary.ByteOrder
	Signed    bool
	BitOffset uint16
	Precision uint16

	// Float.
	ExpLocation  uint8
	ExpSize      uint8
	MantLocation uint8
	MantSize     uint8
	ExpBias      uint32

	// String and variable-length string.
	Padding StringPadding
	CharSet CharSet

	// VarLenString is set for variable-length sequences of characters.
	VarLenString bool

	// Base is the parent type of enum, vlen and array types.
	Base *Datatype

	Members    []Member
	EnumNames  []string
	EnumValues [][]byte
	ArrayDims  []uint32
}

func (m *Datatype) Type() Type { return TypeDatatype }

// IsString reports whether elements are fixed or variable-length strings.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || (m.Class == ClassVarLen && m.VarLenString)
}

// IsNumeric reports whether elements are integers or floats, including enums
// over an integer base.
func (m *Datatype) IsNumeric() bool {
	switch m.Class {
	case ClassFixedPoint, ClassFloat:
		return true
	case ClassEnum:
		return m.Base != nil && m.Base.IsNumeric()
	}
	return false
}

func (m *Datatype) String() string {
	switch m.Class {
	case ClassFixedPoint:
		if m.Signed {
			return fmt.Sprintf("int%d", m.Size*8)
		}
		return fmt.Sprintf("uint%d", m.Size*8)
	case ClassFloat:
		return fmt.Sprintf("float%d", m.Size*8)
	case ClassString:
		return fmt.Sprintf("string[%d]", m.Size)
	case ClassVarLen:
		if m.VarLenString {
			return "vlen string"
		}
		if m.Base != nil {
			return "vlen " + m.Base.String()
		}
	case ClassEnum:
		if m.Base != nil {
			return "enum " + m.Base.String()
		}
	case ClassArray:
		if m.Base != nil {
			return fmt.Sprintf("%v %s", m.ArrayDims, m.Base)
		}
	}
	return fmt.Sprintf("%s(%d)", m.Class, m.Size)
}

func parseDatatype(d *hbin.Decoder) (*Datatype, error) {
	head := d.Bytes(4)
	if head == nil {
		return nil, d.Err()
	}
	m := &Datatype{
		Class:   Class(head[0] & 0x0F),
		Version: head[0] >> 4,
		Bits:    uint32(head[1]) | uint32(head[2])<<8 | uint32(head[3])<<16,
		Size:    d.Uint32(),
		Order:   binary.LittleEndian,
	}
	if m.Version < 1 || m.Version > 4 {
		return nil, unsupported("datatype version %d", m.Version)
	}

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		m.setOrder()
		m.Signed = m.Bits&0x08 != 0
		m.BitOffset = d.Uint16()
		m.Precision = d.Uint16()
	case ClassFloat:
		m.setOrder()
		if m.Bits&0x40 != 0 {
			return nil, unsupported("VAX float byte order")
		}
		m.Signed = true
		m.BitOffset = d.Uint16()
		m.Precision = d.Uint16()
		m.ExpLocation = d.Uint8()
		m.ExpSize = d.Uint8()
		m.MantLocation = d.Uint8()
		m.MantSize = d.Uint8()
		m.ExpBias = d.Uint32()
	case ClassTime:
		m.setOrder()
		m.Precision = d.Uint16()
	case ClassString:
		m.Padding = StringPadding(m.Bits & 0x0F)
		m.CharSet = CharSet((m.Bits >> 4) & 0x0F)
	case ClassOpaque:
		d.Skip(int(m.Bits & 0xFF))
	case ClassReference:
	case ClassVarLen:
		m.VarLenString = m.Bits&0x0F == 1
		m.Padding = StringPadding((m.Bits >> 4) & 0x0F)
		m.CharSet = CharSet((m.Bits >> 8) & 0x0F)
		base, err := parseDatatype(d)
		if err != nil {
			return nil, fmt.Errorf("vlen base: %w", err)
		}
		m.Base = base
	case ClassEnum:
		if err := m.parseEnum(d); err != nil {
			return nil, err
		}
	case ClassArray:
		if err := m.parseArray(d); err != nil {
			return nil, err
		}
	case ClassCompound:
		if err := m.parseCompound(d); err != nil {
			return nil, err
		}
	default:
		return nil, unsupported("datatype class %d", m.Class)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Datatype) setOrder() {
	if m.Bits&0x01 != 0 {
		m.Order = binary.BigEndian
	}
}

// readName reads a NUL-terminated name, padded to a multiple of eight bytes
// in datatype versions before 3.
func (m *Datatype) readName(d *hbin.Decoder) string {
	start := d.Pos()
	name := d.CString()
	if m.Version < 3 {
		if n := (d.Pos() - start) % 8; n != 0 {
			d.Skip(8 - n)
		}
	}
	return name
}

func (m *Datatype) parseEnum(d *hbin.Decoder) error {
	base, err := parseDatatype(d)
	if err != nil {
		return fmt.Errorf("enum base: %w", err)
	}
	m.Base = base
	n := int(m.Bits & 0xFFFF)
	m.EnumNames = make([]string, n)
	for i := range m.EnumNames {
		m.EnumNames[i] = m.readName(d)
	}
	m.EnumValues = make([][]byte, n)
	for i := range m.EnumValues {
		m.EnumValues[i] = d.Bytes(int(base.Size))
	}
	return d.Err()
}

func (m *Datatype) parseArray(d *hbin.Decoder) error {
	rank := int(d.Uint8())
	if m.Version < 3 {
		d.Skip(3)
	}
	m.ArrayDims = make([]uint32, rank)
	for i := range m.ArrayDims {
		m.ArrayDims[i] = d.Uint32()
	}
	if m.Version < 3 {
		d.Skip(4 * rank)
	}
	base, err := parseDatatype(d)
	if err != nil {
		return fmt.Errorf("array base: %w", err)
	}
	m.Base = base
	return nil
}

func (m *Datatype) parseCompound(d *hbin.Decoder) error {
	n := int(m.Bits & 0xFFFF)
	m.Members = make([]Member, n)
	for i := range m.Members {
		mem := &m.Members[i]
		mem.Name = m.readName(d)
		switch {
		case m.Version >= 3:
			mem.Offset = uint32(d.UintN(bytesFor(m.Size)))
		default:
			mem.Offset = d.Uint32()
		}
		if m.Version == 1 {
			// Dimensionality, reserved, permutation, reserved and four
			// dimension sizes of the old embedded array form.
			d.Skip(1 + 3 + 4 + 4 + 16)
		}
		typ, err := parseDatatype(d)
		if err != nil {
			return fmt.Errorf("compound member %q: %w", mem.Name, err)
		}
		mem.Type = typ
	}
	return d.Err()
}

// bytesFor is the width of a compound member offset in version 3 types.
func bytesFor(size uint32) int {
	switch {
	case size <= 0xFF:
		return 1
	case size <= 0xFFFF:
		return 2
	case size <= 0xFFFFFF:
		return 3
	}
	return 4
}

// NewInteger returns a little-endian fixed-point type of size bytes.
func NewInteger(size uint32, signed bool) *Datatype {
	return &Datatype{
		Class:     ClassFixedPoint,
		Version:   1,
		Size:      size,
		Order:     binary.LittleEndian,
		Signed:    signed,
		Precision: uint16(size * 8),
	}
}

// NewFloat returns an IEEE 754 little-endian float of 4 or 8 bytes.
func NewFloat(size uint32) *Datatype {
	m := &Datatype{
		Class:     ClassFloat,
		Version:   1,
		Size:      size,
		Order:     binary.LittleEndian,
		Signed:    true,
		Precision: uint16(size * 8),
	}
	if size == 4 {
		m.ExpLocation, m.ExpSize, m.MantSize, m.ExpBias = 23, 8, 23, 127
	} else {
		m.ExpLocation, m.ExpSize, m.MantSize, m.ExpBias = 52, 11, 52, 1023
	}
	return m
}

// NewFixedString returns a NUL-padded ASCII string type of size bytes.
func NewFixedString(size uint32) *Datatype {
	return &Datatype{Class: ClassString, Version: 1, Size: size, Padding: PadNullPad}
}

// NewVarLenString returns a UTF-8 variable-length string type. Elements
// are global heap references of 4+O+4 bytes.
func NewVarLenString(cfg hbin.Config) *Datatype {
	return &Datatype{
		Class:        ClassVarLen,
		Version:      1,
		Size:         uint32(4 + cfg.OffsetSize + 4),
		VarLenString: true,
		Padding:      PadNullTerm,
		CharSet:      CharSetUTF8,
		Base:         NewInteger(1, false),
	}
}

// Encode writes integer, float, string and vlen string types.
func (m *Datatype) Encode(e *hbin.Encoder) {
	var bits uint32
	switch m.Class {
	case ClassFixedPoint:
		if m.Order == binary.BigEndian {
			bits |= 0x01
		}
		if m.Signed {
			bits |= 0x08
		}
	case ClassFloat:
		if m.Order == binary.BigEndian {
			bits |= 0x01
		}
		// Implied mantissa normalisation and the sign bit position.
		bits |= 0x20 | uint32(m.Precision-1)<<8
	case ClassString:
		bits = uint32(m.Padding) | uint32(m.CharSet)<<4
	case ClassVarLen:
		if m.VarLenString {
			bits = 1
		}
		bits |= uint32(m.Padding)<<4 | uint32(m.CharSet)<<8
	}
	e.PutUint8(uint8(m.Class) | 1<<4)
	e.PutUint8(uint8(bits))
	e.PutUint8(uint8(bits >> 8))
	e.PutUint8(uint8(bits >> 16))
	e.PutUint32(m.Size)

	switch m.Class {
	case ClassFixedPoint:
		e.PutUint16(m.BitOffset)
		e.PutUint16(m.Precision)
	case ClassFloat:
		e.PutUint16(m.BitOffset)
		e.PutUint16(m.Precision)
		e.PutUint8(m.ExpLocation)
		e.PutUint8(m.ExpSize)
		e.PutUint8(m.MantLocation)
		e.PutUint8(m.MantSize)
		e.PutUint32(m.ExpBias)
	case ClassVarLen:
		m.Base.Encode(e)
	}
}
