package binary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Decoder walks an in-memory byte slice holding an HDF5 structure, such as
// the body of a header message. The first short read is remembered and all
// later calls return zero values, so callers check Err once at the end.
type Decoder struct {
	buf []byte
	cfg Config
	off int
	err error
}

// NewDecoder returns a Decoder over buf.
func NewDecoder(buf []byte, cfg Config) *Decoder {
	return &Decoder{buf: buf, cfg: cfg}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Pos returns the number of bytes consumed.
func (d *Decoder) Pos() int { return d.off }

// Len returns the number of unread bytes.
func (d *Decoder) Len() int { return len(d.buf) - d.off }

// Config returns the sizing parameters.
func (d *Decoder) Config() Config { return d.cfg }

// Seek moves to an absolute position within the buffer.
func (d *Decoder) Seek(pos int) {
	if d.err != nil {
		return
	}
	if pos < 0 || pos > len(d.buf) {
		d.err = fmt.Errorf("seek to %d outside %d byte buffer: %w", pos, len(d.buf), io.ErrUnexpectedEOF)
		return
	}
	d.off = pos
}

// Bytes returns the next n bytes without copying.
func (d *Decoder) Bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("need %d bytes at %d, have %d: %w", n, d.off, len(d.buf)-d.off, io.ErrUnexpectedEOF)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Skip discards n bytes.
func (d *Decoder) Skip(n int) { d.Bytes(n) }

// Uint8 decodes one byte.
func (d *Decoder) Uint8() uint8 {
	b := d.Bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 decodes a 2-byte integer.
func (d *Decoder) Uint16() uint16 {
	b := d.Bytes(2)
	if b == nil {
		return 0
	}
	return d.cfg.ByteOrder.Uint16(b)
}

// Uint32 decodes a 4-byte integer.
func (d *Decoder) Uint32() uint32 {
	b := d.Bytes(4)
	if b == nil {
		return 0
	}
	return d.cfg.ByteOrder.Uint32(b)
}

// Uint64 decodes an 8-byte integer.
func (d *Decoder) Uint64() uint64 {
	b := d.Bytes(8)
	if b == nil {
		return 0
	}
	return d.cfg.ByteOrder.Uint64(b)
}

// UintN decodes an n-byte integer.
func (d *Decoder) UintN(n int) uint64 {
	b := d.Bytes(n)
	if b == nil {
		return 0
	}
	return DecodeUint(b, d.cfg.ByteOrder)
}

// Offset decodes a file address.
func (d *Decoder) Offset() uint64 { return d.UintN(d.cfg.OffsetSize) }

// Length decodes a length field.
func (d *Decoder) Length() uint64 { return d.UintN(d.cfg.LengthSize) }

// CString decodes a NUL-terminated string and consumes the terminator.
func (d *Decoder) CString() string {
	if d.err != nil {
		return ""
	}
	for i := d.off; i < len(d.buf); i++ {
		if d.buf[i] == 0 {
			s := string(d.buf[d.off:i])
			d.off = i + 1
			return s
		}
	}
	d.err = fmt.Errorf("unterminated string at %d: %w", d.off, io.ErrUnexpectedEOF)
	return ""
}

// Order returns the byte order used for multi-byte fields.
func (d *Decoder) Order() binary.ByteOrder { return d.cfg.ByteOrder }
