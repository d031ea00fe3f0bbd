package dtype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	hbin "github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/heap"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

type kind uint8

const (
	kindOther kind = iota
	kindSigned
	kindUnsigned
	kindFloat
	kindFixedString
	kindVarString
)

// Converter decodes elements of one stored datatype.
type Converter struct {
	dt    *message.Datatype
	kind  kind
	size  int
	order binary.ByteOrder

	// integer bit field within the element
	shift uint16
	mask  uint64

	cfg  hbin.Config
	heap *heap.Cache
}

// New returns a converter for dt. Variable-length strings are resolved
// through h, which may be nil for other types.
func New(dt *message.Datatype, cfg hbin.Config, h *heap.Cache) (*Converter, error) {
	if dt == nil {
		return nil, fmt.Errorf("no datatype: %w", hbin.ErrUnsupported)
	}
	c := &Converter{dt: dt, size: int(dt.Size), cfg: cfg, heap: h}
	if c.size == 0 {
		return nil, fmt.Errorf("zero-sized %s", dt)
	}
	num := dt
	if dt.Class == message.ClassEnum && dt.Base != nil {
		num = dt.Base
	}
	c.order = num.Order
	if c.order == nil {
		c.order = binary.LittleEndian
	}
	switch {
	case num.Class == message.ClassFixedPoint || num.Class == message.ClassBitfield:
		if c.size > 8 {
			return nil, fmt.Errorf("%d-byte integer: %w", c.size, hbin.ErrUnsupported)
		}
		c.kind = kindUnsigned
		if num.Signed && num.Class == message.ClassFixedPoint {
			c.kind = kindSigned
		}
		c.shift = num.BitOffset
		prec := num.Precision
		if prec == 0 || int(prec) > c.size*8 {
			prec = uint16(c.size * 8)
		}
		c.mask = math.MaxUint64 >> (64 - prec)
	case num.Class == message.ClassFloat:
		if c.size != 4 && c.size != 8 {
			return nil, fmt.Errorf("%d-byte float: %w", c.size, hbin.ErrUnsupported)
		}
		c.kind = kindFloat
	case dt.Class == message.ClassString:
		c.kind = kindFixedString
	case dt.Class == message.ClassVarLen && dt.VarLenString:
		c.kind = kindVarString
	}
	return c, nil
}

// Datatype returns the stored type.
func (c *Converter) Datatype() *message.Datatype { return c.dt }

// Size returns the stored element size in bytes.
func (c *Converter) Size() int { return c.size }

// IsNumeric reports whether Float32s, Float64s and Int64s apply.
func (c *Converter) IsNumeric() bool {
	return c.kind == kindSigned || c.kind == kindUnsigned || c.kind == kindFloat
}

// IsString reports whether Strings applies.
func (c *Converter) IsString() bool {
	return c.kind == kindFixedString || c.kind == kindVarString
}

// Float32s decodes every element of data.
func (c *Converter) Float32s(data []byte) ([]float32, error) { return convert[float32](c, data) }

// Float64s decodes every element of data.
func (c *Converter) Float64s(data []byte) ([]float64, error) { return convert[float64](c, data) }

// Int64s decodes every element of data. Floats are truncated toward zero.
func (c *Converter) Int64s(data []byte) ([]int64, error) { return convert[int64](c, data) }

type number interface {
	~float32 | ~float64 | ~int64
}

func convert[T number](c *Converter, data []byte) ([]T, error) {
	if !c.IsNumeric() {
		return nil, fmt.Errorf("%s is not numeric: %w", c.dt, hbin.ErrUnsupported)
	}
	if len(data)%c.size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %d-byte elements", len(data), c.size)
	}
	out := make([]T, len(data)/c.size)
	switch c.kind {
	case kindFloat:
		if c.size == 4 {
			for i := range out {
				out[i] = T(math.Float32frombits(c.order.Uint32(data[i*4:])))
			}
		} else {
			for i := range out {
				out[i] = T(math.Float64frombits(c.order.Uint64(data[i*8:])))
			}
		}
	case kindSigned:
		bits := 64 - bitsOf(c.mask)
		for i := range out {
			v := c.raw(data[i*c.size : (i+1)*c.size])
			out[i] = T(int64(v<<bits) >> bits)
		}
	case kindUnsigned:
		for i := range out {
			out[i] = T(c.raw(data[i*c.size : (i+1)*c.size]))
		}
	}
	return out, nil
}

func (c *Converter) raw(b []byte) uint64 {
	return hbin.DecodeUint(b, c.order) >> c.shift & c.mask
}

func bitsOf(mask uint64) uint {
	n := uint(0)
	for ; mask != 0; mask >>= 1 {
		n++
	}
	return n
}

// Strings decodes every element of data.
func (c *Converter) Strings(data []byte) ([]string, error) {
	if !c.IsString() {
		return nil, fmt.Errorf("%s is not a string type: %w", c.dt, hbin.ErrUnsupported)
	}
	if len(data)%c.size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %d-byte elements", len(data), c.size)
	}
	out := make([]string, len(data)/c.size)
	for i := range out {
		b := data[i*c.size : (i+1)*c.size]
		if c.kind == kindFixedString {
			out[i] = trim(b, c.dt.Padding)
			continue
		}
		s, err := c.varString(b)
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func trim(b []byte, pad message.StringPadding) string {
	switch pad {
	case message.PadNullTerm:
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
	case message.PadNullPad:
		b = bytes.TrimRight(b, "\x00")
	case message.PadSpacePad:
		b = bytes.TrimRight(b, " ")
	}
	return string(b)
}

func (c *Converter) varString(b []byte) (string, error) {
	v, err := heap.DecodeVarLen(b, c.cfg)
	if err != nil {
		return "", err
	}
	if v.Length == 0 || v.ID.Collection == 0 || v.ID.Collection == c.cfg.Undefined() {
		return "", nil
	}
	if c.heap == nil {
		return "", fmt.Errorf("variable-length string without a global heap")
	}
	body, err := c.heap.Get(v.ID)
	if err != nil {
		return "", err
	}
	if int(v.Length) > len(body) {
		return "", fmt.Errorf("string of %d bytes in a %d-byte heap object", v.Length, len(body))
	}
	return trim(body[:v.Length], c.dt.Padding), nil
}
