package dtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Encode returns the datatype and little-endian bytes for a slice of
// float32, float64, int64, int32, uint8 or int8.
func Encode(data any) (*message.Datatype, []byte, error) {
	switch v := data.(type) {
	case []float32:
		b := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
		}
		return message.NewFloat(4), b, nil
	case []float64:
		b := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(x))
		}
		return message.NewFloat(8), b, nil
	case []int64:
		b := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(b[8*i:], uint64(x))
		}
		return message.NewInteger(8, true), b, nil
	case []int32:
		b := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
		}
		return message.NewInteger(4, true), b, nil
	case []uint8:
		return message.NewInteger(1, false), append([]byte(nil), v...), nil
	case []int8:
		b := make([]byte, len(v))
		for i, x := range v {
			b[i] = byte(x)
		}
		return message.NewInteger(1, true), b, nil
	}
	return nil, nil, fmt.Errorf("unsupported element type %T", data)
}

// Len returns the number of elements of a slice accepted by Encode.
func Len(data any) int {
	switch v := data.(type) {
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []int64:
		return len(v)
	case []int32:
		return len(v)
	case []uint8:
		return len(v)
	case []int8:
		return len(v)
	}
	return -1
}

// FixedStrings encodes values as NUL-padded strings of the longest length.
func FixedStrings(values []string) (*message.Datatype, []byte) {
	size := 1
	for _, s := range values {
		size = max(size, len(s))
	}
	b := make([]byte, size*len(values))
	for i, s := range values {
		copy(b[i*size:], s)
	}
	return message.NewFixedString(uint32(size)), b
}
