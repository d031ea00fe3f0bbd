// Package heap reads HDF5 local and global heaps and writes local heaps and
// global heap collections.
//
// Local heaps hold the link names of old-style groups. Global heap
// collections ("GCOL") hold the bodies of variable-length data such as
// variable-length strings; dataset elements refer to them by [ID].
package heap

import (
	"errors"
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
)

var (
	ErrSignature = errors.New("invalid heap signature")
	ErrNoObject  = errors.New("heap object not found")
)

// Local is a local heap with its data segment loaded.
type Local struct {
	Address     uint64
	DataAddress uint64
	data        []byte
}

// ReadLocal reads the local heap at addr and its data segment.
func ReadLocal(r *binary.Reader, addr uint64) (*Local, error) {
	d, err := r.At(int64(addr)).Block(8 + 2*r.LengthSize() + r.OffsetSize())
	if err != nil {
		return nil, fmt.Errorf("local heap at 0x%x: %w", addr, err)
	}
	if sig := string(d.Bytes(4)); sig != "HEAP" {
		return nil, fmt.Errorf("%w: %q at 0x%x", ErrSignature, sig, addr)
	}
	if v := d.Uint8(); v != 0 {
		return nil, fmt.Errorf("local heap version %d: %w", v, binary.ErrUnsupported)
	}
	d.Skip(3)
	size := d.Length()
	d.Length() // free list head
	h := &Local{Address: addr, DataAddress: d.Offset()}
	if h.data, err = r.At(int64(h.DataAddress)).ReadBytes(int(size)); err != nil {
		return nil, fmt.Errorf("local heap data: %w", err)
	}
	return h, nil
}

// String returns the NUL-terminated string at off.
func (h *Local) String(off uint64) (string, error) {
	if off >= uint64(len(h.data)) {
		return "", fmt.Errorf("%w: offset %d beyond %d byte local heap", ErrNoObject, off, len(h.data))
	}
	b := h.data[off:]
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}

// EncodeLocal returns a local heap at base holding names, and the data
// segment offset of each name. Offset 0 holds the empty string; every
// string starts on an 8-byte boundary.
func EncodeLocal(cfg binary.Config, base uint64, names []string) ([]byte, []uint64) {
	data := binary.NewEncoder(cfg, 0)
	data.PutUint8(0)
	data.Pad(8)
	offsets := make([]uint64, len(names))
	for i, n := range names {
		offsets[i] = uint64(data.Len())
		data.PutBytes([]byte(n))
		data.PutUint8(0)
		data.Pad(8)
	}

	e := binary.NewEncoder(cfg, base)
	e.PutBytes([]byte("HEAP"))
	e.PutUint8(0)
	e.PutZeros(3)
	e.PutLength(uint64(data.Len()))
	e.PutLength(^uint64(0)) // no free block
	e.PutOffset(base + uint64(8+2*cfg.LengthSize+cfg.OffsetSize))
	e.PutBytes(data.Bytes())
	return e.Bytes(), offsets
}
