package filter

import (
	"encoding/binary"
	"fmt"

	hbin "github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Fletcher32 verifies and strips the 4-byte checksum trailing each chunk.
type Fletcher32 struct{}

func NewFletcher32() *Fletcher32 { return &Fletcher32{} }

func (f *Fletcher32) ID() uint16 { return message.FilterFletcher32 }

func (f *Fletcher32) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: %d bytes cannot hold a checksum", ErrCorrupt, len(input))
	}
	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])
	sum := hbin.Fletcher32(data)
	if stored != sum && stored != hbin.SwapFletcher32(sum) {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, stored, sum)
	}
	return data, nil
}

func (f *Fletcher32) Encode(input []byte) ([]byte, error) {
	out := make([]byte, len(input)+4)
	copy(out, input)
	binary.LittleEndian.PutUint32(out[len(input):], hbin.Fletcher32(input))
	return out, nil
}
