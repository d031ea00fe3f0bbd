package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/dlr-wf/go-crackmnist/internal/message"
)

const (
	lz4HeaderSize       = 12
	lz4DefaultBlockSize = 1 << 30
)

// LZ4 is the registered LZ4 plugin filter. A chunk starts with the decoded
// size (8 bytes) and block size (4 bytes), followed by blocks each prefixed
// by their compressed size (4 bytes). All integers are big-endian. A block
// whose compressed size equals its decoded size is stored raw.
type LZ4 struct {
	blockSize int
}

// NewLZ4 reads the block size from client data[0].
func NewLZ4(clientData []uint32) *LZ4 {
	bs := lz4DefaultBlockSize
	if len(clientData) > 0 && clientData[0] > 0 {
		bs = int(clientData[0])
	}
	return &LZ4{blockSize: bs}
}

func (f *LZ4) ID() uint16 { return message.FilterLZ4 }

func (f *LZ4) Decode(input []byte) ([]byte, error) {
	if len(input) < lz4HeaderSize {
		return nil, fmt.Errorf("%w: lz4 header truncated", ErrCorrupt)
	}
	total := binary.BigEndian.Uint64(input)
	blockSize := uint64(binary.BigEndian.Uint32(input[8:]))
	if blockSize == 0 && total > 0 {
		return nil, fmt.Errorf("%w: lz4 block size 0", ErrCorrupt)
	}
	if total > uint64(len(input))*255 {
		return nil, fmt.Errorf("%w: lz4 decoded size %d implausible", ErrCorrupt, total)
	}
	out := make([]byte, total)
	src := input[lz4HeaderSize:]
	for pos := uint64(0); pos < total; {
		want := min(blockSize, total-pos)
		if len(src) < 4 {
			return nil, fmt.Errorf("%w: lz4 block header truncated", ErrCorrupt)
		}
		n := uint64(binary.BigEndian.Uint32(src))
		src = src[4:]
		if n > uint64(len(src)) {
			return nil, fmt.Errorf("%w: lz4 block of %d bytes truncated", ErrCorrupt, n)
		}
		dst := out[pos : pos+want]
		if n == want {
			copy(dst, src[:n])
		} else {
			got, err := lz4.UncompressBlock(src[:n], dst)
			if err != nil {
				return nil, err
			}
			if uint64(got) != want {
				return nil, fmt.Errorf("%w: lz4 block decoded to %d bytes, want %d", ErrCorrupt, got, want)
			}
		}
		src = src[n:]
		pos += want
	}
	return out, nil
}

func (f *LZ4) Encode(input []byte) ([]byte, error) {
	blockSize := min(f.blockSize, max(len(input), 1))
	out := make([]byte, lz4HeaderSize, lz4HeaderSize+len(input)+len(input)/blockSize*4+8)
	binary.BigEndian.PutUint64(out, uint64(len(input)))
	binary.BigEndian.PutUint32(out[8:], uint32(blockSize))
	buf := make([]byte, lz4.CompressBlockBound(blockSize))
	for pos := 0; pos < len(input); pos += blockSize {
		block := input[pos:min(pos+blockSize, len(input))]
		n, err := lz4.CompressBlock(block, buf, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(block) {
			out = binary.BigEndian.AppendUint32(out, uint32(len(block)))
			out = append(out, block...)
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(n))
		out = append(out, buf[:n]...)
	}
	return out, nil
}
