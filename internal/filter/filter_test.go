package filter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hbin "github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

func sample(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i / 7)
	}
	return b
}

func noise(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(1)).Read(b)
	return b
}

func TestDeflateRoundtrip(t *testing.T) {
	f := NewDeflate([]uint32{6})
	in := sample(4096)
	enc, err := f.Encode(in)
	require.NoError(t, err)
	assert.Less(t, len(enc), len(in))
	out, err := f.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = f.Decode([]byte("not zlib"))
	assert.Error(t, err)
}

func TestShuffle(t *testing.T) {
	original := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x11, 0x12, 0x13, 0x14,
		0x21, 0x22, 0x23, 0x24,
	}
	shuffled := []byte{
		0x01, 0x11, 0x21,
		0x02, 0x12, 0x22,
		0x03, 0x13, 0x23,
		0x04, 0x14, 0x24,
	}
	f := NewShuffle([]uint32{4}, 0)

	got, err := f.Encode(original)
	require.NoError(t, err)
	assert.Equal(t, shuffled, got)

	got, err = f.Decode(shuffled)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestShuffleTrailingBytes(t *testing.T) {
	f := NewShuffle(nil, 8)
	in := sample(8*5 + 3)
	enc, err := f.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, in[40:], enc[40:])
	out, err := f.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	single := NewShuffle([]uint32{1}, 4)
	out, err = single.Decode([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)
}

func TestFletcher32(t *testing.T) {
	f := NewFletcher32()
	in := sample(301)
	enc, err := f.Encode(in)
	require.NoError(t, err)
	require.Len(t, enc, len(in)+4)
	assert.Equal(t, hbin.Fletcher32(in), binary.LittleEndian.Uint32(enc[len(in):]))

	out, err := f.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	swapped := append([]byte(nil), enc...)
	binary.LittleEndian.PutUint32(swapped[len(in):], hbin.SwapFletcher32(hbin.Fletcher32(in)))
	_, err = f.Decode(swapped)
	assert.NoError(t, err)

	enc[10] ^= 0x40
	_, err = f.Decode(enc)
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = f.Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLZ4(t *testing.T) {
	tests := []struct {
		name      string
		blockSize uint32
		in        []byte
	}{
		{"single block", 0, sample(10000)},
		{"several blocks", 1024, sample(5000)},
		{"incompressible", 512, noise(1300)},
		{"empty", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewLZ4([]uint32{tt.blockSize})
			enc, err := f.Encode(tt.in)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(enc), lz4HeaderSize)
			assert.Equal(t, uint64(len(tt.in)), binary.BigEndian.Uint64(enc))

			out, err := f.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, len(tt.in), len(out))
			assert.True(t, bytes.Equal(tt.in, out))
		})
	}
}

func TestLZ4RawBlock(t *testing.T) {
	// hand-framed: one block stored raw
	data := []byte("abcdefgh")
	chunk := make([]byte, 12)
	binary.BigEndian.PutUint64(chunk, 8)
	binary.BigEndian.PutUint32(chunk[8:], 8)
	chunk = binary.BigEndian.AppendUint32(chunk, 8)
	chunk = append(chunk, data...)

	out, err := NewLZ4(nil).Decode(chunk)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = NewLZ4(nil).Decode(chunk[:15])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestZstd(t *testing.T) {
	f := NewZstd(nil)
	in := sample(20000)
	enc, err := f.Encode(in)
	require.NoError(t, err)
	assert.Less(t, len(enc), len(in))
	out, err := f.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = f.Decode([]byte{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestPipelineRoundtrip(t *testing.T) {
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: message.FilterShuffle, ClientData: []uint32{4}},
		{ID: message.FilterDeflate, ClientData: []uint32{4}},
		{ID: message.FilterFletcher32},
	}}
	p, err := NewPipeline(fp, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	in := sample(4000)
	enc, err := p.Encode(in)
	require.NoError(t, err)
	out, err := p.Decode(enc, 0)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPipelineMaskUsesMessagePosition(t *testing.T) {
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: 999, Flags: 0x01},
		{ID: message.FilterDeflate},
	}}
	p, err := NewPipeline(fp, 1)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	raw := sample(100)
	out, err := p.Decode(raw, 1<<1)
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	enc, err := NewDeflate(nil).Encode(raw)
	require.NoError(t, err)
	out, err = p.Decode(enc, 1<<0)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestPipelineUnsupported(t *testing.T) {
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterSZIP}}}
	_, err := NewPipeline(fp, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, hbin.ErrUnsupported))
	assert.Contains(t, err.Error(), "szip")

	p, err := NewPipeline(nil, 4)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}
