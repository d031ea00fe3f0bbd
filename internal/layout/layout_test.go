package layout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/btree"
	"github.com/dlr-wf/go-crackmnist/internal/filter"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

var cfg = binary.DefaultConfig()

type image []byte

func (f *image) put(addr uint64, b []byte) {
	if need := int(addr) + len(b); need > len(*f) {
		*f = append(*f, make([]byte, need-len(*f))...)
	}
	copy((*f)[addr:], b)
}

func (f image) reader() *binary.Reader {
	return binary.NewReader(bytes.NewReader(f), cfg)
}

// A 5x3 array of 2-byte elements cut into 2x2 chunks: a 3x2 chunk grid.
var (
	dims  = []uint64{5, 3}
	chunk = []uint64{2, 2}
	shape = Shape{Dims: dims, ElemSize: 2}
)

func array() []byte {
	b := make([]byte, 30)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func chunkedLayout(index message.ChunkIndex, addr uint64) *message.Layout {
	return &message.Layout{
		Version:     4,
		Class:       message.LayoutChunked,
		Address:     addr,
		ChunkDims:   []uint32{2, 2},
		ElementSize: 2,
		Index:       index,
	}
}

func deflatePipeline() *message.FilterPipeline {
	return &message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterDeflate}}}
}

func checkRows(t *testing.T, r Reader, want []byte) {
	t.Helper()
	got, err := r.ReadRows(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("all rows (-want +got):\n%s", diff)
	}
	got, err = r.ReadRows(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want[6:24], got); diff != "" {
		t.Errorf("rows 1..3 (-want +got):\n%s", diff)
	}
	got, err = r.ReadRows(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want[24:]) {
		t.Errorf("row 4 = %v", got)
	}
	if _, err := r.ReadRows(4, 2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestSplit(t *testing.T) {
	chunks := Split(array(), dims, chunk, 2)
	if len(chunks) != 6 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	want := Chunk{Offset: []uint64{0, 2}, Data: []byte{5, 6, 0, 0, 11, 12, 0, 0}}
	if diff := cmp.Diff(want, chunks[1]); diff != "" {
		t.Errorf("chunk 1 (-want +got):\n%s", diff)
	}
	last := chunks[5]
	if diff := cmp.Diff([]byte{29, 30, 0, 0, 0, 0, 0, 0}, last.Data); diff != "" {
		t.Errorf("edge chunk (-want +got):\n%s", diff)
	}
}

func TestCompact(t *testing.T) {
	r, err := New(nil, &message.Layout{Class: message.LayoutCompact, CompactData: array()}, shape, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Class() != message.LayoutCompact {
		t.Errorf("class = %s", r.Class())
	}
	checkRows(t, r, array())

	short := NewCompact(array()[:10], shape)
	if _, err := short.ReadRows(0, 5); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestContiguous(t *testing.T) {
	var f image
	f.put(0x40, array())
	checkRows(t, NewContiguous(f.reader(), 0x40, 30, shape), array())

	unallocated := NewContiguous(f.reader(), cfg.Undefined(), 0, shape)
	if unallocated.Allocated() {
		t.Error("undefined address reported as allocated")
	}
	checkRows(t, unallocated, make([]byte, 30))

	scalar := NewContiguous(f.reader(), 0x40, 0, Shape{ElemSize: 4})
	got, err := scalar.ReadRows(0, 1)
	if err != nil || !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("scalar = %v, %v", got, err)
	}
}

func TestChunkedImplicit(t *testing.T) {
	var f image
	for i, c := range Split(array(), dims, chunk, 2) {
		f.put(0x100+uint64(i)*8, c.Data)
	}
	r, err := New(f.reader(), chunkedLayout(message.IndexImplicit, 0x100), shape, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, array())
}

func TestChunkedBTreeV1Deflate(t *testing.T) {
	var f image
	var entries []btree.ChunkEntry
	addr := uint64(0x2000)
	for _, c := range Split(array(), dims, chunk, 2) {
		enc, err := filter.NewDeflate(nil).Encode(c.Data)
		if err != nil {
			t.Fatal(err)
		}
		f.put(addr, enc)
		entries = append(entries, btree.ChunkEntry{Offset: c.Offset, Size: uint32(len(enc)), Address: addr})
		addr += uint64(len(enc))
	}
	tree, root := btree.EncodeChunkTree(cfg, 0x100, 2, entries, []uint64{6, 4})
	f.put(0x100, tree)

	l := chunkedLayout(message.IndexBTreeV1, root)
	l.Version = 3
	r, err := New(f.reader(), l, shape, deflatePipeline())
	if err != nil {
		t.Fatal(err)
	}
	c := r.(*Chunked)
	if !c.Filtered() {
		t.Error("deflate pipeline not active")
	}
	checkRows(t, r, array())

	idx, err := c.Chunks()
	if err != nil || len(idx.Entries) != 6 {
		t.Fatalf("index = %v, %v", idx, err)
	}
}

func TestChunkedSingleFiltered(t *testing.T) {
	var f image
	enc, err := filter.NewDeflate(nil).Encode(array())
	if err != nil {
		t.Fatal(err)
	}
	f.put(0x80, enc)
	l := chunkedLayout(message.IndexSingleChunk, 0x80)
	l.ChunkDims = []uint32{5, 3}
	l.Flags = 0x02
	l.FilteredSize = uint64(len(enc))
	r, err := New(f.reader(), l, shape, deflatePipeline())
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, array())

	// A mask bit on the only filter means the chunk was stored raw.
	f.put(0x200, array())
	l = chunkedLayout(message.IndexSingleChunk, 0x200)
	l.ChunkDims = []uint32{5, 3}
	l.Flags = 0x02
	l.FilteredSize = 30
	l.FilterMask = 1
	r, err = New(f.reader(), l, shape, deflatePipeline())
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, array())
}

// fixedArray encodes a FAHD header at addr followed by its data block.
func fixedArray(addr uint64, client uint8, entrySize int, pageBits uint8, elems func(e *binary.Encoder)) (hdr, block []byte, n int) {
	body := binary.NewEncoder(cfg, 0)
	elems(body)
	n = body.Len() / entrySize
	blockAddr := addr + 0x40

	h := binary.NewEncoder(cfg, addr)
	h.PutBytes([]byte("FAHD"))
	h.PutUint8(0)
	h.PutUint8(client)
	h.PutUint8(uint8(entrySize))
	h.PutUint8(pageBits)
	h.PutLength(uint64(n))
	h.PutOffset(blockAddr)
	h.PutChecksum(0)

	b := binary.NewEncoder(cfg, blockAddr)
	b.PutBytes([]byte("FADB"))
	b.PutUint8(0)
	b.PutUint8(client)
	b.PutOffset(addr)
	b.PutBytes(body.Bytes())
	b.PutChecksum(0)
	return h.Bytes(), b.Bytes(), n
}

func TestChunkedFixedArray(t *testing.T) {
	var f image
	chunks := Split(array(), dims, chunk, 2)
	hdr, block, _ := fixedArray(0x400, clientChunk, 8, 10, func(e *binary.Encoder) {
		for i, c := range chunks {
			if i == 3 {
				e.PutUndefined()
				continue
			}
			addr := 0x1000 + uint64(i)*8
			f.put(addr, c.Data)
			e.PutOffset(addr)
		}
	})
	f.put(0x400, hdr)
	f.put(0x440, block)

	want := array()
	// chunk 3 has origin (2, 2); its elements (2, 2) and (3, 2) are unwritten
	for _, off := range []int{16, 17, 22, 23} {
		want[off] = 0
	}
	r, err := New(f.reader(), chunkedLayout(message.IndexFixedArray, 0x400), shape, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, want)

	f[0x405] ^= 0xFF
	r, _ = New(f.reader(), chunkedLayout(message.IndexFixedArray, 0x400), shape, nil)
	if _, err := r.ReadRows(0, 1); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestChunkedFixedArrayFiltered(t *testing.T) {
	var f image
	addr := uint64(0x1000)
	hdr, block, _ := fixedArray(0x400, clientFilteredChunk, 16, 10, func(e *binary.Encoder) {
		for _, c := range Split(array(), dims, chunk, 2) {
			enc, err := filter.NewDeflate(nil).Encode(c.Data)
			if err != nil {
				t.Fatal(err)
			}
			f.put(addr, enc)
			e.PutOffset(addr)
			e.PutUint32(uint32(len(enc)))
			e.PutUint32(0)
			addr += uint64(len(enc))
		}
	})
	f.put(0x400, hdr)
	f.put(0x440, block)

	r, err := New(f.reader(), chunkedLayout(message.IndexFixedArray, 0x400), shape, deflatePipeline())
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, array())
}

func TestChunkedFixedArrayPaged(t *testing.T) {
	var f image
	hdr, block, _ := fixedArray(0x400, clientChunk, 8, 2, func(e *binary.Encoder) {
		for i := 0; i < 6; i++ {
			e.PutOffset(0x1000)
		}
	})
	f.put(0x400, hdr)
	f.put(0x440, block)
	r, err := New(f.reader(), chunkedLayout(message.IndexFixedArray, 0x400), shape, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadRows(0, 1); !errors.Is(err, binary.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestChunkedExtensibleArray(t *testing.T) {
	var f image
	const hdrAddr, blockAddr = 0x400, 0x480

	h := binary.NewEncoder(cfg, hdrAddr)
	h.PutBytes([]byte("EAHD"))
	h.PutUint8(0)
	h.PutUint8(clientChunk)
	h.PutUint8(8)  // element size
	h.PutUint8(32) // max elements bits
	h.PutUint8(8)  // index block elements
	h.PutUint8(4)
	h.PutUint8(4)
	h.PutUint8(10)
	for _, v := range []uint64{0, 0, 0, 0, 6, 6} {
		h.PutLength(v)
	}
	h.PutOffset(blockAddr)
	h.PutChecksum(0)
	f.put(hdrAddr, h.Bytes())

	b := binary.NewEncoder(cfg, blockAddr)
	b.PutBytes([]byte("EAIB"))
	b.PutUint8(0)
	b.PutUint8(clientChunk)
	b.PutOffset(hdrAddr)
	for i, c := range Split(array(), dims, chunk, 2) {
		addr := 0x1000 + uint64(i)*8
		f.put(addr, c.Data)
		b.PutOffset(addr)
	}
	b.PutUndefined()
	b.PutUndefined()
	f.put(blockAddr, b.Bytes())

	s := Shape{Dims: dims, MaxDims: []uint64{^uint64(0), 3}, ElemSize: 2}
	r, err := New(f.reader(), chunkedLayout(message.IndexExtensible, hdrAddr), s, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, array())
}

func TestChunkedUnallocated(t *testing.T) {
	r, err := New(image(nil).reader(), chunkedLayout(message.IndexBTreeV2, cfg.Undefined()), shape, nil)
	if err != nil {
		t.Fatal(err)
	}
	checkRows(t, r, make([]byte, 30))
}

func TestNewRejects(t *testing.T) {
	if _, err := New(nil, &message.Layout{Class: message.LayoutVirtual}, shape, nil); !errors.Is(err, binary.ErrUnsupported) {
		t.Errorf("virtual: err = %v", err)
	}
	l := chunkedLayout(message.IndexImplicit, 0)
	l.ChunkDims = []uint32{2}
	if _, err := New(nil, l, shape, nil); !errors.Is(err, ErrCorrupt) {
		t.Errorf("rank mismatch: err = %v", err)
	}
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterNBit}}}
	if _, err := New(nil, chunkedLayout(message.IndexImplicit, 0), shape, fp); !errors.Is(err, binary.ErrUnsupported) {
		t.Errorf("nbit: err = %v", err)
	}
}
