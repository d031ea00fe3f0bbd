package btree

import (
	"fmt"
	"math/bits"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
)

// Version 2 B-tree record types used as chunk indexes.
const (
	RecordChunk         = 10
	RecordFilteredChunk = 11
)

// v2 nodes start with a signature, version and type and end with a checksum.
const v2NodeOverhead = 4 + 1 + 1 + 4

type v2Tree struct {
	r          *binary.Reader
	typ        uint8
	nodeSize   uint32
	recordSize int
	depth      int

	// Per-depth sizes of the child record counts, derived from the node size
	// the same way the library does.
	maxRecords    []uint64
	cumRecordSize []int
	countSize     int

	rank      int
	chunk     []uint32
	sizeWidth int
}

// ReadChunksV2 walks a version 2 B-tree chunk index. chunk holds the chunk
// dimensions and elemSize the element size, which together fix the record
// layout.
func ReadChunksV2(r *binary.Reader, addr uint64, chunk []uint32, elemSize uint32) (*ChunkIndex, error) {
	d, err := r.At(int64(addr)).Block(4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + r.OffsetSize() + 2 + r.LengthSize() + 4)
	if err != nil {
		return nil, fmt.Errorf("B-tree v2 header at 0x%x: %w", addr, err)
	}
	raw := d.Bytes(d.Len() - 4)
	sum := d.Uint32()
	if got := binary.Lookup3Checksum(raw); got != sum {
		return nil, fmt.Errorf("B-tree v2 header at 0x%x: checksum mismatch", addr)
	}
	d.Seek(0)
	if sig := string(d.Bytes(4)); sig != "BTHD" {
		return nil, fmt.Errorf("%w: %q at 0x%x", ErrSignature, sig, addr)
	}
	if v := d.Uint8(); v != 0 {
		return nil, fmt.Errorf("B-tree v2 version %d: %w", v, binary.ErrUnsupported)
	}
	t := &v2Tree{r: r, typ: d.Uint8(), rank: len(chunk), chunk: chunk}
	if t.typ != RecordChunk && t.typ != RecordFilteredChunk {
		return nil, fmt.Errorf("%w: record type %d", ErrNodeType, t.typ)
	}
	t.nodeSize = d.Uint32()
	t.recordSize = int(d.Uint16())
	t.depth = int(d.Uint16())
	d.Skip(2) // split and merge percentages
	root := d.Offset()
	rootRecords := int(d.Uint16())
	total := d.Length()

	nominal := uint64(elemSize)
	for _, c := range chunk {
		nominal *= uint64(c)
	}
	t.sizeWidth = 1 + (log2(nominal)+8)/8
	if t.sizeWidth > 8 {
		t.sizeWidth = 8
	}
	t.initNodeInfo()

	var entries []ChunkEntry
	if total > 0 {
		if err := t.walk(root, rootRecords, t.depth, &entries); err != nil {
			return nil, err
		}
	}
	return NewChunkIndex(t.rank, entries), nil
}

func log2(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - 1
}

// encSize is the number of bytes needed to store values up to n.
func encSize(n uint64) int { return log2(n)/8 + 1 }

func (t *v2Tree) pointerSize(depth int) int {
	n := t.r.OffsetSize() + t.countSize
	if depth > 1 {
		n += t.cumRecordSize[depth-1]
	}
	return n
}

func (t *v2Tree) initNodeInfo() {
	t.maxRecords = make([]uint64, t.depth+1)
	t.cumRecordSize = make([]int, t.depth+1)
	cum := make([]uint64, t.depth+1)

	t.maxRecords[0] = uint64((int(t.nodeSize) - v2NodeOverhead) / t.recordSize)
	cum[0] = t.maxRecords[0]
	t.countSize = encSize(t.maxRecords[0])
	for u := 1; u <= t.depth; u++ {
		ptr := t.pointerSize(u)
		n := uint64((int(t.nodeSize) - (v2NodeOverhead + ptr)) / (t.recordSize + ptr))
		t.maxRecords[u] = n
		cum[u] = (n+1)*cum[u-1] + n
		t.cumRecordSize[u] = encSize(cum[u])
	}
}

func (t *v2Tree) walk(addr uint64, nrec, depth int, out *[]ChunkEntry) error {
	sig := "BTLF"
	size := v2NodeOverhead + nrec*t.recordSize
	if depth > 0 {
		sig = "BTIN"
		size += (nrec + 1) * t.pointerSize(depth)
	}
	d, err := t.r.At(int64(addr)).Block(size)
	if err != nil {
		return fmt.Errorf("B-tree v2 node at 0x%x: %w", addr, err)
	}
	if got := string(d.Bytes(4)); got != sig {
		return fmt.Errorf("%w: %q at 0x%x, want %s", ErrSignature, got, addr, sig)
	}
	d.Skip(2) // version, type

	for i := 0; i < nrec; i++ {
		rec := binary.NewDecoder(d.Bytes(t.recordSize), t.r.Config())
		e := t.decodeRecord(rec)
		if err := rec.Err(); err != nil {
			return err
		}
		if e.Address != t.r.Config().Undefined() {
			*out = append(*out, e)
		}
	}
	if depth == 0 {
		return d.Err()
	}
	for i := 0; i <= nrec; i++ {
		child := d.Offset()
		count := int(d.UintN(t.countSize))
		if depth > 1 {
			d.Skip(t.cumRecordSize[depth-1])
		}
		if err := d.Err(); err != nil {
			return err
		}
		if err := t.walk(child, count, depth-1, out); err != nil {
			return err
		}
	}
	return nil
}

func (t *v2Tree) decodeRecord(d *binary.Decoder) ChunkEntry {
	e := ChunkEntry{Address: d.Offset(), Offset: make([]uint64, t.rank)}
	if t.typ == RecordFilteredChunk {
		e.Size = uint32(d.UintN(t.sizeWidth))
		e.FilterMask = d.Uint32()
	}
	for i := range e.Offset {
		e.Offset[i] = d.Uint64() * uint64(t.chunk[i])
	}
	return e
}
