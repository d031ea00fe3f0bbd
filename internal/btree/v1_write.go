package btree

import "github.com/dlr-wf/go-crackmnist/internal/binary"

// ChunkNodeEntries is the capacity of an encoded chunk node: twice the
// default indexed storage K of 32.
const ChunkNodeEntries = 64

// ChunkTreeNodeSize returns the encoded size of a single chunk B-tree node.
func ChunkTreeNodeSize(cfg binary.Config, rank int) int {
	keySize := 8 + 8*(rank+1)
	return 8 + 2*cfg.OffsetSize + ChunkNodeEntries*cfg.OffsetSize + (ChunkNodeEntries+1)*keySize
}

// EncodeChunkTree lays out a version 1 chunk B-tree for entries starting at
// file address base and returns the encoded nodes and the root address.
// Entries must be sorted by offset and carry their stored sizes. end is the
// key that closes the last node, normally the dataset extent rounded up to
// whole chunks.
func EncodeChunkTree(cfg binary.Config, base uint64, rank int, entries []ChunkEntry, end []uint64) ([]byte, uint64) {
	e := binary.NewEncoder(cfg, base)
	nodeSize := ChunkTreeNodeSize(cfg, rank)

	type child struct {
		key  ChunkEntry
		addr uint64
	}
	level := make([]child, len(entries))
	for i, ent := range entries {
		level[i] = child{key: ent, addr: ent.Address}
	}
	endKey := ChunkEntry{Offset: end}

	for depth := uint8(0); ; depth++ {
		var parents []child
		for lo := 0; lo < len(level) || lo == 0; lo += ChunkNodeEntries {
			hi := lo + ChunkNodeEntries
			if hi > len(level) {
				hi = len(level)
			}
			group := level[lo:hi]
			addr := e.Addr()
			start := e.Len()

			e.PutBytes([]byte("TREE"))
			e.PutUint8(nodeChunk)
			e.PutUint8(depth)
			e.PutUint16(uint16(len(group)))
			e.PutUndefined()
			e.PutUndefined()
			for _, c := range group {
				putChunkKey(e, c.key, rank)
				e.PutOffset(c.addr)
			}
			closing := endKey
			if hi < len(level) {
				closing = level[hi].key
			}
			putChunkKey(e, closing, rank)
			e.PutZeros(nodeSize - (e.Len() - start))

			first := ChunkEntry{Offset: make([]uint64, rank)}
			if len(group) > 0 {
				first = group[0].key
			}
			parents = append(parents, child{key: first, addr: addr})
			if hi >= len(level) {
				break
			}
		}
		if len(parents) == 1 {
			return e.Bytes(), parents[0].addr
		}
		level = parents
	}
}

func putChunkKey(e *binary.Encoder, k ChunkEntry, rank int) {
	e.PutUint32(k.Size)
	e.PutUint32(k.FilterMask)
	for i := 0; i < rank; i++ {
		var v uint64
		if i < len(k.Offset) {
			v = k.Offset[i]
		}
		e.PutUint64(v)
	}
	e.PutUint64(0)
}

// SymbolNodeEntries is the capacity of an encoded symbol node: twice the
// default group leaf K of 4.
const SymbolNodeEntries = 8

// SymbolNodeSize returns the encoded size of one symbol node.
func SymbolNodeSize(cfg binary.Config) int {
	return 8 + SymbolNodeEntries*(2*cfg.OffsetSize+8+16)
}

// EncodeGroup lays out the symbol nodes and the single-level version 1
// group B-tree of an old-style group starting at base, and returns the
// encoded bytes and the tree address. nameOffsets are the local heap
// offsets of the member names in name order; addrs are the matching object
// header addresses.
func EncodeGroup(cfg binary.Config, base uint64, nameOffsets, addrs []uint64) ([]byte, uint64) {
	e := binary.NewEncoder(cfg, base)
	type leaf struct {
		addr uint64
		last uint64
	}
	var leaves []leaf
	for lo := 0; lo < len(addrs); lo += SymbolNodeEntries {
		hi := min(lo+SymbolNodeEntries, len(addrs))
		start := e.Len()
		leaves = append(leaves, leaf{addr: e.Addr(), last: nameOffsets[hi-1]})
		e.PutBytes([]byte("SNOD"))
		e.PutUint8(1)
		e.PutUint8(0)
		e.PutUint16(uint16(hi - lo))
		for i := lo; i < hi; i++ {
			e.PutOffset(nameOffsets[i])
			e.PutOffset(addrs[i])
			e.PutUint32(0) // no cached scratch pad
			e.PutZeros(4 + 16)
		}
		e.PutZeros(SymbolNodeSize(cfg) - (e.Len() - start))
	}

	root := e.Addr()
	e.PutBytes([]byte("TREE"))
	e.PutUint8(nodeGroup)
	e.PutUint8(0)
	e.PutUint16(uint16(len(leaves)))
	e.PutUndefined()
	e.PutUndefined()
	e.PutLength(0)
	for _, l := range leaves {
		e.PutOffset(l.addr)
		e.PutLength(l.last)
	}
	return e.Bytes(), root
}
