package btree

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/heap"
)

const (
	nodeGroup = 0
	nodeChunk = 1

	maxDepth = 64
)

type v1Node struct {
	level   uint8
	entries int
	body    *binary.Reader
}

func readV1Node(r *binary.Reader, addr uint64, want uint8) (*v1Node, error) {
	nr := r.At(int64(addr))
	d, err := nr.Block(8 + 2*r.OffsetSize())
	if err != nil {
		return nil, fmt.Errorf("B-tree node at 0x%x: %w", addr, err)
	}
	if sig := string(d.Bytes(4)); sig != "TREE" {
		return nil, fmt.Errorf("%w: %q at 0x%x", ErrSignature, sig, addr)
	}
	if typ := d.Uint8(); typ != want {
		return nil, fmt.Errorf("%w: %d at 0x%x, want %d", ErrNodeType, typ, addr, want)
	}
	n := &v1Node{level: d.Uint8(), entries: int(d.Uint16()), body: nr}
	return n, nil
}

// ReadChunks walks the version 1 chunk B-tree rooted at addr for a dataset
// of the given rank.
func ReadChunks(r *binary.Reader, addr uint64, rank int) (*ChunkIndex, error) {
	var entries []ChunkEntry
	if err := walkChunks(r, addr, rank, 0, &entries); err != nil {
		return nil, err
	}
	return NewChunkIndex(rank, entries), nil
}

func walkChunks(r *binary.Reader, addr uint64, rank, depth int, out *[]ChunkEntry) error {
	if depth > maxDepth {
		return fmt.Errorf("chunk B-tree deeper than %d levels", maxDepth)
	}
	n, err := readV1Node(r, addr, nodeChunk)
	if err != nil {
		return err
	}
	keySize := 8 + 8*(rank+1)
	d, err := n.body.Block(n.entries*(keySize+r.OffsetSize()) + keySize)
	if err != nil {
		return fmt.Errorf("chunk B-tree node at 0x%x: %w", addr, err)
	}
	for i := 0; i < n.entries; i++ {
		e := ChunkEntry{Size: d.Uint32(), FilterMask: d.Uint32(), Offset: make([]uint64, rank)}
		for j := range e.Offset {
			e.Offset[j] = d.Uint64()
		}
		d.Skip(8) // element-size dimension, always zero
		child := d.Offset()
		if err := d.Err(); err != nil {
			return err
		}
		if n.level > 0 {
			if err := walkChunks(r, child, rank, depth+1, out); err != nil {
				return err
			}
			continue
		}
		e.Address = child
		*out = append(*out, e)
	}
	return nil
}

// SymbolEntry is one link of an old-style group.
type SymbolEntry struct {
	Name    string
	Address uint64
	// Soft is set for soft links, whose target path is in Target.
	Soft   bool
	Target string
}

// ReadGroup lists the members of an old-style group from its B-tree and
// local heap.
func ReadGroup(r *binary.Reader, addr uint64, names *heap.Local) ([]SymbolEntry, error) {
	var out []SymbolEntry
	if err := walkGroup(r, addr, names, 0, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkGroup(r *binary.Reader, addr uint64, names *heap.Local, depth int, out *[]SymbolEntry) error {
	if depth > maxDepth {
		return fmt.Errorf("group B-tree deeper than %d levels", maxDepth)
	}
	n, err := readV1Node(r, addr, nodeGroup)
	if err != nil {
		return err
	}
	keySize := r.LengthSize()
	d, err := n.body.Block(n.entries*(keySize+r.OffsetSize()) + keySize)
	if err != nil {
		return fmt.Errorf("group B-tree node at 0x%x: %w", addr, err)
	}
	for i := 0; i < n.entries; i++ {
		d.Skip(keySize)
		child := d.Offset()
		if err := d.Err(); err != nil {
			return err
		}
		if n.level > 0 {
			err = walkGroup(r, child, names, depth+1, out)
		} else {
			err = readSymbolNode(r, child, names, out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readSymbolNode(r *binary.Reader, addr uint64, names *heap.Local, out *[]SymbolEntry) error {
	nr := r.At(int64(addr))
	d, err := nr.Block(8)
	if err != nil {
		return fmt.Errorf("symbol node at 0x%x: %w", addr, err)
	}
	if sig := string(d.Bytes(4)); sig != "SNOD" {
		return fmt.Errorf("%w: %q at 0x%x", ErrSignature, sig, addr)
	}
	if v := d.Uint8(); v != 1 {
		return fmt.Errorf("symbol node version %d: %w", v, binary.ErrUnsupported)
	}
	d.Skip(1)
	count := int(d.Uint16())

	entrySize := 2*r.OffsetSize() + 8 + 16
	ed, err := nr.Block(count * entrySize)
	if err != nil {
		return fmt.Errorf("symbol node at 0x%x: %w", addr, err)
	}
	for i := 0; i < count; i++ {
		nameOff := ed.Offset()
		e := SymbolEntry{Address: ed.Offset()}
		cache := ed.Uint32()
		ed.Skip(4)
		scratch := ed.Bytes(16)
		if err := ed.Err(); err != nil {
			return err
		}
		if e.Name, err = names.String(nameOff); err != nil {
			return err
		}
		if cache == 2 {
			e.Soft = true
			linkOff := binary.DecodeUint(scratch[:4], r.ByteOrder())
			if e.Target, err = names.String(linkOff); err != nil {
				return err
			}
		}
		*out = append(*out, e)
	}
	return nil
}
