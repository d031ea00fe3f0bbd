// Package alloc assigns file addresses to the structures of an HDF5 file
// being written. Space is only ever appended; nothing is freed.
package alloc

import (
	"fmt"
	"sort"
	"sync"
)

// Block is one allocated range, tagged with what it holds.
type Block struct {
	Addr uint64
	Size uint64
	Tag  string
}

// End returns the first address past the block.
func (b Block) End() uint64 { return b.Addr + b.Size }

// Allocator appends blocks at the end of the file. It is safe for
// concurrent use.
type Allocator struct {
	mu     sync.Mutex
	base   uint64
	eof    uint64
	blocks []Block
}

// New returns an allocator whose first block starts at base.
func New(base uint64) *Allocator {
	return &Allocator{base: base, eof: base}
}

// Alloc reserves size bytes and returns their address. A zero size
// returns the current end of file without reserving anything.
func (a *Allocator) Alloc(size uint64, tag string) uint64 {
	return a.AllocAligned(size, 1, tag)
}

// AllocAligned is Alloc with the address rounded up to a multiple of align.
func (a *Allocator) AllocAligned(size, align uint64, tag string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if align > 1 {
		if rem := a.eof % align; rem != 0 {
			a.eof += align - rem
		}
	}
	addr := a.eof
	if size > 0 {
		a.eof += size
		a.blocks = append(a.blocks, Block{Addr: addr, Size: size, Tag: tag})
	}
	return addr
}

// EOF returns the end-of-file address.
func (a *Allocator) EOF() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

// Blocks returns the allocations in address order.
func (a *Allocator) Blocks() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]Block(nil), a.blocks...)
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Validate checks that no two blocks overlap and all lie in [base, EOF).
func (a *Allocator) Validate() error {
	blocks := a.Blocks()
	eof := a.EOF()
	for i, b := range blocks {
		if b.Addr < a.base || b.End() > eof {
			return fmt.Errorf("%s block [0x%x, 0x%x) outside [0x%x, 0x%x)", b.Tag, b.Addr, b.End(), a.base, eof)
		}
		if i > 0 && blocks[i-1].End() > b.Addr {
			p := blocks[i-1]
			return fmt.Errorf("%s block [0x%x, 0x%x) overlaps %s block at 0x%x", p.Tag, p.Addr, p.End(), b.Tag, b.Addr)
		}
	}
	return nil
}
