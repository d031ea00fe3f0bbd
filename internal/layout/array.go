package layout

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/btree"
)

const (
	clientChunk         = 0
	clientFilteredChunk = 1
)

// verified reads a checksummed block of n bytes at addr and checks its
// signature.
func verified(r *binary.Reader, addr uint64, n int, sig string) (*binary.Decoder, error) {
	d, err := r.At(int64(addr)).Block(n)
	if err != nil {
		return nil, fmt.Errorf("%s at 0x%x: %w", sig, addr, err)
	}
	body := d.Bytes(n - 4)
	if want := d.Uint32(); binary.Lookup3Checksum(body) != want {
		return nil, fmt.Errorf("%w: %s at 0x%x checksum mismatch", ErrCorrupt, sig, addr)
	}
	d.Seek(0)
	if got := string(d.Bytes(4)); got != sig {
		return nil, fmt.Errorf("%w: signature %q at 0x%x, want %s", ErrCorrupt, got, addr, sig)
	}
	if v := d.Uint8(); v != 0 {
		return nil, fmt.Errorf("%s version %d: %w", sig, v, binary.ErrUnsupported)
	}
	return d, nil
}

// element decodes one array element: an address, then for filtered chunks
// the stored size and the filter mask.
func element(d *binary.Decoder, client uint8, size int) btree.ChunkEntry {
	e := btree.ChunkEntry{Address: d.Offset()}
	if client == clientFilteredChunk {
		e.Size = uint32(d.UintN(size - d.Config().OffsetSize - 4))
		e.FilterMask = d.Uint32()
	}
	return e
}

func (c *Chunked) fixedArray() (*btree.ChunkIndex, error) {
	cfg := c.r.Config()
	d, err := verified(c.r, c.layout.Address, 4+1+1+1+1+cfg.LengthSize+cfg.OffsetSize+4, "FAHD")
	if err != nil {
		return nil, err
	}
	client := d.Uint8()
	size := int(d.Uint8())
	pageBits := d.Uint8()
	n := d.Length()
	block := d.Offset()
	if err := d.Err(); err != nil {
		return nil, err
	}
	if n > 1<<pageBits {
		return nil, fmt.Errorf("paged fixed array of %d elements: %w", n, binary.ErrUnsupported)
	}

	grid := c.grid(c.arrayDims())
	order := naturalOrder(len(grid))
	var entries []btree.ChunkEntry
	if n > 0 && !c.r.IsUndefinedOffset(block) {
		d, err = verified(c.r, block, 4+1+1+cfg.OffsetSize+int(n)*size+4, "FADB")
		if err != nil {
			return nil, err
		}
		d.Skip(1 + cfg.OffsetSize)
		for i := uint64(0); i < n; i++ {
			e := element(d, client, size)
			e.Offset = c.origin(i, grid, order)
			if c.r.IsUndefinedOffset(e.Address) || !c.inside(e.Offset) {
				continue
			}
			entries = append(entries, e)
		}
		if err := d.Err(); err != nil {
			return nil, err
		}
	}
	return btree.NewChunkIndex(len(grid), entries), nil
}

// extensibleArray reads chunk addresses held directly in the index block.
// Arrays that have grown into data blocks are not supported.
func (c *Chunked) extensibleArray() (*btree.ChunkIndex, error) {
	cfg := c.r.Config()
	d, err := verified(c.r, c.layout.Address, 4+1+1+1+1+1+1+1+1+6*cfg.LengthSize+cfg.OffsetSize+4, "EAHD")
	if err != nil {
		return nil, err
	}
	client := d.Uint8()
	size := int(d.Uint8())
	d.Skip(1) // max elements bits
	inline := uint64(d.Uint8())
	d.Skip(3) // data and super block parameters
	d.Skip(4 * cfg.LengthSize)
	maxIndex := d.Length()
	d.Skip(cfg.LengthSize)
	block := d.Offset()
	if err := d.Err(); err != nil {
		return nil, err
	}
	if maxIndex > inline {
		return nil, fmt.Errorf("extensible array with %d elements beyond the index block: %w", maxIndex-inline, binary.ErrUnsupported)
	}

	// The unlimited dimension varies slowest.
	order := []int{}
	for k, m := range c.shape.MaxDims {
		if m == ^uint64(0) {
			order = append(order, k)
		}
	}
	if len(order) != 1 {
		order = []int{0}
	}
	for k := range c.shape.Dims {
		if k != order[0] {
			order = append(order, k)
		}
	}
	grid := c.grid(c.arrayDims())

	var entries []btree.ChunkEntry
	if maxIndex > 0 && !c.r.IsUndefinedOffset(block) {
		// The index block checksum also covers data block pointers
		// that are not read here.
		d, err := c.r.At(int64(block)).Block(4 + 1 + 1 + cfg.OffsetSize + int(maxIndex)*size)
		if err != nil {
			return nil, fmt.Errorf("EAIB at 0x%x: %w", block, err)
		}
		if sig := string(d.Bytes(4)); sig != "EAIB" {
			return nil, fmt.Errorf("%w: signature %q at 0x%x, want EAIB", ErrCorrupt, sig, block)
		}
		d.Skip(2 + cfg.OffsetSize)
		for i := uint64(0); i < maxIndex; i++ {
			e := element(d, client, size)
			e.Offset = c.origin(i, grid, order)
			if c.r.IsUndefinedOffset(e.Address) || !c.inside(e.Offset) {
				continue
			}
			entries = append(entries, e)
		}
		if err := d.Err(); err != nil {
			return nil, err
		}
	}
	return btree.NewChunkIndex(len(grid), entries), nil
}
