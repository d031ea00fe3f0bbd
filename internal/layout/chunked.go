package layout

import (
	"fmt"
	"sync"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/btree"
	"github.com/dlr-wf/go-crackmnist/internal/filter"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Chunked storage is split into chunks found through a chunk index.
type Chunked struct {
	r        *binary.Reader
	layout   *message.Layout
	shape    Shape
	chunk    []uint64
	nominal  uint64
	pipeline *filter.Pipeline

	once  sync.Once
	index *btree.ChunkIndex
	err   error
}

func NewChunked(r *binary.Reader, l *message.Layout, s Shape, fp *message.FilterPipeline) (*Chunked, error) {
	if len(s.Dims) == 0 || len(l.ChunkDims) != len(s.Dims) {
		return nil, fmt.Errorf("%w: %d chunk dimensions for rank %d", ErrCorrupt, len(l.ChunkDims), len(s.Dims))
	}
	c := &Chunked{r: r, layout: l, shape: s, chunk: make([]uint64, len(l.ChunkDims)), nominal: s.ElemSize}
	for i, d := range l.ChunkDims {
		if d == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension", ErrCorrupt)
		}
		c.chunk[i] = uint64(d)
		c.nominal *= uint64(d)
	}
	p, err := filter.NewPipeline(fp, int(s.ElemSize))
	if err != nil {
		return nil, err
	}
	c.pipeline = p
	return c, nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// ChunkDims returns the chunk shape.
func (c *Chunked) ChunkDims() []uint64 { return c.chunk }

// Filtered reports whether chunks pass through a non-empty pipeline.
func (c *Chunked) Filtered() bool { return !c.pipeline.Empty() }

// Chunks returns the loaded chunk index.
func (c *Chunked) Chunks() (*btree.ChunkIndex, error) {
	c.once.Do(func() {
		c.index, c.err = c.loadIndex()
		if c.err != nil {
			c.err = fmt.Errorf("chunk index at 0x%x: %w", c.layout.Address, c.err)
		}
	})
	return c.index, c.err
}

func (c *Chunked) loadIndex() (*btree.ChunkIndex, error) {
	rank := len(c.chunk)
	if c.r.IsUndefinedOffset(c.layout.Address) {
		return btree.NewChunkIndex(rank, nil), nil
	}
	switch c.layout.Index {
	case message.IndexBTreeV1:
		return btree.ReadChunks(c.r, c.layout.Address, rank)
	case message.IndexSingleChunk:
		e := btree.ChunkEntry{Offset: make([]uint64, rank), Address: c.layout.Address}
		if c.layout.Flags&0x02 != 0 {
			e.Size = uint32(c.layout.FilteredSize)
			e.FilterMask = c.layout.FilterMask
		}
		return btree.NewChunkIndex(rank, []btree.ChunkEntry{e}), nil
	case message.IndexImplicit:
		return c.implicit(), nil
	case message.IndexFixedArray:
		return c.fixedArray()
	case message.IndexExtensible:
		return c.extensibleArray()
	case message.IndexBTreeV2:
		return btree.ReadChunksV2(c.r, c.layout.Address, c.layout.ChunkDims, uint32(c.shape.ElemSize))
	}
	return nil, fmt.Errorf("chunk index type %d: %w", c.layout.Index, binary.ErrUnsupported)
}

func (c *Chunked) ReadRows(start, count uint64) ([]byte, error) {
	if err := c.shape.check(start, count); err != nil {
		return nil, err
	}
	out := make([]byte, count*c.shape.RowSize())
	if count == 0 {
		return out, nil
	}
	idx, err := c.Chunks()
	if err != nil {
		return nil, err
	}
	end := start + count
	for _, e := range idx.Rows(start, end, c.layout.ChunkDims[0]) {
		data, err := c.readChunk(e)
		if err != nil {
			return nil, err
		}
		err = runs(c.shape.Dims, start, end, e.Offset, c.chunk, c.shape.ElemSize, func(arrOff, chOff, n uint64) error {
			if chOff+n > uint64(len(data)) {
				return fmt.Errorf("%w: chunk %v decoded to %d bytes", ErrCorrupt, e.Offset, len(data))
			}
			copy(out[arrOff:arrOff+n], data[chOff:])
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Chunked) readChunk(e btree.ChunkEntry) ([]byte, error) {
	size := uint64(e.Size)
	if size == 0 {
		size = c.nominal
	}
	raw, err := c.r.At(int64(e.Address)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("chunk %v at 0x%x: %w", e.Offset, e.Address, err)
	}
	data, err := c.pipeline.Decode(raw, e.FilterMask)
	if err != nil {
		return nil, fmt.Errorf("chunk %v at 0x%x: %w", e.Offset, e.Address, err)
	}
	return data, nil
}

// arrayDims is the extent chunk coordinates are linearised over: the
// maximum dimensions when fixed, else the current ones.
func (c *Chunked) arrayDims() []uint64 {
	if len(c.shape.MaxDims) != len(c.shape.Dims) {
		return c.shape.Dims
	}
	dims := make([]uint64, len(c.shape.Dims))
	for i, m := range c.shape.MaxDims {
		dims[i] = m
		if m == ^uint64(0) || m < c.shape.Dims[i] {
			dims[i] = c.shape.Dims[i]
		}
	}
	return dims
}

// grid returns the number of chunks along each dimension of dims.
func (c *Chunked) grid(dims []uint64) []uint64 {
	g := make([]uint64, len(dims))
	for i, d := range dims {
		g[i] = (d + c.chunk[i] - 1) / c.chunk[i]
	}
	return g
}

// origin converts a linear chunk number into element coordinates. order
// lists dimensions from slowest to fastest varying.
func (c *Chunked) origin(linear uint64, grid []uint64, order []int) []uint64 {
	off := make([]uint64, len(grid))
	for i := len(order) - 1; i >= 0; i-- {
		k := order[i]
		if i == 0 {
			off[k] = linear * c.chunk[k]
			break
		}
		off[k] = linear % grid[k] * c.chunk[k]
		linear /= grid[k]
	}
	return off
}

// inside reports whether a chunk origin lies within the current extent.
func (c *Chunked) inside(off []uint64) bool {
	for i, o := range off {
		if o >= c.shape.Dims[i] {
			return false
		}
	}
	return true
}

func naturalOrder(rank int) []int {
	order := make([]int, rank)
	for i := range order {
		order[i] = i
	}
	return order
}

func (c *Chunked) implicit() *btree.ChunkIndex {
	grid := c.grid(c.arrayDims())
	order := naturalOrder(len(grid))
	total := uint64(1)
	for _, g := range grid {
		total *= g
	}
	var entries []btree.ChunkEntry
	for i := uint64(0); i < total; i++ {
		off := c.origin(i, grid, order)
		if !c.inside(off) {
			continue
		}
		entries = append(entries, btree.ChunkEntry{Offset: off, Address: c.layout.Address + i*c.nominal})
	}
	return btree.NewChunkIndex(len(grid), entries)
}
