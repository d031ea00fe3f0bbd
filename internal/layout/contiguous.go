package layout

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Contiguous storage is a single block at a fixed address.
type Contiguous struct {
	r     *binary.Reader
	addr  uint64
	size  uint64
	shape Shape
}

// NewContiguous reads from the block at addr. A zero size is taken from the
// shape.
func NewContiguous(r *binary.Reader, addr, size uint64, s Shape) *Contiguous {
	if size == 0 {
		size = s.Size()
	}
	return &Contiguous{r: r, addr: addr, size: size, shape: s}
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

// Allocated reports whether the storage exists in the file.
func (c *Contiguous) Allocated() bool { return !c.r.IsUndefinedOffset(c.addr) }

func (c *Contiguous) ReadRows(start, count uint64) ([]byte, error) {
	if err := c.shape.check(start, count); err != nil {
		return nil, err
	}
	row := c.shape.RowSize()
	off, n := start*row, count*row
	if !c.Allocated() || n == 0 {
		return make([]byte, n), nil
	}
	if off+n > c.size {
		return nil, fmt.Errorf("%w: contiguous block of %d bytes, need %d", ErrCorrupt, c.size, off+n)
	}
	b, err := c.r.At(int64(c.addr + off)).ReadBytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("contiguous data at 0x%x: %w", c.addr+off, err)
	}
	return b, nil
}
