package layout

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Compact storage lives in the object header.
type Compact struct {
	data  []byte
	shape Shape
}

func NewCompact(data []byte, s Shape) *Compact {
	return &Compact{data: data, shape: s}
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *Compact) ReadRows(start, count uint64) ([]byte, error) {
	if err := c.shape.check(start, count); err != nil {
		return nil, err
	}
	row := c.shape.RowSize()
	off, n := start*row, count*row
	if off+n > uint64(len(c.data)) {
		return nil, fmt.Errorf("%w: compact data holds %d bytes, need %d", ErrCorrupt, len(c.data), off+n)
	}
	out := make([]byte, n)
	copy(out, c.data[off:])
	return out, nil
}
