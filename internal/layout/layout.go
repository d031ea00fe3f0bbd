package layout

import (
	"errors"
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

var (
	ErrOutOfRange = errors.New("row range out of bounds")
	ErrCorrupt    = errors.New("corrupt dataset storage")
)

// Reader reads whole rows of a dataset.
type Reader interface {
	Class() message.LayoutClass
	// ReadRows returns the bytes of rows [start, start+count).
	ReadRows(start, count uint64) ([]byte, error)
}

// Shape is the extent and element size of a dataset.
type Shape struct {
	Dims     []uint64
	MaxDims  []uint64
	ElemSize uint64
}

// Rows returns the extent of the first dimension; a scalar has one row.
func (s Shape) Rows() uint64 {
	if len(s.Dims) == 0 {
		return 1
	}
	return s.Dims[0]
}

// RowSize returns the size in bytes of one row.
func (s Shape) RowSize() uint64 {
	n := s.ElemSize
	for _, d := range s.Dims[min(1, len(s.Dims)):] {
		n *= d
	}
	return n
}

// Size returns the size in bytes of the whole dataset.
func (s Shape) Size() uint64 { return s.Rows() * s.RowSize() }

func (s Shape) check(start, count uint64) error {
	if rows := s.Rows(); start > rows || count > rows-start {
		return fmt.Errorf("%w: rows [%d, %d) of %d", ErrOutOfRange, start, start+count, rows)
	}
	return nil
}

// New returns a Reader for the storage described by l.
func New(r *binary.Reader, l *message.Layout, s Shape, fp *message.FilterPipeline) (Reader, error) {
	switch l.Class {
	case message.LayoutCompact:
		return NewCompact(l.CompactData, s), nil
	case message.LayoutContiguous:
		return NewContiguous(r, l.Address, l.Size, s), nil
	case message.LayoutChunked:
		return NewChunked(r, l, s, fp)
	}
	return nil, fmt.Errorf("%s layout: %w", l.Class, binary.ErrUnsupported)
}

// runs calls fn for every contiguous byte run in the intersection of a
// chunk with rows [start, end) of an array. arrOff is relative to row start
// of the array, chOff to the chunk origin.
func runs(dims []uint64, start, end uint64, origin, chunk []uint64, elem uint64, fn func(arrOff, chOff, n uint64) error) error {
	rank := len(dims)
	lo := make([]uint64, rank)
	hi := make([]uint64, rank)
	base := make([]uint64, rank)
	for k := range dims {
		lo[k] = origin[k]
		hi[k] = min(origin[k]+chunk[k], dims[k])
		if k == 0 {
			lo[k] = max(lo[k], start)
			hi[k] = min(hi[k], end)
			base[k] = start
		}
		if lo[k] >= hi[k] {
			return nil
		}
	}

	arrStride := make([]uint64, rank)
	chStride := make([]uint64, rank)
	arrStride[rank-1], chStride[rank-1] = elem, elem
	for k := rank - 2; k >= 0; k-- {
		arrStride[k] = arrStride[k+1] * dims[k+1]
		chStride[k] = chStride[k+1] * chunk[k+1]
	}

	var walk func(k int, arrOff, chOff uint64) error
	walk = func(k int, arrOff, chOff uint64) error {
		if k == rank-1 {
			return fn(arrOff+(lo[k]-base[k])*elem, chOff+(lo[k]-origin[k])*elem, (hi[k]-lo[k])*elem)
		}
		for x := lo[k]; x < hi[k]; x++ {
			if err := walk(k+1, arrOff+(x-base[k])*arrStride[k], chOff+(x-origin[k])*chStride[k]); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0, 0, 0)
}
