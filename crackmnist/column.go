package crackmnist

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dlr-wf/go-crackmnist/hdf5"
)

// column is one per-sample HDF5 dataset. Row i belongs to sample i.
type column struct {
	ds *hdf5.Dataset
	// row is the shape of one sample.
	row  []int
	size int
}

func openColumn(f *hdf5.File, name string) (*column, error) {
	ds, err := f.OpenDataset(name)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", name, err)
	}
	shape := ds.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("column %s: scalar dataset", name)
	}
	c := &column{ds: ds, size: ds.RowElements()}
	for _, d := range shape[1:] {
		c.row = append(c.row, int(d))
	}
	return c, nil
}

func (c *column) len() int { return c.ds.Len() }

func (c *column) name() string { return c.ds.Name() }

// expect checks that each row holds n elements.
func (c *column) expect(n int) error {
	if c.size != n {
		return fmt.Errorf("column %s: %d elements per sample, want %d", c.name(), c.size, n)
	}
	return nil
}

// tensors reads the rows in idx as float32 tensors, in the order of idx.
func (c *column) tensors(idx []int) ([]Tensor, error) {
	rows, err := gather(idx, c.size, c.ds.ReadFloat32Rows)
	if err != nil {
		return nil, err
	}
	out := make([]Tensor, len(rows))
	for i, r := range rows {
		out[i] = Tensor{Shape: slices.Clone(c.row), Data: r}
	}
	return out, nil
}

func (c *column) float64s(idx []int) ([][]float64, error) {
	return gather(idx, c.size, c.ds.ReadFloat64Rows)
}

func (c *column) int64s(idx []int) ([]int64, error) {
	rows, err := gather(idx, 1, c.ds.ReadInt64Rows)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out, nil
}

// gather reads the rows named by idx and returns them in the order of idx.
// The indices are sorted and merged into runs of consecutive rows, so each
// run costs one read; repeated indices get their own copy.
func gather[T any](idx []int, rowLen int, read func(start, count int) ([]T, error)) ([][]T, error) {
	type slot struct{ row, pos int }
	slots := make([]slot, len(idx))
	for i, r := range idx {
		slots[i] = slot{r, i}
	}
	slices.SortFunc(slots, func(a, b slot) int { return cmp.Compare(a.row, b.row) })

	out := make([][]T, len(idx))
	for i := 0; i < len(slots); {
		start, end := slots[i].row, slots[i].row+1
		j := i + 1
		for ; j < len(slots) && slots[j].row <= end; j++ {
			if slots[j].row == end {
				end++
			}
		}
		buf, err := read(start, end-start)
		if err != nil {
			return nil, err
		}
		if len(buf) < (end-start)*rowLen {
			return nil, fmt.Errorf("rows [%d, %d): short read of %d elements", start, end, len(buf))
		}
		for _, s := range slots[i:j] {
			off := (s.row - start) * rowLen
			out[s.pos] = slices.Clone(buf[off : off+rowLen])
		}
		i = j
	}
	return out, nil
}
