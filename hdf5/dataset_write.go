package hdf5

import (
	"fmt"
	"math"

	binpkg "github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/btree"
	"github.com/dlr-wf/go-crackmnist/internal/dtype"
	"github.com/dlr-wf/go-crackmnist/internal/filter"
	"github.com/dlr-wf/go-crackmnist/internal/heap"
	"github.com/dlr-wf/go-crackmnist/internal/layout"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// maxHeapObjects bounds the objects of one global heap collection, whose
// object index is 16 bits wide.
const maxHeapObjects = math.MaxUint16

// WriteDataset writes data, a []float32, []float64, []int64, []int32,
// []uint8 or []int8 in row-major order, as a dataset of the given shape in
// the root group.
func (w *Writer) WriteDataset(name string, shape []uint64, data any, opts ...DatasetOption) error {
	if err := w.begin(name); err != nil {
		w.mu.Unlock()
		return err
	}
	defer w.mu.Unlock()

	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}

	dt, raw, err := dtype.Encode(data)
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	n := uint64(1)
	for _, d := range shape {
		n *= d
	}
	if got := dtype.Len(data); uint64(got) != n {
		return fmt.Errorf("dataset %q: %d elements for shape %v", name, got, shape)
	}
	return w.writeDataset(name, shape, dt, raw, options)
}

// WriteStrings writes a one-dimensional string dataset in the root group.
// With vlen set the strings are stored in the global heap; otherwise they
// are NUL-padded to the longest value.
func (w *Writer) WriteStrings(name string, values []string, vlen bool) error {
	if err := w.begin(name); err != nil {
		w.mu.Unlock()
		return err
	}
	defer w.mu.Unlock()

	shape := []uint64{uint64(len(values))}
	if !vlen {
		dt, raw := dtype.FixedStrings(values)
		return w.writeDataset(name, shape, dt, raw, defaultDatasetOptions())
	}

	e := binpkg.NewEncoder(w.cfg, 0)
	for lo := 0; lo < len(values); lo += maxHeapObjects {
		batch := values[lo:min(lo+maxHeapObjects, len(values))]
		var col heap.CollectionWriter
		ids := make([]uint32, len(batch))
		for i, v := range batch {
			ids[i] = col.Add([]byte(v))
		}
		addr, err := w.put(col.Encode(w.cfg), "global heap")
		if err != nil {
			return err
		}
		for i, v := range batch {
			heap.VarLen{Length: uint32(len(v)), ID: heap.ID{Collection: addr, Index: ids[i]}}.Put(e)
		}
	}
	return w.writeDataset(name, shape, message.NewVarLenString(w.cfg), e.Bytes(), defaultDatasetOptions())
}

func (w *Writer) writeDataset(name string, shape []uint64, dt *message.Datatype, raw []byte, options *datasetOptions) error {
	var (
		l   *message.Layout
		fp  *message.FilterPipeline
		err error
	)
	if options.chunks != nil {
		fp = options.pipeline(int(dt.Size))
		l, err = w.writeChunks(shape, uint64(dt.Size), raw, options.chunks, fp)
	} else {
		l, err = w.writeContiguous(raw)
	}
	if err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}

	msgs := []message.Encodable{message.NewDataspace(shape), dt, &message.FillValue{}}
	if fp != nil {
		msgs = append(msgs, fp)
	}
	msgs = append(msgs, l)
	addr, err := w.put(w.header(msgs...), "object header "+name)
	if err != nil {
		return err
	}
	w.links = append(w.links, message.NewHardLink(name, addr))
	return nil
}

func (w *Writer) writeContiguous(raw []byte) (*message.Layout, error) {
	if len(raw) == 0 {
		return message.NewContiguous(w.cfg.Undefined(), 0), nil
	}
	addr, err := w.put(raw, "contiguous data")
	if err != nil {
		return nil, err
	}
	return message.NewContiguous(addr, uint64(len(raw))), nil
}

func (w *Writer) writeChunks(shape []uint64, elemSize uint64, raw []byte, chunks []uint64, fp *message.FilterPipeline) (*message.Layout, error) {
	rank := len(shape)
	if rank == 0 || len(chunks) != rank {
		return nil, fmt.Errorf("chunk rank %d for dataset rank %d", len(chunks), rank)
	}
	chunkDims := make([]uint32, rank)
	end := make([]uint64, rank)
	for i, c := range chunks {
		if c == 0 || c > math.MaxUint32 {
			return nil, fmt.Errorf("invalid chunk dimension %d", c)
		}
		chunkDims[i] = uint32(c)
		end[i] = (shape[i] + c - 1) / c * c
	}

	pipeline, err := filter.NewPipeline(fp, int(elemSize))
	if err != nil {
		return nil, err
	}
	var entries []btree.ChunkEntry
	for _, c := range layout.Split(raw, shape, chunks, elemSize) {
		enc, err := pipeline.Encode(c.Data)
		if err != nil {
			return nil, err
		}
		addr, err := w.put(enc, "chunk")
		if err != nil {
			return nil, err
		}
		entries = append(entries, btree.ChunkEntry{Offset: c.Offset, Size: uint32(len(enc)), Address: addr})
	}

	sized, _ := btree.EncodeChunkTree(w.cfg, 0, rank, entries, end)
	base := w.alloc.AllocAligned(uint64(len(sized)), 8, "chunk index")
	tree, root := btree.EncodeChunkTree(w.cfg, base, rank, entries, end)
	if err := w.writeAt(tree, base, "chunk index"); err != nil {
		return nil, err
	}
	return message.NewChunked(root, chunkDims, uint32(elemSize)), nil
}
