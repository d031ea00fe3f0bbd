package heap

import "github.com/dlr-wf/go-crackmnist/internal/binary"

// minCollectionSize is the smallest collection HDF5 itself allocates.
const minCollectionSize = 4096

// CollectionWriter accumulates objects for a single global heap collection.
type CollectionWriter struct {
	objects [][]byte
}

// Add queues b and returns its object index.
func (w *CollectionWriter) Add(b []byte) uint32 {
	w.objects = append(w.objects, b)
	return uint32(len(w.objects))
}

// Len returns the number of queued objects.
func (w *CollectionWriter) Len() int { return len(w.objects) }

// Encode returns the collection bytes. Space beyond the last object up to
// the minimum collection size is described by a free-space object.
func (w *CollectionWriter) Encode(cfg binary.Config) []byte {
	objHeader := 8 + cfg.LengthSize
	e := binary.NewEncoder(cfg, 0)
	e.PutBytes([]byte("GCOL"))
	e.PutUint8(1)
	e.PutZeros(3)
	sizePos := e.Len()
	e.PutLength(0)
	for i, b := range w.objects {
		e.PutUint16(uint16(i + 1))
		e.PutUint16(1)
		e.PutZeros(4)
		e.PutLength(uint64(len(b)))
		e.PutBytes(b)
		e.Pad(8)
	}
	if free := minCollectionSize - e.Len(); free >= objHeader {
		e.PutUint16(0)
		e.PutZeros(6)
		e.PutLength(uint64(free))
		e.PutZeros(free - objHeader)
	}

	size := binary.NewEncoder(cfg, 0)
	size.PutLength(uint64(e.Len()))
	e.Patch(sizePos, size.Bytes())
	return e.Bytes()
}
