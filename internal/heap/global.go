package heap

import (
	"fmt"
	"sync"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
)

// ID locates one object in a global heap collection.
type ID struct {
	Collection uint64
	Index      uint32
}

// VarLen is the in-file form of one variable-length element: the element
// count followed by the heap ID of its body.
type VarLen struct {
	Length uint32
	ID     ID
}

// VarLenSize is the encoded size of a VarLen element.
func VarLenSize(cfg binary.Config) int { return 4 + cfg.OffsetSize + 4 }

// DecodeVarLen decodes a VarLen element from b.
func DecodeVarLen(b []byte, cfg binary.Config) (VarLen, error) {
	d := binary.NewDecoder(b, cfg)
	v := VarLen{Length: d.Uint32()}
	v.ID.Collection = d.Offset()
	v.ID.Index = d.Uint32()
	return v, d.Err()
}

// Put encodes v.
func (v VarLen) Put(e *binary.Encoder) {
	e.PutUint32(v.Length)
	e.PutOffset(v.ID.Collection)
	e.PutUint32(v.ID.Index)
}

// Collection is a decoded global heap collection.
type Collection struct {
	Address uint64
	Size    uint64
	objects map[uint16][]byte
}

// ReadCollection reads the global heap collection at addr.
func ReadCollection(r *binary.Reader, addr uint64) (*Collection, error) {
	hr := r.At(int64(addr))
	d, err := hr.Block(8 + r.LengthSize())
	if err != nil {
		return nil, fmt.Errorf("global heap at 0x%x: %w", addr, err)
	}
	if sig := string(d.Bytes(4)); sig != "GCOL" {
		return nil, fmt.Errorf("%w: %q at 0x%x", ErrSignature, sig, addr)
	}
	if v := d.Uint8(); v != 1 {
		return nil, fmt.Errorf("global heap version %d: %w", v, binary.ErrUnsupported)
	}
	d.Skip(3)
	c := &Collection{Address: addr, Size: d.Length(), objects: map[uint16][]byte{}}
	if c.Size < uint64(d.Pos()) {
		return nil, fmt.Errorf("global heap at 0x%x: collection size %d too small", addr, c.Size)
	}
	body, err := hr.ReadBytes(int(c.Size) - d.Pos())
	if err != nil {
		return nil, fmt.Errorf("global heap at 0x%x: %w", addr, err)
	}

	od := binary.NewDecoder(body, r.Config())
	for od.Len() >= 8+r.LengthSize() {
		index := od.Uint16()
		if index == 0 {
			break
		}
		od.Skip(6) // reference count, reserved
		size := od.Length()
		if size > uint64(od.Len()) {
			return nil, fmt.Errorf("global heap object %d: size %d exceeds collection", index, size)
		}
		c.objects[index] = od.Bytes(int(size))
		if pad := int(size % 8); pad != 0 && od.Len() >= 8-pad {
			od.Skip(8 - pad)
		}
	}
	return c, od.Err()
}

// Object returns the body of the object with the given index.
func (c *Collection) Object(index uint32) ([]byte, error) {
	b, ok := c.objects[uint16(index)]
	if index > 0xFFFF || !ok {
		return nil, fmt.Errorf("%w: index %d in collection 0x%x", ErrNoObject, index, c.Address)
	}
	return b, nil
}

// Cache keeps decoded collections by address. It is safe for concurrent use.
type Cache struct {
	r    *binary.Reader
	mu   sync.Mutex
	cols map[uint64]*Collection
}

// NewCache returns an empty cache reading through r.
func NewCache(r *binary.Reader) *Cache {
	return &Cache{r: r, cols: map[uint64]*Collection{}}
}

// Get returns the body of the object referenced by id.
func (c *Cache) Get(id ID) ([]byte, error) {
	c.mu.Lock()
	col, ok := c.cols[id.Collection]
	c.mu.Unlock()
	if !ok {
		var err error
		if col, err = ReadCollection(c.r, id.Collection); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cols[id.Collection] = col
		c.mu.Unlock()
	}
	return col.Object(id.Index)
}
