package hdf5

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dlr-wf/go-crackmnist/internal/alloc"
	binpkg "github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/btree"
	"github.com/dlr-wf/go-crackmnist/internal/heap"
	"github.com/dlr-wf/go-crackmnist/internal/message"
	"github.com/dlr-wf/go-crackmnist/internal/object"
	"github.com/dlr-wf/go-crackmnist/internal/superblock"
)

// Writer creates an HDF5 file whose datasets all live in the root group.
// Data is written as each dataset is added; the root group and superblock
// are written by Close.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	cfg    binpkg.Config
	sb     *superblock.Superblock
	alloc  *alloc.Allocator
	links  []*message.Link
	legacy bool
	closed bool
}

// Create creates (or truncates) the file at path.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	var options writerOptions
	for _, opt := range opts {
		opt(&options)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	sb := superblock.NewV2()
	if options.legacy {
		sb = superblock.NewV0()
	}
	return &Writer{
		path:   path,
		file:   f,
		cfg:    sb.Config(),
		sb:     sb,
		alloc:  alloc.New(uint64(sb.Size())),
		legacy: options.legacy,
	}, nil
}

// Close writes the root group and superblock and closes the file. A file
// that fails to finish is removed. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(w.path)
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) finish() error {
	links := append([]*message.Link(nil), w.links...)
	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	var (
		root uint64
		err  error
	)
	if w.legacy {
		root, err = w.symbolTableRoot(links)
	} else {
		msgs := []message.Encodable{&message.LinkInfo{}, &message.GroupInfo{}}
		for _, l := range links {
			msgs = append(msgs, l)
		}
		root, err = w.put(object.Encode(w.cfg, msgs...), "root group")
	}
	if err != nil {
		return err
	}

	if err := w.alloc.Validate(); err != nil {
		return err
	}
	w.sb.RootGroupAddress = root
	w.sb.EOFAddress = w.alloc.EOF()
	e := binpkg.NewEncoder(w.cfg, 0)
	w.sb.Encode(e)
	_, err = w.file.WriteAt(e.Bytes(), 0)
	return err
}

// symbolTableRoot writes the local heap, symbol nodes and B-tree of an
// old-style root group and its object header, and records them in the
// superblock's root entry.
func (w *Writer) symbolTableRoot(links []*message.Link) (uint64, error) {
	names := make([]string, len(links))
	addrs := make([]uint64, len(links))
	for i, l := range links {
		names[i], addrs[i] = l.Name, l.Address
	}

	sized, _ := heap.EncodeLocal(w.cfg, 0, names)
	heapAddr := w.alloc.AllocAligned(uint64(len(sized)), 8, "local heap")
	b, offsets := heap.EncodeLocal(w.cfg, heapAddr, names)
	if err := w.writeAt(b, heapAddr, "local heap"); err != nil {
		return 0, err
	}

	sized, _ = btree.EncodeGroup(w.cfg, 0, offsets, addrs)
	base := w.alloc.AllocAligned(uint64(len(sized)), 8, "group B-tree")
	b, treeAddr := btree.EncodeGroup(w.cfg, base, offsets, addrs)
	if err := w.writeAt(b, base, "group B-tree"); err != nil {
		return 0, err
	}

	st := &message.SymbolTable{BTreeAddress: treeAddr, HeapAddress: heapAddr}
	root, err := w.put(object.EncodeV1(w.cfg, st), "root group")
	if err != nil {
		return 0, err
	}
	w.sb.RootCacheType = 1
	w.sb.RootBTreeAddress = treeAddr
	w.sb.RootHeapAddress = heapAddr
	return root, nil
}

// header encodes an object header in the writer's format.
func (w *Writer) header(msgs ...message.Encodable) []byte {
	if w.legacy {
		return object.EncodeV1(w.cfg, msgs...)
	}
	return object.Encode(w.cfg, msgs...)
}

func (w *Writer) writeAt(b []byte, addr uint64, tag string) error {
	if _, err := w.file.WriteAt(b, int64(addr)); err != nil {
		return fmt.Errorf("%s at 0x%x: %w", tag, addr, err)
	}
	return nil
}

// put allocates space for b, 8-byte aligned, and writes it there.
func (w *Writer) put(b []byte, tag string) (uint64, error) {
	addr := w.alloc.AllocAligned(uint64(len(b)), 8, tag)
	if len(b) == 0 {
		return addr, nil
	}
	if err := w.writeAt(b, addr, tag); err != nil {
		return 0, err
	}
	return addr, nil
}

// begin locks the writer and checks that name can be added to the root
// group. The caller must unlock.
func (w *Writer) begin(name string) error {
	w.mu.Lock()
	if w.closed {
		return ErrClosed
	}
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return fmt.Errorf("%w: dataset name %q", ErrInvalidPath, name)
	}
	for _, l := range w.links {
		if l.Name == name {
			return fmt.Errorf("dataset %q already exists", name)
		}
	}
	return nil
}
