package hdf5

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dlr-wf/go-crackmnist/internal/btree"
	"github.com/dlr-wf/go-crackmnist/internal/heap"
	"github.com/dlr-wf/go-crackmnist/internal/message"
	"github.com/dlr-wf/go-crackmnist/internal/object"
)

// Group is an HDF5 group.
type Group struct {
	file   *File
	path   string
	header *object.Header
}

// member is one named link of a group.
type member struct {
	name     string
	address  uint64
	soft     bool
	external bool
	target   string
}

// Name returns the last component of the group path.
func (g *Group) Name() string {
	return path.Base(g.path)
}

// Path returns the absolute path of the group.
func (g *Group) Path() string {
	return g.path
}

// Members returns the names of the group's direct children in ascending
// order.
func (g *Group) Members() ([]string, error) {
	if err := g.file.check(); err != nil {
		return nil, err
	}
	ms, err := g.members()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.name
	}
	sort.Strings(names)
	return names, nil
}

// OpenGroup opens a group by path. Relative paths start at g; absolute
// paths start at the root group.
func (g *Group) OpenGroup(p string) (*Group, error) {
	if err := g.file.check(); err != nil {
		return nil, err
	}
	header, full, err := g.resolve(p, 0)
	if err != nil {
		return nil, err
	}
	if !header.IsGroup() {
		return nil, fmt.Errorf("%s: %w", full, ErrNotGroup)
	}
	return &Group{file: g.file, path: full, header: header}, nil
}

// OpenDataset opens a dataset by path. Relative paths start at g; absolute
// paths start at the root group.
func (g *Group) OpenDataset(p string) (*Dataset, error) {
	if err := g.file.check(); err != nil {
		return nil, err
	}
	header, full, err := g.resolve(p, 0)
	if err != nil {
		return nil, err
	}
	if !header.IsDataset() {
		return nil, fmt.Errorf("%s: %w", full, ErrNotDataset)
	}
	return newDataset(g.file, full, header)
}

// resolve walks p component by component, following soft links up to
// MaxLinkDepth deep.
func (g *Group) resolve(p string, depth int) (*object.Header, string, error) {
	parts, err := splitPath(p)
	if err != nil {
		return nil, "", err
	}
	cur := g
	if strings.HasPrefix(p, "/") {
		cur = g.file.root
	}
	for i, name := range parts {
		m, err := cur.lookup(name)
		if err != nil {
			return nil, "", err
		}

		var (
			header *object.Header
			full   string
		)
		switch {
		case m.external:
			return nil, "", fmt.Errorf("%s: external link: %w", joinPath(cur.path, name), ErrUnsupported)
		case m.soft:
			if depth >= MaxLinkDepth {
				return nil, "", fmt.Errorf("%s: %w", joinPath(cur.path, name), ErrLinkDepth)
			}
			header, full, err = cur.resolve(m.target, depth+1)
		default:
			full = joinPath(cur.path, name)
			header, err = object.Read(g.file.reader, m.address)
		}
		if err != nil {
			return nil, "", err
		}

		if i == len(parts)-1 {
			return header, full, nil
		}
		if !header.IsGroup() {
			return nil, "", fmt.Errorf("%s: %w", full, ErrNotGroup)
		}
		cur = &Group{file: g.file, path: full, header: header}
	}
	return cur.header, cur.path, nil
}

func (g *Group) lookup(name string) (member, error) {
	ms, err := g.members()
	if err != nil {
		return member{}, err
	}
	for _, m := range ms {
		if m.name == name {
			return m, nil
		}
	}
	return member{}, fmt.Errorf("%s: %w", joinPath(g.path, name), ErrNotFound)
}

// members lists the links of a compact group or the entries of a
// symbol-table group.
func (g *Group) members() ([]member, error) {
	if st := g.symbolTable(); st != nil {
		return g.symbolMembers(st)
	}
	if li := g.header.LinkInfo(); li != nil && li.Dense(g.file.reader.Config()) {
		return nil, fmt.Errorf("%s: dense link storage: %w", g.path, ErrUnsupported)
	}
	var out []member
	for _, l := range g.header.Links() {
		m := member{name: l.Name}
		switch l.Kind {
		case message.LinkHard:
			m.address = l.Address
		case message.LinkSoft:
			m.soft, m.target = true, l.Target
		default:
			m.external, m.target = true, l.Target
		}
		out = append(out, m)
	}
	return out, nil
}

func (g *Group) symbolTable() *message.SymbolTable {
	if st := g.header.SymbolTable(); st != nil {
		return st
	}
	sb := g.file.superblock
	if g.path == "/" && sb.RootCacheType == 1 {
		return &message.SymbolTable{BTreeAddress: sb.RootBTreeAddress, HeapAddress: sb.RootHeapAddress}
	}
	return nil
}

func (g *Group) symbolMembers(st *message.SymbolTable) ([]member, error) {
	names, err := heap.ReadLocal(g.file.reader, st.HeapAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: local heap: %w", g.path, err)
	}
	entries, err := btree.ReadGroup(g.file.reader, st.BTreeAddress, names)
	if err != nil {
		return nil, fmt.Errorf("%s: group B-tree: %w", g.path, err)
	}
	out := make([]member, len(entries))
	for i, e := range entries {
		out[i] = member{name: e.Name, address: e.Address, soft: e.Soft, target: e.Target}
	}
	return out, nil
}
