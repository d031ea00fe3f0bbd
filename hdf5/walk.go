package hdf5

import "errors"

// SkipGroup may be returned by a WalkFunc visiting a group to skip its
// children.
var SkipGroup = errors.New("skip this group")

// WalkFunc is called for each object during traversal. obj is either a
// *Group or a *Dataset, or nil when err reports that the object at path
// could not be opened. Returning a non-nil error other than SkipGroup stops
// the walk.
type WalkFunc func(path string, obj any, err error) error

// Walk visits the root group and everything below it in depth-first,
// name-sorted order.
//
//	hdf5.Walk(f, func(path string, obj any, err error) error {
//	    if ds, ok := obj.(*hdf5.Dataset); ok {
//	        fmt.Println(path, ds.Shape())
//	    }
//	    return err
//	})
func Walk(f *File, fn WalkFunc) error {
	if err := f.check(); err != nil {
		return err
	}
	err := walkGroup(f.root, fn)
	if errors.Is(err, SkipGroup) {
		return nil
	}
	return err
}

func walkGroup(g *Group, fn WalkFunc) error {
	if err := fn(g.path, g, nil); err != nil {
		return err
	}
	names, err := g.Members()
	if err != nil {
		return fn(g.path, nil, err)
	}
	for _, name := range names {
		childPath := joinPath(g.path, name)
		header, full, err := g.resolve(name, 0)
		if err != nil {
			if err := fn(childPath, nil, err); err != nil {
				return err
			}
			continue
		}
		switch {
		case header.IsDataset():
			ds, err := newDataset(g.file, full, header)
			if err != nil {
				err = fn(childPath, nil, err)
			} else {
				err = fn(childPath, ds, nil)
			}
			if err != nil {
				return err
			}
		case header.IsGroup():
			// Soft links may point back up the tree; only walk real children.
			if full != childPath {
				continue
			}
			err := walkGroup(&Group{file: g.file, path: full, header: header}, fn)
			if err != nil && !errors.Is(err, SkipGroup) {
				return err
			}
		}
	}
	return nil
}
