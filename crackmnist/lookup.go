package crackmnist

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Range returns the indices [start, stop).
func Range(start, stop int) []int {
	if stop <= start {
		return []int{}
	}
	idx := make([]int, stop-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}

// Indices returns the members of b in ascending order.
func Indices(b *roaring.Bitmap) []int {
	idx := make([]int, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		idx = append(idx, int(it.Next()))
	}
	return idx
}

// Metadata returns the experiment record of sample i.
func (d *Dataset) Metadata(i int) (Record, error) {
	recs, err := d.MetadataBatch([]int{i})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// MetadataBatch returns the experiment records of the samples at idx.
func (d *Dataset) MetadataBatch(idx []int) ([]Record, error) {
	recs, err := d.metadataBatch(idx)
	return recs, d.cfg.Metrics.observe(err)
}

func (d *Dataset) metadataBatch(idx []int) ([]Record, error) {
	if err := d.checkIndices(idx); err != nil {
		return nil, err
	}
	ids, err := d.expIDs.int64s(idx)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, len(ids))
	for i, id := range ids {
		name, err := d.experiment(id)
		if err != nil {
			return nil, err
		}
		rec, ok := d.table[name]
		if !ok {
			return nil, &MetadataKeyError{Name: name}
		}
		recs[i] = rec
	}
	return recs, nil
}

func (d *Dataset) experiment(id int64) (string, error) {
	if id < 0 || id >= int64(len(d.experiments)) {
		return "", &MetadataKeyError{ID: id, BadID: true}
	}
	return d.experiments[id], nil
}

// Force returns the applied load of sample i.
func (d *Dataset) Force(i int) (float64, error) {
	f, err := d.Forces([]int{i})
	if err != nil {
		return 0, err
	}
	return f[0], nil
}

// Forces returns the applied loads of the samples at idx.
func (d *Dataset) Forces(idx []int) ([]float64, error) {
	if err := d.checkIndices(idx); err != nil {
		return nil, d.cfg.Metrics.observe(err)
	}
	rows, err := d.forces.float64s(idx)
	if err != nil {
		return nil, d.cfg.Metrics.observe(err)
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out, nil
}

// Augmentation returns how sample i was augmented.
func (d *Dataset) Augmentation(i int) (Augmentation, error) {
	a, err := d.Augmentations([]int{i})
	if err != nil {
		return Augmentation{}, err
	}
	return a[0], nil
}

// Augmentations returns the augmentations of the samples at idx.
func (d *Dataset) Augmentations(idx []int) ([]Augmentation, error) {
	if err := d.checkIndices(idx); err != nil {
		return nil, d.cfg.Metrics.observe(err)
	}
	rows, err := d.augs.float64s(idx)
	if err != nil {
		return nil, d.cfg.Metrics.observe(err)
	}
	out := make([]Augmentation, len(rows))
	for i, r := range rows {
		out[i] = AugmentationFromRaw([4]float64(r))
	}
	return out, nil
}

// Experiments returns the experiment names in id order.
func (d *Dataset) Experiments() []string {
	return slices.Clone(d.experiments)
}

// ExperimentBitmap returns the set of samples recorded in experiment name.
// The caller owns the returned bitmap.
func (d *Dataset) ExperimentBitmap(name string) (*roaring.Bitmap, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	d.indexOnce.Do(d.buildIndex)
	if d.indexErr != nil {
		return nil, d.indexErr
	}
	found := false
	b := roaring.New()
	for id, n := range d.experiments {
		if n != name {
			continue
		}
		found = true
		if s, ok := d.index[int64(id)]; ok {
			b.Or(s)
		}
	}
	if !found {
		return nil, d.cfg.Metrics.observe(&MetadataKeyError{Name: name})
	}
	return b, nil
}

// ExperimentSamples returns the indices of the samples recorded in
// experiment name, in ascending order.
func (d *Dataset) ExperimentSamples(name string) ([]int, error) {
	b, err := d.ExperimentBitmap(name)
	if err != nil {
		return nil, err
	}
	return Indices(b), nil
}

func (d *Dataset) buildIndex() {
	ids, err := d.expIDs.ds.ReadInt64()
	if err != nil {
		d.indexErr = err
		return
	}
	d.index = make(map[int64]*roaring.Bitmap)
	for i, id := range ids {
		b, ok := d.index[id]
		if !ok {
			b = roaring.New()
			d.index[id] = b
		}
		b.Add(uint32(i))
	}
}
