package crackmnist

import "slices"

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Len returns the number of elements implied by the shape.
func (t Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Clone returns a deep copy of t.
func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// Transform maps one image or target to another. It is applied lazily, once
// per element read.
type Transform func(Tensor) (Tensor, error)

// Sample is one image with its target. For segmentation the target is the
// P×P mask; for regression it is (K_I, K_II, T).
type Sample struct {
	Image  Tensor
	Target Tensor
}

// Batch holds samples in the order they were requested.
type Batch struct {
	Images  []Tensor
	Targets []Tensor
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return len(b.Images) }

// Augmentation describes how a sample was derived from its source image.
type Augmentation struct {
	// Shift is the (x, y) offset in mm.
	Shift [2]float64 `json:"shift"`
	// Rotation is in degrees.
	Rotation     float64 `json:"rotation"`
	VerticalFlip bool    `json:"vertical_flip"`
}

// AugmentationFromRaw decodes a stored augmentation row.
func AugmentationFromRaw(raw [4]float64) Augmentation {
	return Augmentation{
		Shift:        [2]float64{raw[0], raw[1]},
		Rotation:     raw[2],
		VerticalFlip: raw[3] != 0,
	}
}
