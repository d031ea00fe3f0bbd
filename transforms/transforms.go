// Package transforms provides stock crackmnist.Transform functions and
// channel statistics for CrackMNIST tensors. The first dimension of an
// image is its channel.
package transforms

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dlr-wf/go-crackmnist/crackmnist"
)

var ErrShape = errors.New("unsupported tensor shape")

// Compose applies ts from first to last.
func Compose(ts ...crackmnist.Transform) crackmnist.Transform {
	return func(in crackmnist.Tensor) (crackmnist.Tensor, error) {
		var err error
		for _, t := range ts {
			if in, err = t(in); err != nil {
				return crackmnist.Tensor{}, err
			}
		}
		return in, nil
	}
}

// Scale multiplies every element by f.
func Scale(f float64) crackmnist.Transform {
	return func(in crackmnist.Tensor) (crackmnist.Tensor, error) {
		x := toFloat64(in.Data)
		floats.Scale(f, x)
		return crackmnist.Tensor{Shape: append([]int(nil), in.Shape...), Data: toFloat32(x)}, nil
	}
}

// Normalize maps each channel c to (x - mean[c]) / std[c].
func Normalize(mean, std []float64) crackmnist.Transform {
	return func(in crackmnist.Tensor) (crackmnist.Tensor, error) {
		ch, err := channels(in)
		if err != nil {
			return crackmnist.Tensor{}, err
		}
		if len(ch) != len(mean) || len(ch) != len(std) {
			return crackmnist.Tensor{}, fmt.Errorf("%w: %d channels, %d means, %d deviations", ErrShape, len(ch), len(mean), len(std))
		}
		out := make([]float32, 0, len(in.Data))
		for c, x := range ch {
			if std[c] == 0 {
				return crackmnist.Tensor{}, fmt.Errorf("channel %d: zero standard deviation", c)
			}
			floats.AddConst(-mean[c], x)
			floats.Scale(1/std[c], x)
			out = append(out, toFloat32(x)...)
		}
		return crackmnist.Tensor{Shape: append([]int(nil), in.Shape...), Data: out}, nil
	}
}

// FlipVertical reverses the row order of every plane.
func FlipVertical(in crackmnist.Tensor) (crackmnist.Tensor, error) {
	return flip(in, true)
}

// FlipHorizontal reverses the column order of every plane.
func FlipHorizontal(in crackmnist.Tensor) (crackmnist.Tensor, error) {
	return flip(in, false)
}

func flip(in crackmnist.Tensor, vertical bool) (crackmnist.Tensor, error) {
	r := len(in.Shape)
	if r < 2 || in.Len() != len(in.Data) {
		return crackmnist.Tensor{}, fmt.Errorf("%w: %v", ErrShape, in.Shape)
	}
	h, w := in.Shape[r-2], in.Shape[r-1]
	out := in.Clone()
	if h*w == 0 {
		return out, nil
	}
	for p := 0; p < len(in.Data); p += h * w {
		for y := range h {
			for x := range w {
				sy, sx := y, x
				if vertical {
					sy = h - 1 - y
				} else {
					sx = w - 1 - x
				}
				out.Data[p+y*w+x] = in.Data[p+sy*w+sx]
			}
		}
	}
	return out, nil
}

// ChannelStats returns the mean and sample standard deviation of each
// channel over all tensors. Every tensor must have the same channel count.
func ChannelStats(ts []crackmnist.Tensor) (mean, std []float64, err error) {
	if len(ts) == 0 {
		return nil, nil, errors.New("no tensors")
	}
	var acc Accumulator
	if err := acc.Add(ts...); err != nil {
		return nil, nil, err
	}
	mean, std = acc.MeanStd()
	return mean, std, nil
}

// Accumulator collects per-channel statistics one tensor at a time, so a
// split can be summarized batch by batch. The zero value is ready to use.
type Accumulator struct {
	n    []float64
	mean []float64
	m2   []float64
	seen int
}

// Add folds ts into the running statistics. A tensor whose channel count
// differs from the first one added fails with ErrShape; the tensors
// before it stay added.
func (a *Accumulator) Add(ts ...crackmnist.Tensor) error {
	for _, t := range ts {
		ch, err := channels(t)
		if err != nil {
			return err
		}
		if a.n == nil {
			a.n = make([]float64, len(ch))
			a.mean = make([]float64, len(ch))
			a.m2 = make([]float64, len(ch))
		} else if len(ch) != len(a.n) {
			return fmt.Errorf("%w: tensor %d has %d channels, want %d", ErrShape, a.seen, len(ch), len(a.n))
		}
		for c, x := range ch {
			a.merge(c, x)
		}
		a.seen++
	}
	return nil
}

// merge combines channel c with the values x using the pairwise update
// of Chan et al. x is overwritten.
func (a *Accumulator) merge(c int, x []float64) {
	nb := float64(len(x))
	mb := floats.Sum(x) / nb
	floats.AddConst(-mb, x)
	m2b := floats.Dot(x, x)

	na := a.n[c]
	n := na + nb
	delta := mb - a.mean[c]
	a.mean[c] += delta * nb / n
	a.m2[c] += m2b + delta*delta*na*nb/n
	a.n[c] = n
}

// Count returns the number of tensors added.
func (a *Accumulator) Count() int { return a.seen }

// MeanStd returns the mean and sample standard deviation of each channel.
// Both are nil before the first Add.
func (a *Accumulator) MeanStd() (mean, std []float64) {
	if a.n == nil {
		return nil, nil
	}
	mean = append([]float64(nil), a.mean...)
	std = make([]float64, len(a.m2))
	for c, m2 := range a.m2 {
		std[c] = math.Sqrt(m2 / (a.n[c] - 1))
	}
	return mean, std
}

// channels splits t along its first dimension into float64 planes.
func channels(t crackmnist.Tensor) ([][]float64, error) {
	if len(t.Shape) < 1 || t.Shape[0] == 0 || t.Len() != len(t.Data) {
		return nil, fmt.Errorf("%w: %v", ErrShape, t.Shape)
	}
	n := len(t.Data) / t.Shape[0]
	out := make([][]float64, t.Shape[0])
	for c := range out {
		out[c] = toFloat64(t.Data[c*n : (c+1)*n])
	}
	return out, nil
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}
