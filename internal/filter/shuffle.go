package filter

import "github.com/dlr-wf/go-crackmnist/internal/message"

// Shuffle groups byte k of every element together. Bytes past the last
// whole element are left in place.
type Shuffle struct {
	elemSize int
}

// NewShuffle takes the element size from client data[0], falling back to
// elemSize.
func NewShuffle(clientData []uint32, elemSize int) *Shuffle {
	if len(clientData) > 0 && clientData[0] > 0 {
		elemSize = int(clientData[0])
	}
	if elemSize < 1 {
		elemSize = 1
	}
	return &Shuffle{elemSize: elemSize}
}

func (f *Shuffle) ID() uint16 { return message.FilterShuffle }

func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	n := len(input) / f.elemSize
	if f.elemSize == 1 || n < 2 {
		return input, nil
	}
	out := make([]byte, len(input))
	for j := 0; j < f.elemSize; j++ {
		src := input[j*n : (j+1)*n]
		for i, b := range src {
			out[i*f.elemSize+j] = b
		}
	}
	copy(out[n*f.elemSize:], input[n*f.elemSize:])
	return out, nil
}

func (f *Shuffle) Encode(input []byte) ([]byte, error) {
	n := len(input) / f.elemSize
	if f.elemSize == 1 || n < 2 {
		return input, nil
	}
	out := make([]byte, len(input))
	for j := 0; j < f.elemSize; j++ {
		dst := out[j*n : (j+1)*n]
		for i := range dst {
			dst[i] = input[i*f.elemSize+j]
		}
	}
	copy(out[n*f.elemSize:], input[n*f.elemSize:])
	return out, nil
}
