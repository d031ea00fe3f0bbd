package filter

import (
	"errors"
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

var (
	ErrChecksum = errors.New("filter: checksum mismatch")
	ErrCorrupt  = errors.New("filter: corrupt chunk")
)

// Filter decodes one pipeline stage.
type Filter interface {
	ID() uint16
	Decode(input []byte) ([]byte, error)
}

// Encoder is a Filter that can also produce its encoded form.
type Encoder interface {
	Filter
	Encode(input []byte) ([]byte, error)
}

// Constructor builds a filter from its client data. elemSize is the
// datatype size of the dataset, used when the client data omits it.
type Constructor func(clientData []uint32, elemSize int) Filter

// Registry maps filter IDs to constructors.
var Registry = map[uint16]Constructor{
	message.FilterDeflate:    func(cd []uint32, _ int) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32, size int) Filter { return NewShuffle(cd, size) },
	message.FilterFletcher32: func(cd []uint32, _ int) Filter { return NewFletcher32() },
	message.FilterLZ4:        func(cd []uint32, _ int) Filter { return NewLZ4(cd) },
	message.FilterZstd:       func(cd []uint32, _ int) Filter { return NewZstd(cd) },
}

var filterNames = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
	message.FilterLZ4:         "lz4",
	message.FilterZstd:        "zstd",
}

// Name returns a readable name for a filter ID.
func Name(id uint16) string {
	if n, ok := filterNames[id]; ok {
		return n
	}
	return fmt.Sprintf("filter %d", id)
}

// New creates the filter described by info. It returns nil, nil for an
// optional filter that has no implementation.
func New(info message.FilterInfo, elemSize int) (Filter, error) {
	ctor, ok := Registry[info.ID]
	if !ok {
		if info.Optional() {
			return nil, nil
		}
		return nil, fmt.Errorf("%s (id %d): %w", Name(info.ID), info.ID, binary.ErrUnsupported)
	}
	return ctor(info.ClientData, elemSize), nil
}
