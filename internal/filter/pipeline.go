package filter

import (
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/message"
)

type stage struct {
	// position in the pipeline message, which is the filter mask bit
	index  int
	filter Filter
}

// Pipeline decodes (and, for the writer, encodes) chunk data.
type Pipeline struct {
	stages []stage
}

// NewPipeline builds a pipeline from a filter pipeline message. A nil message
// gives an empty pipeline.
func NewPipeline(fp *message.FilterPipeline, elemSize int) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for i, info := range fp.Filters {
		f, err := New(info, elemSize)
		if err != nil {
			return nil, err
		}
		if f != nil {
			p.stages = append(p.stages, stage{index: i, filter: f})
		}
	}
	return p, nil
}

// Decode undoes the pipeline. Bit i of mask skips the filter at pipeline
// position i.
func (p *Pipeline) Decode(input []byte, mask uint32) ([]byte, error) {
	data := input
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if s.index < 32 && mask&(1<<uint(s.index)) != 0 {
			continue
		}
		var err error
		if data, err = s.filter.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", Name(s.filter.ID()), err)
		}
	}
	return data, nil
}

// Encode applies every stage in pipeline order.
func (p *Pipeline) Encode(input []byte) ([]byte, error) {
	data := input
	for _, s := range p.stages {
		enc, ok := s.filter.(Encoder)
		if !ok {
			return nil, fmt.Errorf("%s: encoding not implemented", Name(s.filter.ID()))
		}
		var err error
		if data, err = enc.Encode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", Name(s.filter.ID()), err)
		}
	}
	return data, nil
}

// Empty reports whether the pipeline has no stages.
func (p *Pipeline) Empty() bool { return len(p.stages) == 0 }

// Len returns the number of active stages.
func (p *Pipeline) Len() int { return len(p.stages) }
