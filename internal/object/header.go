// Package object reads HDF5 object headers and encodes the version 1 and 2
// headers used when writing a file.
//
// An object header is the metadata record of a group, dataset or committed
// datatype. It holds a list of header messages, possibly spread over several
// continuation blocks. Version 1 headers are found in files written with the
// default (oldest) format; version 2 headers carry an "OHDR" signature and a
// lookup3 checksum over every block.
package object

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

var (
	signatureV2           = []byte("OHDR")
	signatureContinuation = []byte("OCHK")
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksum           = errors.New("object header checksum mismatch")
)

const (
	maxBlocks      = 1 << 12
	maxSharedDepth = 4
)

// Header is a decoded object header.
type Header struct {
	Version  uint8
	Address  uint64
	Flags    uint8
	RefCount uint32
	Messages []message.Message
}

// Read decodes the object header at addr, following continuation blocks and
// resolving committed datatypes referenced by shared datatype messages.
func Read(r *binary.Reader, addr uint64) (*Header, error) {
	return read(r, addr, 0)
}

func read(r *binary.Reader, addr uint64, depth int) (*Header, error) {
	head, err := r.At(int64(addr)).Peek(4)
	if err != nil {
		return nil, fmt.Errorf("object header at 0x%x: %w", addr, err)
	}
	p := &parser{r: r, h: &Header{Address: addr}, seen: map[uint64]bool{}}
	switch {
	case bytes.Equal(head, signatureV2):
		err = p.readV2(addr)
	case head[0] == 1:
		err = p.readV1(addr)
	default:
		return nil, fmt.Errorf("%w: unknown format at 0x%x", ErrInvalidHeader, addr)
	}
	if err == nil {
		err = p.drain()
	}
	if err == nil {
		err = p.resolveShared(depth)
	}
	if err != nil {
		return nil, fmt.Errorf("object header at 0x%x: %w", addr, err)
	}
	return p.h, nil
}

type block struct {
	addr   uint64
	length uint64
}

type parser struct {
	r     *binary.Reader
	h     *Header
	queue []block
	seen  map[uint64]bool
}

func (p *parser) readV1(addr uint64) error {
	d, err := p.r.At(int64(addr)).Block(16)
	if err != nil {
		return err
	}
	p.h.Version = d.Uint8()
	d.Skip(1)
	d.Uint16() // message count, which includes NIL padding
	p.h.RefCount = d.Uint32()
	size := d.Uint32()
	if size == 0 {
		return nil
	}
	buf, err := p.r.At(int64(addr) + 16).ReadBytes(int(size))
	if err != nil {
		return err
	}
	return p.scanV1(buf)
}

func (p *parser) readV2(addr uint64) error {
	hr := p.r.At(int64(addr))
	prefix, err := hr.ReadBytes(6)
	if err != nil {
		return err
	}
	p.h.Version = prefix[4]
	p.h.Flags = prefix[5]
	if p.h.Version != 2 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.h.Version)
	}
	skip := 0
	if p.h.Flags&0x20 != 0 {
		skip += 16
	}
	if p.h.Flags&0x10 != 0 {
		skip += 4
	}
	width := 1 << (p.h.Flags & 0x03)
	rest, err := hr.ReadBytes(skip + width)
	if err != nil {
		return err
	}
	prefix = append(prefix, rest...)
	size := binary.DecodeUint(rest[skip:], p.r.ByteOrder())
	chunk, err := hr.ReadBytes(int(size))
	if err != nil {
		return err
	}
	sum, err := hr.ReadUint32()
	if err != nil {
		return err
	}
	if got := binary.Lookup3Checksum(append(prefix, chunk...)); got != sum {
		return fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, sum, got)
	}
	p.h.RefCount = 1
	return p.scanV2(chunk)
}

func (p *parser) scanV1(buf []byte) error {
	d := binary.NewDecoder(buf, p.r.Config())
	for d.Len() >= 8 {
		typ := message.Type(d.Uint16())
		size := int(d.Uint16())
		flags := d.Uint8()
		d.Skip(3)
		data := d.Bytes(size)
		if err := d.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		if err := p.add(typ, flags, data); err != nil {
			return err
		}
	}
	return nil
}

// scanV2 walks the messages of one chunk. Fewer trailing bytes than a
// message header form a gap and are ignored.
func (p *parser) scanV2(buf []byte) error {
	hdrLen := 4
	if p.h.Flags&0x04 != 0 {
		hdrLen = 6
	}
	d := binary.NewDecoder(buf, p.r.Config())
	for d.Len() >= hdrLen {
		typ := message.Type(d.Uint8())
		size := int(d.Uint16())
		flags := d.Uint8()
		if hdrLen == 6 {
			d.Skip(2)
		}
		data := d.Bytes(size)
		if err := d.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
		}
		if err := p.add(typ, flags, data); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) add(typ message.Type, flags uint8, data []byte) error {
	if typ == message.TypeNIL {
		return nil
	}
	m, err := message.Parse(typ, data, flags, p.r.Config())
	if err != nil {
		return err
	}
	if c, ok := m.(*message.Continuation); ok {
		if p.seen[c.Address] {
			return fmt.Errorf("%w: continuation loop at 0x%x", ErrInvalidHeader, c.Address)
		}
		p.seen[c.Address] = true
		p.queue = append(p.queue, block{addr: c.Address, length: c.Length})
		return nil
	}
	p.h.Messages = append(p.h.Messages, m)
	return nil
}

func (p *parser) drain() error {
	for n := 0; len(p.queue) > 0; n++ {
		if n >= maxBlocks {
			return fmt.Errorf("%w: too many continuation blocks", ErrInvalidHeader)
		}
		b := p.queue[0]
		p.queue = p.queue[1:]
		buf, err := p.r.At(int64(b.addr)).ReadBytes(int(b.length))
		if err != nil {
			return err
		}
		if p.h.Version == 1 {
			err = p.scanV1(buf)
		} else {
			err = p.scanContinuation(b.addr, buf)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) scanContinuation(addr uint64, buf []byte) error {
	if len(buf) < 8 || !bytes.Equal(buf[:4], signatureContinuation) {
		return fmt.Errorf("%w: missing OCHK signature at 0x%x", ErrInvalidHeader, addr)
	}
	body := buf[:len(buf)-4]
	sum := p.r.ByteOrder().Uint32(buf[len(buf)-4:])
	if got := binary.Lookup3Checksum(body); got != sum {
		return fmt.Errorf("%w: continuation at 0x%x", ErrChecksum, addr)
	}
	return p.scanV2(body[4:])
}

func (p *parser) resolveShared(depth int) error {
	for i, m := range p.h.Messages {
		s, ok := m.(*message.Shared)
		if !ok || s.MsgType != message.TypeDatatype {
			continue
		}
		if s.InHeap {
			return fmt.Errorf("%w: datatype in shared message heap", binary.ErrUnsupported)
		}
		if depth >= maxSharedDepth {
			return fmt.Errorf("%w: shared datatype chain too deep", ErrInvalidHeader)
		}
		committed, err := read(p.r, s.Address, depth+1)
		if err != nil {
			return fmt.Errorf("committed datatype: %w", err)
		}
		dt := committed.Datatype()
		if dt == nil {
			return fmt.Errorf("%w: object at 0x%x is not a datatype", ErrInvalidHeader, s.Address)
		}
		p.h.Messages[i] = dt
	}
	return nil
}
