// Package superblock locates and parses the HDF5 superblock, the fixed
// structure that tells a reader how wide addresses are and where the root
// group lives.
//
// Versions 0 and 1 describe the root group through a symbol table entry,
// whose scratch pad may cache the group's B-tree and local heap. Versions 2
// and 3 point straight at the root object header and protect the block with
// a lookup3 checksum.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/dlr-wf/go-crackmnist/internal/binary"
)

// Signature is the 8-byte HDF5 format signature.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// searchOffsets are the positions where a superblock may start. Anything
// before it is a user block.
var searchOffsets = []int64{0, 512, 1024, 2048, 4096, 8192}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrChecksum           = errors.New("superblock checksum mismatch")
)

// Superblock holds the fields of the file superblock that a reader needs.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8
	Flags      uint8

	// BaseAddress is the absolute position that file addresses are relative to.
	BaseAddress uint64
	// ExtensionAddress locates the superblock extension (v2/v3), or is undefined.
	ExtensionAddress uint64
	EOFAddress       uint64
	RootGroupAddress uint64

	// v0/v1 only: B-tree parameters and the root symbol table entry cache.
	GroupLeafNodeK     uint16
	GroupInternalNodeK uint16
	IndexedStorageK    uint16
	RootCacheType      uint32
	RootBTreeAddress   uint64
	RootHeapAddress    uint64

	// FileOffset is where the signature was found.
	FileOffset int64
}

// Read locates and parses the superblock.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, len(Signature)+1)
	for _, off := range searchOffsets {
		n, err := r.ReadAt(sig, off)
		if n < len(sig) {
			if err == nil || err == io.EOF {
				break
			}
			return nil, fmt.Errorf("reading signature at %d: %w", off, err)
		}
		if !bytes.Equal(sig[:8], Signature) {
			continue
		}

		var sb *Superblock
		switch version := sig[8]; version {
		case 0, 1:
			sb, err = readV0V1(r, off, version)
		case 2, 3:
			sb, err = readV2V3(r, off)
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
		}
		if err != nil {
			return nil, err
		}
		sb.FileOffset = off
		return sb, nil
	}
	return nil, ErrNotHDF5
}

// Config returns the sizing parameters for readers of this file. HDF5
// metadata is always little-endian.
func (sb *Superblock) Config() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

// block reads n bytes at off into a Decoder configured with the given sizes.
func block(r io.ReaderAt, off int64, n int, cfg binpkg.Config) (*binpkg.Decoder, error) {
	return binpkg.NewReader(r, cfg).At(off).Block(n)
}

//	v0: sig(8) ver free-space-ver root-entry-ver reserved shared-hdr-ver
//	    sizeof-offsets sizeof-lengths reserved leafK(2) internalK(2) flags(4)
//	v1: as v0 plus indexed-storage-K(2) reserved(2)
//	then: base, free-space, EOF, driver-info addresses and the root
//	symbol table entry (name offset, header address, cache type,
//	reserved, 16 byte scratch pad).
func readV0V1(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	head, err := block(r, off+8, 16, binpkg.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("reading superblock v%d: %w", version, err)
	}
	sb := &Superblock{Version: head.Uint8()}
	head.Skip(4)
	sb.OffsetSize = head.Uint8()
	sb.LengthSize = head.Uint8()
	head.Skip(1)
	sb.GroupLeafNodeK = head.Uint16()
	sb.GroupInternalNodeK = head.Uint16()
	sb.Flags = uint8(head.Uint32())

	cfg := sb.Config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pos := off + 24
	if version == 1 {
		k, err := block(r, pos, 4, cfg)
		if err != nil {
			return nil, err
		}
		sb.IndexedStorageK = k.Uint16()
		pos += 4
	}

	o := int(sb.OffsetSize)
	d, err := block(r, pos, 4*o+2*o+8+16, cfg)
	if err != nil {
		return nil, fmt.Errorf("reading superblock v%d addresses: %w", version, err)
	}
	sb.BaseAddress = d.Offset()
	d.Offset() // free-space info
	sb.EOFAddress = d.Offset()
	d.Offset() // driver info
	d.Offset() // root link name offset
	sb.RootGroupAddress = d.Offset()
	sb.RootCacheType = d.Uint32()
	d.Skip(4)
	if sb.RootCacheType == 1 {
		sb.RootBTreeAddress = d.Offset()
		sb.RootHeapAddress = d.Offset()
	}
	return sb, d.Err()
}

//	v2/v3: sig(8) ver sizeof-offsets sizeof-lengths flags base ext EOF root checksum(4)
func readV2V3(r io.ReaderAt, off int64) (*Superblock, error) {
	head, err := block(r, off+8, 4, binpkg.DefaultConfig())
	if err != nil {
		return nil, err
	}
	sb := &Superblock{
		Version:    head.Uint8(),
		OffsetSize: head.Uint8(),
		LengthSize: head.Uint8(),
		Flags:      head.Uint8(),
	}
	cfg := sb.Config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	size := sb.Size()
	d, err := block(r, off, size, cfg)
	if err != nil {
		return nil, fmt.Errorf("reading superblock v%d: %w", sb.Version, err)
	}
	raw := d.Bytes(size - 4)
	d.Seek(12)
	sb.BaseAddress = d.Offset()
	sb.ExtensionAddress = d.Offset()
	sb.EOFAddress = d.Offset()
	sb.RootGroupAddress = d.Offset()
	stored := d.Uint32()
	if err := d.Err(); err != nil {
		return nil, err
	}
	if got := binpkg.Lookup3Checksum(raw); got != stored {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, stored, got)
	}
	return sb, nil
}

// Size returns the encoded size of the superblock, including the root
// symbol table entry of versions 0 and 1.
func (sb *Superblock) Size() int {
	o := int(sb.OffsetSize)
	switch sb.Version {
	case 0:
		return 24 + 6*o + 24
	case 1:
		return 28 + 6*o + 24
	}
	return 12 + 4*o + 4
}

// NewV2 returns a version 2 superblock description with 8-byte addresses.
func NewV2() *Superblock {
	return &Superblock{
		Version:    2,
		OffsetSize: 8,
		LengthSize: 8,
	}
}

// NewV0 returns a version 0 superblock description with 8-byte addresses
// and the default group B-tree K values.
func NewV0() *Superblock {
	return &Superblock{
		OffsetSize:         8,
		LengthSize:         8,
		GroupLeafNodeK:     4,
		GroupInternalNodeK: 16,
	}
}

// Encode appends the superblock to e. Versions 0 and 2 are supported. The
// extension, free-space and driver addresses are written as undefined.
func (sb *Superblock) Encode(e *binpkg.Encoder) {
	if sb.Version == 0 {
		sb.encodeV0(e)
		return
	}
	start := e.Len()
	e.PutBytes(Signature)
	e.PutUint8(sb.Version)
	e.PutUint8(sb.OffsetSize)
	e.PutUint8(sb.LengthSize)
	e.PutUint8(sb.Flags)
	e.PutOffset(sb.BaseAddress)
	e.PutUndefined()
	e.PutOffset(sb.EOFAddress)
	e.PutOffset(sb.RootGroupAddress)
	e.PutChecksum(start)
}

func (sb *Superblock) encodeV0(e *binpkg.Encoder) {
	e.PutBytes(Signature)
	e.PutUint8(0)
	e.PutZeros(4) // free-space, root entry, reserved, shared header versions
	e.PutUint8(sb.OffsetSize)
	e.PutUint8(sb.LengthSize)
	e.PutUint8(0)
	e.PutUint16(sb.GroupLeafNodeK)
	e.PutUint16(sb.GroupInternalNodeK)
	e.PutUint32(uint32(sb.Flags))
	e.PutOffset(sb.BaseAddress)
	e.PutUndefined()
	e.PutOffset(sb.EOFAddress)
	e.PutUndefined()

	// root symbol table entry
	e.PutOffset(0)
	e.PutOffset(sb.RootGroupAddress)
	e.PutUint32(sb.RootCacheType)
	e.PutZeros(4)
	e.PutOffset(sb.RootBTreeAddress)
	e.PutOffset(sb.RootHeapAddress)
}
