package binary

// Encoder appends sized HDF5 fields to an in-memory buffer. Positions are
// relative to the start of the buffer plus a base address, which lets a
// structure be built before its final file offset is known.
type Encoder struct {
	buf  []byte
	cfg  Config
	base uint64
}

// NewEncoder returns an empty Encoder whose first byte lives at base.
func NewEncoder(cfg Config, base uint64) *Encoder {
	return &Encoder{cfg: cfg, base: base}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// Addr returns the file address of the next byte to be written.
func (e *Encoder) Addr() uint64 { return e.base + uint64(len(e.buf)) }

// Config returns the sizing parameters.
func (e *Encoder) Config() Config { return e.cfg }

// PutBytes appends raw bytes.
func (e *Encoder) PutBytes(b []byte) { e.buf = append(e.buf, b...) }

// PutZeros appends n zero bytes.
func (e *Encoder) PutZeros(n int) {
	for ; n > 0; n-- {
		e.buf = append(e.buf, 0)
	}
}

// PutUint8 appends one byte.
func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

// PutUint16 appends a 2-byte integer.
func (e *Encoder) PutUint16(v uint16) {
	var b [2]byte
	e.cfg.ByteOrder.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutUint32 appends a 4-byte integer.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	e.cfg.ByteOrder.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutUint64 appends an 8-byte integer.
func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	e.cfg.ByteOrder.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutUintN appends an n-byte integer.
func (e *Encoder) PutUintN(v uint64, n int) {
	switch n {
	case 1:
		e.PutUint8(uint8(v))
	case 2:
		e.PutUint16(uint16(v))
	case 4:
		e.PutUint32(uint32(v))
	case 8:
		e.PutUint64(v)
	default:
		for i := 0; i < n; i++ {
			e.buf = append(e.buf, byte(v>>(8*i)))
		}
	}
}

// PutOffset appends a file address.
func (e *Encoder) PutOffset(v uint64) { e.PutUintN(v, e.cfg.OffsetSize) }

// PutUndefined appends the undefined address sentinel.
func (e *Encoder) PutUndefined() { e.PutOffset(e.cfg.Undefined()) }

// PutLength appends a length field.
func (e *Encoder) PutLength(v uint64) { e.PutUintN(v, e.cfg.LengthSize) }

// Pad appends zeros until the buffer length is a multiple of alignment.
func (e *Encoder) Pad(alignment int) {
	if alignment <= 1 {
		return
	}
	if rem := len(e.buf) % alignment; rem != 0 {
		e.PutZeros(alignment - rem)
	}
}

// Patch overwrites bytes at a position relative to the buffer start.
func (e *Encoder) Patch(pos int, b []byte) { copy(e.buf[pos:], b) }

// PutChecksum appends the lookup3 checksum of everything from pos onwards.
func (e *Encoder) PutChecksum(pos int) {
	e.PutUint32(Lookup3Checksum(e.buf[pos:]))
}
