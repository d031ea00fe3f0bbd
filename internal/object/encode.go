package object

import (
	"github.com/dlr-wf/go-crackmnist/internal/binary"
	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Encode returns a version 2 object header holding msgs in a single chunk.
// The chunk size field counts the messages only; the checksum follows it.
func Encode(cfg binary.Config, msgs ...message.Encodable) []byte {
	chunk := binary.NewEncoder(cfg, 0)
	for _, m := range msgs {
		data := message.Encode(m, cfg)
		var flags uint8
		if m.Type() == message.TypeDatatype {
			flags = message.FlagConstant
		}
		chunk.PutUint8(uint8(m.Type()))
		chunk.PutUint16(uint16(len(data)))
		chunk.PutUint8(flags)
		chunk.PutBytes(data)
	}

	var sizeBits uint8
	switch n := chunk.Len(); {
	case n > 0xFFFF:
		sizeBits = 2
	case n > 0xFF:
		sizeBits = 1
	}
	e := binary.NewEncoder(cfg, 0)
	e.PutBytes(signatureV2)
	e.PutUint8(2)
	e.PutUint8(sizeBits)
	e.PutUintN(uint64(chunk.Len()), 1<<sizeBits)
	e.PutBytes(chunk.Bytes())
	e.PutChecksum(0)
	return e.Bytes()
}

// EncodeV1 returns a version 1 object header holding msgs. Each message
// body is zero-padded to a multiple of 8 bytes.
func EncodeV1(cfg binary.Config, msgs ...message.Encodable) []byte {
	body := binary.NewEncoder(cfg, 0)
	for _, m := range msgs {
		data := message.Encode(m, cfg)
		size := (len(data) + 7) &^ 7
		var flags uint8
		if m.Type() == message.TypeDatatype {
			flags = message.FlagConstant
		}
		body.PutUint16(uint16(m.Type()))
		body.PutUint16(uint16(size))
		body.PutUint8(flags)
		body.PutZeros(3)
		body.PutBytes(data)
		body.PutZeros(size - len(data))
	}

	e := binary.NewEncoder(cfg, 0)
	e.PutUint8(1)
	e.PutUint8(0)
	e.PutUint16(uint16(len(msgs)))
	e.PutUint32(1)
	e.PutUint32(uint32(body.Len()))
	e.PutZeros(4)
	e.PutBytes(body.Bytes())
	return e.Bytes()
}
