package filter

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dlr-wf/go-crackmnist/internal/message"
)

// Decoder and encoder are safe for concurrent DecodeAll/EncodeAll calls.
var (
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
	zstdEncoders sync.Map // level -> *zstd.Encoder
)

// Zstd is the registered Zstandard plugin filter. Each chunk is one frame.
type Zstd struct {
	level int
}

// NewZstd reads the compression level from client data[0].
func NewZstd(clientData []uint32) *Zstd {
	level := 3
	if len(clientData) > 0 && clientData[0] > 0 {
		level = int(clientData[0])
	}
	return &Zstd{level: level}
}

func (f *Zstd) ID() uint16 { return message.FilterZstd }

func (f *Zstd) Decode(input []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(input, nil)
}

func (f *Zstd) Encode(input []byte) ([]byte, error) {
	v, ok := zstdEncoders.Load(f.level)
	if !ok {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(f.level)))
		if err != nil {
			return nil, err
		}
		v, _ = zstdEncoders.LoadOrStore(f.level, enc)
	}
	return v.(*zstd.Encoder).EncodeAll(input, nil), nil
}
