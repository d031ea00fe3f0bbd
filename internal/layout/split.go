package layout

// Chunk is one chunk of an array being written, padded to the full chunk
// size.
type Chunk struct {
	Offset []uint64
	Data   []byte
}

// Split cuts a row-major array into chunks in row-major chunk order. Edge
// chunks are zero padded.
func Split(data []byte, dims, chunk []uint64, elem uint64) []Chunk {
	if len(dims) == 0 {
		return nil
	}
	nominal := elem
	total := uint64(1)
	grid := make([]uint64, len(dims))
	for i, d := range dims {
		nominal *= chunk[i]
		grid[i] = (d + chunk[i] - 1) / chunk[i]
		total *= grid[i]
	}
	out := make([]Chunk, 0, total)
	for i := uint64(0); i < total; i++ {
		off := make([]uint64, len(dims))
		rem := i
		for k := len(dims) - 1; k >= 0; k-- {
			off[k] = rem % grid[k] * chunk[k]
			rem /= grid[k]
		}
		buf := make([]byte, nominal)
		_ = runs(dims, 0, dims[0], off, chunk, elem, func(arrOff, chOff, n uint64) error {
			copy(buf[chOff:chOff+n], data[arrOff:arrOff+n])
			return nil
		})
		out = append(out, Chunk{Offset: off, Data: buf})
	}
	return out
}
