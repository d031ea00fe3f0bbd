package mmap

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 10, f.Len())

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(buf[:n]))

	n, err = f.ReadAt(buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = f.ReadAt(buf, 10)
	assert.ErrorIs(t, err, io.EOF)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(off int64) {
			defer wg.Done()
			b := make([]byte, 1)
			if _, err := f.ReadAt(b, off); err != nil || b[0] != byte('0'+off) {
				t.Errorf("ReadAt(%d) = %q, %v", off, b, err)
			}
		}(int64(i))
	}
	wg.Wait()

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	_, err = f.ReadAt(buf, 0)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestEmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	f, err := Open(path)
	require.NoError(t, err)
	_, err = f.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, f.Close())

	_, err = Open(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}
