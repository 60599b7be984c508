package storage

import (
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_openOSFile_CreatesWritableFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")

	f, err := openOSFile(path, false)
	require.NoError(t, err)
	defer f.Close()

	length, err := f.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func Test_openOSFile_ReadOnlyMissingFileFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := openOSFile(path, true)
	assert.Error(t, err)
}

func Test_osFile_WriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f, err := openOSFile(path, false)
	require.NoError(t, err)
	defer f.Close()

	payload := []byte(gofakeit.LetterN(PageSize))

	n, err := f.WriteAt(payload, PageSize)
	require.NoError(t, err)
	assert.Equal(t, PageSize, n)
	require.NoError(t, f.Flush())

	length, err := f.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(2*PageSize), length)

	out := make([]byte, PageSize)
	n, err = f.ReadAt(out, PageSize)
	require.NoError(t, err)
	assert.Equal(t, PageSize, n)
	assert.Equal(t, payload, out)
}

func Test_osFile_SetLength(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f, err := openOSFile(path, false)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.SetLength(3*PageSize))

	length, err := f.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(3*PageSize), length)

	require.NoError(t, f.SetLength(PageSize))
	length, err = f.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(PageSize), length)
}

func Test_osFile_VectoredReadWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f, err := openOSFile(path, false)
	require.NoError(t, err)
	defer f.Close()

	bufs := [][]byte{
		[]byte(gofakeit.LetterN(PageSize)),
		[]byte(gofakeit.LetterN(PageSize)),
		[]byte(gofakeit.LetterN(PageSize)),
	}

	require.NoError(t, f.WriteVectored(bufs, 0))
	require.NoError(t, f.Flush())

	out := [][]byte{make([]byte, PageSize), make([]byte, PageSize), make([]byte, PageSize)}
	require.NoError(t, f.ReadVectored(out, 0))

	for i := range bufs {
		assert.Equal(t, bufs[i], out[i])
	}
}
