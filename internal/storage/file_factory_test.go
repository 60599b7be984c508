package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FileFactory_LazyOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f := NewFileFactory(path, false)

	assert.False(t, f.Exists())

	_, err := f.Access()
	require.NoError(t, err)

	assert.True(t, f.Exists())
}

func Test_FileFactory_AccessReturnsSameHandle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f := NewFileFactory(path, false)

	h1, err := f.Access()
	require.NoError(t, err)
	h2, err := f.Access()
	require.NoError(t, err)

	assert.Same(t, h1, h2)
}

func Test_FileFactory_GetLengthWithoutOpening(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	require.NoError(t, os.WriteFile(path, make([]byte, PageSize), 0600))

	f := NewFileFactory(path, true)
	length, err := f.GetLength()
	require.NoError(t, err)
	assert.Equal(t, int64(PageSize), length)
}

func Test_FileFactory_GetLengthMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.db")
	f := NewFileFactory(path, false)

	length, err := f.GetLength()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func Test_FileFactory_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f := NewFileFactory(path, false)

	_, err := f.Access()
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}

func Test_FileFactory_Delete(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.db")
	f := NewFileFactory(path, false)

	_, err := f.Access()
	require.NoError(t, err)

	require.NoError(t, f.Delete())
	assert.False(t, f.Exists())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
