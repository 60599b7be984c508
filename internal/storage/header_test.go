package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_InvalidStateRoundTrip(t *testing.T) {
	t.Parallel()

	page0 := make([]byte, PageSize)
	assert.False(t, IsInvalidState(page0))

	SetInvalidState(page0)
	assert.True(t, IsInvalidState(page0))

	ClearInvalidState(page0)
	assert.False(t, IsInvalidState(page0))
}

func Test_CollationPragmaRoundTrip(t *testing.T) {
	t.Parallel()

	page0 := make([]byte, PageSize)
	WriteCollationPragma(page0, 42)
	assert.Equal(t, uint8(42), ReadCollationPragma(page0))
}

func Test_InvalidStateLeavesCollationUntouched(t *testing.T) {
	t.Parallel()

	page0 := make([]byte, PageSize)
	WriteCollationPragma(page0, 7)
	SetInvalidState(page0)

	assert.True(t, IsInvalidState(page0))
	assert.Equal(t, uint8(7), ReadCollationPragma(page0))
}
