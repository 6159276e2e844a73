package transfer

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutBodyFeederDrainsThenEOF(t *testing.T) {
	f := NewPutBodyFeeder([]byte("hello world"))
	assert.Equal(t, 11, f.Len())

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "hell", string(buf[:n]))

	all, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "o world", string(all))

	n, err = f.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPutBodyFeederResetRewindsCursor(t *testing.T) {
	f := NewPutBodyFeeder([]byte("payload"))
	first, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(first))

	f.Reset()
	second, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(second))
}

func TestPutBodyFeederEmptyPayload(t *testing.T) {
	f := NewPutBodyFeeder(nil)
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}
