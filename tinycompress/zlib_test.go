package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.NoError(t, zr.Close())
	return out
}

func TestAppendReadableByZlib(t *testing.T) {
	for _, n := range []int{0, 1, 100, maxStored, maxStored + 1, 3*maxStored + 7} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		enc := Append([]byte{0xAA}, data)
		assert.Equal(t, byte(0xAA), enc[0], "dst prefix kept")
		assert.Equal(t, data, inflate(t, enc[1:]), "size %d", n)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.Write([]byte(`{"version":`))
	require.NoError(t, err)
	_, err = w.Write([]byte(`"x"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, `{"version":"x"}`, string(inflate(t, buf.Bytes())))
}
