package protocol

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("identify_response offset=%u data=%.*s")
	require.NoError(t, err)
	assert.Equal(t, "identify_response", f.Name)
	assert.Equal(t, []Param{{"offset", ParamUint}, {"data", ParamBuffer}}, f.Params)
	assert.Equal(t, "identify_response offset=%u data=%.*s", f.String())

	f, err = ParseFormat("get_clock")
	require.NoError(t, err)
	assert.Empty(t, f.Params)

	for _, bad := range []string{"", "x a", "x a=%q", "x =%u"} {
		_, err := ParseFormat(bad)
		assert.ErrorIs(t, err, ErrBadFormat, "%q", bad)
	}
	assert.Panics(t, func() { MustParseFormat("x a=%z") })
}

func TestFormatEncodeDecode(t *testing.T) {
	f := MustParseFormat("sample a=%u b=%i c=%c d=%hu e=%*s")

	payload, err := f.Encode(nil, 9, uint32(0xFFFFFFF0), -5, 300, 70000, "hi")
	require.NoError(t, err)

	id, err := ReadUint(&payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), id)

	vals, err := f.Decode(&payload)
	require.NoError(t, err)
	assert.Empty(t, payload)

	a, _ := vals.Uint("a")
	assert.Equal(t, uint32(0xFFFFFFF0), a)
	b, _ := vals.Int("b")
	assert.Equal(t, int32(-5), b)
	c, _ := vals.Uint("c")
	assert.Equal(t, uint32(300&0xFF), c)
	d, _ := vals.Uint("d")
	assert.Equal(t, uint32(70000&0xFFFF), d)
	e, _ := vals.Bytes("e")
	assert.Equal(t, []byte("hi"), e)

	_, err = vals.Uint("missing")
	assert.ErrorIs(t, err, ErrMissingArg)
}

func TestFormatEncodeErrors(t *testing.T) {
	f := MustParseFormat("x a=%u s=%*s")
	_, err := f.Encode(nil, 1, 1)
	assert.ErrorIs(t, err, ErrArgCount)
	_, err = f.Encode(nil, 1, "no", "s")
	assert.ErrorIs(t, err, ErrArgType)
	_, err = f.Encode(nil, 1, 1, 2)
	assert.ErrorIs(t, err, ErrArgType)
}

func TestFormatDecodeTruncated(t *testing.T) {
	f := MustParseFormat("x a=%u b=%u")
	data := AppendUint(nil, 1)
	_, err := f.Decode(&data)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDictionaryLookup(t *testing.T) {
	raw := []byte(`{"version":"v","config":{"CLOCK_FREQ":"1000000"},
		"commands":{"identify offset=%u count=%c":1,"get_clock":2},
		"responses":{"identify_response offset=%u data=%.*s":0,"clock clock=%u":3}}`)
	d, err := ParseDictionary(raw)
	require.NoError(t, err)

	id, f, err := d.Command("get_clock")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id)
	assert.Equal(t, "get_clock", f.Name)

	rf, err := d.Response(3)
	require.NoError(t, err)
	assert.Equal(t, "clock", rf.Name)

	_, _, err = d.Command("nope")
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = d.Response(99)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	hz, err := d.ConfigUint("CLOCK_FREQ")
	require.NoError(t, err)
	assert.Equal(t, uint32(1000000), hz)
	_, err = d.ConfigUint("TIMER_WIDTH")
	assert.Error(t, err)

	_, err = ParseDictionary([]byte(`{"commands":{"bad a=%q":1}}`))
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestDictionaryInflates(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"version":"z","commands":{"get_clock":4},"responses":{}}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	d, err := ParseDictionary(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "z", d.Version)
	id, _, err := d.Command("get_clock")
	require.NoError(t, err)
	assert.Equal(t, uint16(4), id)

	_, err = ParseDictionary([]byte{0x78, 0x9C, 0x00})
	assert.Error(t, err)
}
