package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, seq uint8, payload ...byte) []byte {
	t.Helper()
	f, err := AppendFrame(nil, seq, payload)
	require.NoError(t, err)
	return f
}

func TestFrameLayout(t *testing.T) {
	f := frame(t, 0x11, 0x05, 0x06)
	require.Len(t, f, 7)
	assert.Equal(t, uint8(7), f[0])
	assert.Equal(t, uint8(0x11), f[1])
	assert.Equal(t, []byte{0x05, 0x06}, f[2:4])
	crc := CRC16(f[:4])
	assert.Equal(t, []byte{uint8(crc >> 8), uint8(crc), SyncByte}, f[4:])

	ack := AppendAck(nil, 0x12)
	assert.Len(t, ack, FrameMin)
}

func TestFrameTooLong(t *testing.T) {
	_, err := AppendFrame(nil, SeqDest, make([]byte, PayloadMax+1))
	assert.ErrorIs(t, err, ErrFrameTooLong)
	_, err = AppendFrame(nil, SeqDest, make([]byte, PayloadMax))
	assert.NoError(t, err)
}

func TestNextSeqWraps(t *testing.T) {
	assert.Equal(t, uint8(0x11), NextSeq(0x10))
	assert.Equal(t, uint8(0x10), NextSeq(0x1F))
	assert.Equal(t, uint8(0x10), NextSeq(0x0F))
}

func TestDecoderSplitsStream(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(t, 0x10, 1, 2, 3)...)
	stream = append(stream, frame(t, 0x11)...)
	stream = append(stream, frame(t, 0x12, 9)...)

	var d Decoder
	var got []Frame
	// byte at a time exercises partial frames
	for _, b := range stream {
		d.Write([]byte{b})
		for {
			f, ok := d.Next()
			if !ok {
				break
			}
			f.Payload = append([]byte(nil), f.Payload...)
			got = append(got, f)
		}
	}
	require.Len(t, got, 3)
	assert.Equal(t, Frame{Seq: 0x10, Payload: []byte{1, 2, 3}}, got[0])
	assert.True(t, got[1].IsAck())
	assert.Equal(t, uint8(0x12), got[2].Seq)
	assert.Zero(t, d.Buffered())
	assert.Zero(t, d.Dropped())
}

func TestDecoderResyncsAfterCorruption(t *testing.T) {
	bad := frame(t, 0x10, 1, 2, 3)
	bad[3] ^= 0xFF

	var d Decoder
	resyncs := 0
	d.OnResync = func() { resyncs++ }

	d.Write([]byte{0x00, 0x42})
	d.Write(bad)
	d.Write(frame(t, 0x11, 4))

	f, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, uint8(0x11), f.Seq)
	assert.Equal(t, []byte{4}, f.Payload)
	assert.GreaterOrEqual(t, d.Dropped(), 1)
	assert.GreaterOrEqual(t, resyncs, 1)

	_, ok = d.Next()
	assert.False(t, ok)
}

func TestDecoderRequireDest(t *testing.T) {
	d := Decoder{RequireDest: true}
	d.Write(frame(t, 0x01, 7))
	d.Write(frame(t, 0x13, 8))

	f, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, uint8(0x13), f.Seq)
	assert.Equal(t, 1, d.Dropped())
}

func TestDecoderSkipsLeadingSyncBytes(t *testing.T) {
	var d Decoder
	d.Write([]byte{SyncByte, SyncByte})
	d.Write(frame(t, 0x10, 5))
	f, ok := d.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{5}, f.Payload)
	assert.Zero(t, d.Dropped())
}
