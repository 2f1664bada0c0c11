// Package tinycompress writes zlib streams made of stored (uncompressed)
// deflate blocks. It needs no tables or window, which suits firmware that
// only has to produce data any zlib reader accepts.
package tinycompress

import (
	"hash/adler32"
	"io"
)

const maxStored = 0xFFFF

// Append appends the zlib encoding of data to dst.
func Append(dst, data []byte) []byte {
	sum := adler32.Checksum(data)
	dst = append(dst, 0x78, 0x9C)
	for first := true; first || len(data) > 0; first = false {
		n := min(len(data), maxStored)
		final := byte(0)
		if n == len(data) {
			final = 1
		}
		l := uint16(n)
		dst = append(dst, final, byte(l), byte(l>>8), byte(^l), byte(^l>>8))
		dst = append(dst, data[:n]...)
		data = data[n:]
	}
	return append(dst, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// Writer buffers everything written and emits the stream on Close.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (z *Writer) Write(p []byte) (int, error) {
	z.buf = append(z.buf, p...)
	return len(p), nil
}

func (z *Writer) Close() error {
	_, err := z.w.Write(Append(make([]byte, 0, len(z.buf)+16), z.buf))
	return err
}
