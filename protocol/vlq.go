package protocol

import "errors"

var (
	ErrShortBuffer = errors.New("protocol: truncated VLQ")
	ErrShortBytes  = errors.New("protocol: byte string exceeds payload")
)

// AppendInt appends v in the variable length encoding: seven bits per byte,
// most significant first, with 0x80 marking a continuation. The leading byte
// also carries the sign so small negative numbers stay one byte long.
func AppendInt(dst []byte, v int32) []byte {
	if v < -(1<<26) || v >= 3<<26 {
		dst = append(dst, byte(v>>28)&0x7F|0x80)
	}
	if v < -(1<<19) || v >= 3<<19 {
		dst = append(dst, byte(v>>21)&0x7F|0x80)
	}
	if v < -(1<<12) || v >= 3<<12 {
		dst = append(dst, byte(v>>14)&0x7F|0x80)
	}
	if v < -(1<<5) || v >= 3<<5 {
		dst = append(dst, byte(v>>7)&0x7F|0x80)
	}
	return append(dst, byte(v)&0x7F)
}

func AppendUint(dst []byte, v uint32) []byte {
	return AppendInt(dst, int32(v))
}

// AppendBytes appends a length prefixed byte string.
func AppendBytes(dst []byte, b []byte) []byte {
	dst = AppendUint(dst, uint32(len(b)))
	return append(dst, b...)
}

func AppendString(dst []byte, s string) []byte {
	dst = AppendUint(dst, uint32(len(s)))
	return append(dst, s...)
}

// ReadInt decodes one value from the front of *data and advances it.
func ReadInt(data *[]byte) (int32, error) {
	b := *data
	if len(b) == 0 {
		return 0, ErrShortBuffer
	}
	c := uint32(b[0])
	b = b[1:]
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(b) == 0 {
			return 0, ErrShortBuffer
		}
		c = uint32(b[0])
		b = b[1:]
		v = v<<7 | c&0x7F
	}
	*data = b
	return int32(v), nil
}

func ReadUint(data *[]byte) (uint32, error) {
	v, err := ReadInt(data)
	return uint32(v), err
}

// ReadBytes decodes a length prefixed byte string. The result aliases data.
func ReadBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := ReadUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, ErrShortBytes
	}
	*data = rest[n:]
	return rest[:n:n], nil
}

func ReadString(data *[]byte) (string, error) {
	b, err := ReadBytes(data)
	return string(b), err
}
