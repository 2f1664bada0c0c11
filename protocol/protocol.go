// Package protocol implements the framed link between a device exposing its
// timer subsystem and a host.
//
// A frame is laid out as
//
//	len | seq | payload ... | crc hi | crc lo | 0x7e
//
// where len counts the whole frame and the crc covers len, seq and the
// payload. A payload is a sequence of messages, each a VLQ command id
// followed by its VLQ encoded arguments. A frame with an empty payload is an
// acknowledgement carrying the next sequence number the receiver expects.
package protocol

import (
	"errors"
	"fmt"
)

// Version of the protocol dictionary layout
const Version = "tickos-1"

// Framing constants
const (
	FrameHeader  = 2
	FrameTrailer = 3
	FrameMin     = FrameHeader + FrameTrailer
	FrameMax     = 64
	PayloadMax   = FrameMax - FrameMin

	SyncByte = 0x7E
	SeqDest  = 0x10
	SeqMask  = 0x0F

	posLen = 0
	posSeq = 1
)

var ErrFrameTooLong = errors.New("protocol: frame too long")

// NextSeq returns the sequence number following seq.
func NextSeq(seq uint8) uint8 {
	return (seq+1)&SeqMask | SeqDest
}

// AppendFrame appends a complete frame carrying payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := FrameMin + len(payload)
	if n > FrameMax {
		return dst, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, n, FrameMax)
	}
	start := len(dst)
	dst = append(dst, uint8(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// AppendAck appends an empty frame acknowledging everything before seq.
func AppendAck(dst []byte, seq uint8) []byte {
	dst, _ = AppendFrame(dst, seq, nil)
	return dst
}
