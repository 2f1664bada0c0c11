package protocol

// Frame is one validated frame. Payload aliases the decoder's buffer and is
// only valid until the next call to Write.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no messages.
func (f Frame) IsAck() bool { return len(f.Payload) == 0 }

// Decoder splits a byte stream into frames. After a bad length, sequence,
// trailer or checksum it drops input up to the next sync byte.
type Decoder struct {
	// RequireDest rejects frames whose sequence byte lacks SeqDest, as the
	// device does for host traffic.
	RequireDest bool
	// OnResync is called each time the decoder finds a sync byte after
	// losing framing.
	OnResync func()

	buf      []byte
	off      int
	desynced bool
	dropped  int
}

// Write queues raw input.
func (d *Decoder) Write(p []byte) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off > len(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Dropped returns the number of frames discarded as invalid.
func (d *Decoder) Dropped() int { return d.dropped }

// Buffered returns the number of bytes not consumed yet.
func (d *Decoder) Buffered() int { return len(d.buf) - d.off }

// Next returns the next complete frame, or false when more input is needed.
func (d *Decoder) Next() (Frame, bool) {
	for {
		data := d.buf[d.off:]
		if d.desynced {
			i := indexSync(data)
			if i < 0 {
				d.off = len(d.buf)
				return Frame{}, false
			}
			d.off += i + 1
			d.desynced = false
			if d.OnResync != nil {
				d.OnResync()
			}
			continue
		}
		if len(data) > 0 && data[0] == SyncByte {
			d.off++
			continue
		}
		if len(data) < FrameMin {
			return Frame{}, false
		}

		n := int(data[posLen])
		seq := data[posSeq]
		if n < FrameMin || n > FrameMax || (d.RequireDest && seq&^SeqMask != SeqDest) {
			d.lose()
			continue
		}
		if len(data) < n {
			return Frame{}, false
		}
		if data[n-1] != SyncByte {
			d.lose()
			continue
		}
		crc := uint16(data[n-3])<<8 | uint16(data[n-2])
		if crc != CRC16(data[:n-FrameTrailer]) {
			d.lose()
			continue
		}
		d.off += n
		return Frame{Seq: seq, Payload: data[FrameHeader : n-FrameTrailer]}, true
	}
}

func (d *Decoder) lose() {
	d.desynced = true
	d.dropped++
}

func indexSync(b []byte) int {
	for i, c := range b {
		if c == SyncByte {
			return i
		}
	}
	return -1
}
