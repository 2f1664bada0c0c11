package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
)

var (
	ErrClosed     = errors.New("protocol: connection closed")
	ErrAckTimeout = errors.New("protocol: no acknowledgement")
)

const (
	DefaultAckTimeout = time.Second
	defaultRetries    = 3
	frameQueue        = 16
)

// Conn is the host end of a link. Send numbers each frame and waits until
// the device acknowledges it; Receive returns message payloads the device
// sent on its own.
type Conn struct {
	rw         io.ReadWriteCloser
	log        logging.LeveledLogger
	ackTimeout time.Duration

	sendMu sync.Mutex
	seq    uint8

	acks   chan uint8
	frames chan []byte

	done    chan struct{}
	readErr error
}

type ConnOption func(*Conn)

func WithConnLoggerFactory(f logging.LoggerFactory) ConnOption {
	return func(c *Conn) { c.log = f.NewLogger("link") }
}

func WithAckTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.ackTimeout = d }
}

// NewConn starts reading from rw.
func NewConn(rw io.ReadWriteCloser, opts ...ConnOption) *Conn {
	c := &Conn{
		rw:         rw,
		ackTimeout: DefaultAckTimeout,
		seq:        SeqDest,
		acks:       make(chan uint8, 1),
		frames:     make(chan []byte, frameQueue),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logging.NewDefaultLoggerFactory().NewLogger("link")
	}
	go c.readLoop()
	return c
}

// Send transmits payload in one frame and waits for the device to
// acknowledge it. A negative acknowledgement resends the frame.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	frame, err := AppendFrame(nil, c.seq, payload)
	if err != nil {
		return err
	}
	want := NextSeq(c.seq)
	select {
	case <-c.acks:
	default:
	}

	for try := 0; try < defaultRetries; try++ {
		if _, err := c.rw.Write(frame); err != nil {
			return fmt.Errorf("protocol: write frame: %w", err)
		}
		got, err := c.waitAck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// the frame went out; assume the device took it so the
				// next frame is not mistaken for a duplicate
				c.seq = want
			}
			return err
		}
		if got == want {
			c.seq = want
			return nil
		}
		c.log.Debugf("nak seq=%#02x want %#02x, resending", got, want)
	}
	return fmt.Errorf("%w: seq %#02x after %d tries", ErrAckTimeout, c.seq, defaultRetries)
}

func (c *Conn) waitAck(ctx context.Context) (uint8, error) {
	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case seq := <-c.acks:
		return seq, nil
	case <-timer.C:
		return 0, fmt.Errorf("%w after %v", ErrAckTimeout, c.ackTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.done:
		return 0, c.closedErr()
	}
}

// Receive returns the payload of the next non-empty frame.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.frames:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		// frames that arrived before the link went down are still served
		select {
		case p := <-c.frames:
			return p, nil
		default:
		}
		return nil, c.closedErr()
	}
}

// Reset restarts sequence numbering, which the device takes as a host
// restart.
func (c *Conn) Reset() {
	c.sendMu.Lock()
	c.seq = SeqDest
	c.sendMu.Unlock()
}

func (c *Conn) Close() error {
	err := c.rw.Close()
	<-c.done
	return err
}

func (c *Conn) closedErr() error {
	if c.readErr != nil && !errors.Is(c.readErr, io.EOF) && !errors.Is(c.readErr, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

func (c *Conn) readLoop() {
	defer close(c.done)

	var dec Decoder
	dec.OnResync = func() { c.log.Debug("link resynchronized") }
	buf := make([]byte, 256)
	for {
		n, err := c.rw.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
			for {
				f, ok := dec.Next()
				if !ok {
					break
				}
				c.dispatch(f)
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *Conn) dispatch(f Frame) {
	if f.IsAck() {
		select {
		case c.acks <- f.Seq:
		default:
			// a stale ack nobody waits for is replaced
			select {
			case <-c.acks:
			default:
			}
			c.acks <- f.Seq
		}
		return
	}
	p := append([]byte(nil), f.Payload...)
	select {
	case c.frames <- p:
	default:
		c.log.Warnf("receive queue full, dropping %d byte frame", len(p))
	}
}
