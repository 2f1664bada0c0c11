package device

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"

	"tickos/protocol"
)

// Endpoint serves a registry on one link. Every valid frame is answered
// with an acknowledgement carrying the next expected sequence number, even
// when the frame was a duplicate.
type Endpoint struct {
	reg     *Registry
	log     logging.LeveledLogger
	onReset func()

	next uint8
	resp Responder
	out  []byte
}

type EndpointOption func(*Endpoint)

func WithLoggerFactory(f logging.LoggerFactory) EndpointOption {
	return func(e *Endpoint) { e.log = f.NewLogger("device") }
}

// WithResetHandler installs a callback run when the host restarts its
// sequence numbering.
func WithResetHandler(fn func()) EndpointOption {
	return func(e *Endpoint) { e.onReset = fn }
}

func NewEndpoint(reg *Registry, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		reg:  reg,
		next: protocol.SeqDest,
		resp: Responder{reg: reg},
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = logging.NewDefaultLoggerFactory().NewLogger("device")
	}
	return e
}

// Serve handles frames from rw until the link closes or ctx is done. A
// closed link is not an error.
func (e *Endpoint) Serve(ctx context.Context, rw io.ReadWriter) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.readLoop(rw) })
	g.Go(func() error {
		<-gctx.Done()
		if c, ok := rw.(io.Closer); ok {
			_ = c.Close()
		}
		return nil
	})
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func (e *Endpoint) readLoop(rw io.ReadWriter) error {
	var werr error
	dec := protocol.Decoder{RequireDest: true}
	dec.OnResync = func() {
		e.log.Debug("resynchronized")
		if werr == nil {
			werr = e.writeAck(rw)
		}
	}
	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
			for werr == nil {
				f, ok := dec.Next()
				if !ok {
					break
				}
				werr = e.Receive(rw, f)
			}
			if werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

// Receive handles one decoded frame and writes the acknowledgement and any
// responses to w.
func (e *Endpoint) Receive(w io.Writer, f protocol.Frame) error {
	if f.Seq == protocol.SeqDest && e.next != protocol.SeqDest {
		e.log.Infof("host restarted sequence (expected %#02x)", e.next)
		e.next = protocol.SeqDest
		if e.onReset != nil {
			e.onReset()
		}
	}
	e.resp.reset()
	if f.Seq == e.next {
		e.next = protocol.NextSeq(f.Seq)
		e.dispatch(f.Payload)
	} else {
		e.log.Debugf("out of order seq %#02x, expected %#02x", f.Seq, e.next)
	}

	e.out = protocol.AppendAck(e.out[:0], e.next)
	for _, p := range e.resp.payloads {
		var err error
		if e.out, err = protocol.AppendFrame(e.out, e.next, p); err != nil {
			return err
		}
	}
	if _, err := w.Write(e.out); err != nil {
		return fmt.Errorf("device: write: %w", err)
	}
	return nil
}

func (e *Endpoint) writeAck(w io.Writer) error {
	e.out = protocol.AppendAck(e.out[:0], e.next)
	_, err := w.Write(e.out)
	return err
}

func (e *Endpoint) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("command handler panicked: %v", r)
		}
	}()
	for len(payload) > 0 {
		id, err := protocol.ReadUint(&payload)
		if err != nil {
			e.log.Warnf("malformed command id: %v", err)
			return
		}
		c, ok := e.reg.Lookup(uint16(id))
		if !ok || c.IsResponse() {
			// the argument layout is unknown so the rest of the frame is lost
			e.log.Warnf("%v: id %d", ErrUnknownCommand, id)
			return
		}
		args, err := c.Format.Decode(&payload)
		if err != nil {
			e.log.Warnf("decode %s: %v", c.Name(), err)
			return
		}
		if err := c.Handler(&e.resp, args); err != nil {
			e.log.Warnf("%s: %v", c.Name(), err)
		}
	}
}
