// Package mcu is the host side client of a device's timer subsystem.
package mcu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"

	"tickos/host/serial"
	"tickos/protocol"
)

const (
	identifyChunk = 40
	// identify and its response have fixed ids so the dictionary can be
	// fetched before it is known.
	identifyID         = 1
	identifyResponseID = 0

	DefaultTimeout = 2 * time.Second
)

var (
	ErrNoDictionary = errors.New("mcu: dictionary not loaded")
	ErrBadResponse  = errors.New("mcu: unexpected response")
)

var (
	identifyFormat         = protocol.MustParseFormat("identify offset=%u count=%c")
	identifyResponseFormat = protocol.MustParseFormat("identify_response offset=%u data=%.*s")
)

// Client talks to one device.
type Client struct {
	conn    *protocol.Conn
	log     logging.LeveledLogger
	factory logging.LoggerFactory
	timeout time.Duration

	dict *protocol.Dictionary
	raw  []byte
}

type Option func(*Client)

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *Client) { c.factory = f }
}

// WithTimeout bounds each request and response exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Connect wraps an open link and downloads the device dictionary.
func Connect(ctx context.Context, rw io.ReadWriteCloser, opts ...Option) (*Client, error) {
	c := &Client{timeout: DefaultTimeout}
	for _, o := range opts {
		o(c)
	}
	if c.factory == nil {
		c.factory = logging.NewDefaultLoggerFactory()
	}
	c.log = c.factory.NewLogger("host")
	c.conn = protocol.NewConn(rw, protocol.WithConnLoggerFactory(c.factory), protocol.WithAckTimeout(c.timeout))

	if err := c.RetrieveDictionary(ctx); err != nil {
		_ = c.conn.Close()
		return nil, err
	}
	return c, nil
}

// Open connects to a device on a serial port.
func Open(ctx context.Context, cfg *serial.Config, opts ...Option) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, port, opts...)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// RetrieveDictionary fetches the dictionary in identify sized chunks until a
// short chunk marks its end.
func (c *Client) RetrieveDictionary(ctx context.Context) error {
	var buf bytes.Buffer
	for {
		chunk, err := c.identify(ctx, uint32(buf.Len()))
		if err != nil {
			return fmt.Errorf("mcu: dictionary at offset %d: %w", buf.Len(), err)
		}
		buf.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	dict, err := protocol.ParseDictionary(buf.Bytes())
	if err != nil {
		return err
	}
	c.raw = buf.Bytes()
	c.dict = dict
	c.log.Debugf("dictionary %s: %d bytes, %d commands", dict.Version, len(c.raw), len(dict.Commands))
	return nil
}

func (c *Client) identify(ctx context.Context, offset uint32) ([]byte, error) {
	payload, err := identifyFormat.Encode(nil, identifyID, offset, identifyChunk)
	if err != nil {
		return nil, err
	}
	vals, err := c.exchange(ctx, payload, func(id uint16) (protocol.Format, bool) {
		return identifyResponseFormat, id == identifyResponseID
	})
	if err != nil {
		return nil, err
	}
	got, err := vals.Uint("offset")
	if err != nil {
		return nil, err
	}
	if got != offset {
		return nil, fmt.Errorf("%w: offset %d, asked for %d", ErrBadResponse, got, offset)
	}
	return vals.Bytes("data")
}

func (c *Client) Dictionary() *protocol.Dictionary { return c.dict }

// RawDictionary returns the dictionary as downloaded.
func (c *Client) RawDictionary() []byte { return c.raw }

// Query sends the command called cmd and waits for the response called
// resp. Other messages that arrive meanwhile are skipped.
func (c *Client) Query(ctx context.Context, cmd, resp string, args ...any) (protocol.Values, error) {
	if c.dict == nil {
		return nil, ErrNoDictionary
	}
	id, f, err := c.dict.Command(cmd)
	if err != nil {
		return nil, err
	}
	payload, err := f.Encode(nil, id, args...)
	if err != nil {
		return nil, err
	}
	return c.exchange(ctx, payload, func(id uint16) (protocol.Format, bool) {
		rf, err := c.dict.Response(id)
		return rf, err == nil && rf.Name == resp
	})
}

func (c *Client) exchange(ctx context.Context, payload []byte, match func(uint16) (protocol.Format, bool)) (protocol.Values, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.conn.Send(ctx, payload); err != nil {
		return nil, err
	}
	for {
		p, err := c.conn.Receive(ctx)
		if err != nil {
			return nil, err
		}
		for len(p) > 0 {
			id, err := protocol.ReadUint(&p)
			if err != nil {
				return nil, err
			}
			f, ok := match(uint16(id))
			if !ok {
				if c.dict == nil {
					break
				}
				other, err := c.dict.Response(uint16(id))
				if err != nil {
					c.log.Warnf("dropping frame: %v", err)
					break
				}
				if _, err := other.Decode(&p); err != nil {
					return nil, err
				}
				c.log.Debugf("skipping %s", other.Name)
				continue
			}
			return f.Decode(&p)
		}
	}
}
