// Package device exposes a timer subsystem over the framed link: a registry
// of commands, the dictionary the host downloads to learn them, and the
// endpoint that serves requests.
package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tickos/protocol"
	"tickos/tinycompress"
)

var (
	ErrDuplicate      = errors.New("device: message already registered")
	ErrUnknownCommand = errors.New("device: unknown command")
	ErrResponseSize   = errors.New("device: response does not fit a frame")
)

// Handler serves one command. Responses are queued on r and sent after the
// acknowledgement of the frame that carried the command.
type Handler func(r *Responder, args protocol.Values) error

// Command is a registered message. Responses have no handler.
type Command struct {
	ID      uint16
	Format  protocol.Format
	Handler Handler
}

func (c *Command) Name() string { return c.Format.Name }

// IsResponse reports whether the message flows from device to host.
func (c *Command) IsResponse() bool { return c.Handler == nil }

// Registry assigns ids to messages in registration order.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint16]*Command
	byName map[string]*Command
	nextID uint16
	config map[string]string
	dict   []byte
}

// NewRegistry returns a registry holding the identify handshake:
// identify_response has id 0 and identify id 1 so a host can fetch the
// dictionary before it knows anything else.
func NewRegistry() *Registry {
	r := &Registry{
		byID:   make(map[uint16]*Command),
		byName: make(map[string]*Command),
		config: make(map[string]string),
	}
	r.MustRegister("identify_response offset=%u data=%.*s", nil)
	r.MustRegister("identify offset=%u count=%c", r.identify)
	return r
}

// Register adds a message described by format. A nil handler declares a
// response.
func (r *Registry) Register(format string, h Handler) (uint16, error) {
	f, err := protocol.ParseFormat(format)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[f.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, f.Name)
	}
	c := &Command{ID: r.nextID, Format: f, Handler: h}
	r.nextID++
	r.byID[c.ID] = c
	r.byName[f.Name] = c
	r.dict = nil
	return c.ID, nil
}

func (r *Registry) MustRegister(format string, h Handler) uint16 {
	id, err := r.Register(format, h)
	if err != nil {
		panic(err)
	}
	return id
}

// SetConfig publishes a build constant in the dictionary.
func (r *Registry) SetConfig(key, value string) {
	r.mu.Lock()
	r.config[key] = value
	r.dict = nil
	r.mu.Unlock()
}

func (r *Registry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) ByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Dictionary returns the zlib wrapped JSON dictionary, rebuilt after each
// registration.
func (r *Registry) Dictionary() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dict != nil {
		return r.dict, nil
	}
	d := protocol.Dictionary{
		Version:   protocol.Version,
		Config:    make(map[string]string, len(r.config)),
		Commands:  make(map[string]int),
		Responses: make(map[string]int),
	}
	for k, v := range r.config {
		d.Config[k] = v
	}
	for id, c := range r.byID {
		if c.IsResponse() {
			d.Responses[c.Format.String()] = int(id)
		} else {
			d.Commands[c.Format.String()] = int(id)
		}
	}
	data, err := json.Marshal(&d)
	if err != nil {
		return nil, fmt.Errorf("device: encode dictionary: %w", err)
	}
	r.dict = tinycompress.Append(nil, data)
	return r.dict, nil
}

// Chunk returns up to count dictionary bytes starting at offset.
func (r *Registry) Chunk(offset uint32, count int) ([]byte, error) {
	data, err := r.Dictionary()
	if err != nil {
		return nil, err
	}
	if offset >= uint32(len(data)) {
		return nil, nil
	}
	end := min(int(offset)+count, len(data))
	return data[offset:end], nil
}

func (r *Registry) identify(resp *Responder, args protocol.Values) error {
	offset, err := args.Uint("offset")
	if err != nil {
		return err
	}
	count, err := args.Uint("count")
	if err != nil {
		return err
	}
	chunk, err := r.Chunk(offset, int(count))
	if err != nil {
		return err
	}
	return resp.Send("identify_response", offset, chunk)
}

// Responder collects the responses to one incoming frame, packing them into
// as few frames as possible.
type Responder struct {
	reg      *Registry
	payloads [][]byte
}

// Send encodes the response called name.
func (r *Responder) Send(name string, args ...any) error {
	c, ok := r.reg.ByName(name)
	if !ok || !c.IsResponse() {
		return fmt.Errorf("%w: response %s", ErrUnknownCommand, name)
	}
	msg, err := c.Format.Encode(nil, c.ID, args...)
	if err != nil {
		return err
	}
	if len(msg) > protocol.PayloadMax {
		return fmt.Errorf("%w: %s is %d bytes", ErrResponseSize, name, len(msg))
	}
	if n := len(r.payloads); n > 0 && len(r.payloads[n-1])+len(msg) <= protocol.PayloadMax {
		r.payloads[n-1] = append(r.payloads[n-1], msg...)
		return nil
	}
	r.payloads = append(r.payloads, msg)
	return nil
}

func (r *Responder) reset() { r.payloads = r.payloads[:0] }
