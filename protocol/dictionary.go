package protocol

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var ErrUnknownMessage = errors.New("protocol: unknown message")

const zlibMagic = 0x78

// Dictionary describes the messages a device understands and the constants
// it was built with. Commands and responses are keyed by format string.
type Dictionary struct {
	Version       string            `json:"version"`
	BuildVersions string            `json:"build_versions,omitempty"`
	Config        map[string]string `json:"config"`
	Commands      map[string]int    `json:"commands"`
	Responses     map[string]int    `json:"responses"`

	commands  map[string]entry
	responses map[int]entry
}

type entry struct {
	id     uint16
	format Format
}

// ParseDictionary decodes and indexes a dictionary, inflating it first when
// it arrives zlib wrapped.
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) > 0 && data[0] == zlibMagic {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("protocol: inflate dictionary: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("protocol: inflate dictionary: %w", err)
		}
	}
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("protocol: decode dictionary: %w", err)
	}
	if err := d.index(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) index() error {
	d.commands = make(map[string]entry, len(d.Commands))
	d.responses = make(map[int]entry, len(d.Responses))
	for s, id := range d.Commands {
		f, err := ParseFormat(s)
		if err != nil {
			return err
		}
		d.commands[f.Name] = entry{id: uint16(id), format: f}
	}
	for s, id := range d.Responses {
		f, err := ParseFormat(s)
		if err != nil {
			return err
		}
		d.responses[id] = entry{id: uint16(id), format: f}
	}
	return nil
}

// Command returns the id and format of a command by name.
func (d *Dictionary) Command(name string) (uint16, Format, error) {
	e, ok := d.commands[name]
	if !ok {
		return 0, Format{}, fmt.Errorf("%w: command %s", ErrUnknownMessage, name)
	}
	return e.id, e.format, nil
}

// Response returns the format of a response id.
func (d *Dictionary) Response(id uint16) (Format, error) {
	e, ok := d.responses[int(id)]
	if !ok {
		return Format{}, fmt.Errorf("%w: response id %d", ErrUnknownMessage, id)
	}
	return e.format, nil
}

// ConfigUint returns a numeric build constant.
func (d *Dictionary) ConfigUint(key string) (uint32, error) {
	s, ok := d.Config[key]
	if !ok {
		return 0, fmt.Errorf("protocol: dictionary has no %s", key)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("protocol: dictionary %s: %w", key, err)
	}
	return uint32(v), nil
}
