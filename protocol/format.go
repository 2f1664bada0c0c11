package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadFormat   = errors.New("protocol: bad message format")
	ErrArgCount    = errors.New("protocol: wrong argument count")
	ErrArgType     = errors.New("protocol: unsupported argument type")
	ErrMissingArg  = errors.New("protocol: missing value")
)

// ParamType is the wire type of one message parameter
type ParamType uint8

const (
	ParamUint   ParamType = iota // %u
	ParamInt                     // %i
	ParamByte                    // %c
	ParamUint16                  // %hu
	ParamInt16                   // %hi
	ParamBuffer                  // %*s, %.*s
)

var paramVerbs = map[string]ParamType{
	"%u":   ParamUint,
	"%i":   ParamInt,
	"%c":   ParamByte,
	"%hu":  ParamUint16,
	"%hi":  ParamInt16,
	"%*s":  ParamBuffer,
	"%.*s": ParamBuffer,
}

type Param struct {
	Name string
	Type ParamType
}

// Format describes a message such as "clock clock=%u".
type Format struct {
	Name   string
	Params []Param
	raw    string
}

// ParseFormat parses a message format string.
func ParseFormat(s string) (Format, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Format{}, fmt.Errorf("%w: empty", ErrBadFormat)
	}
	f := Format{Name: fields[0], raw: s}
	for _, field := range fields[1:] {
		name, verb, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return Format{}, fmt.Errorf("%w: %q in %q", ErrBadFormat, field, s)
		}
		typ, ok := paramVerbs[verb]
		if !ok {
			return Format{}, fmt.Errorf("%w: verb %q in %q", ErrBadFormat, verb, s)
		}
		f.Params = append(f.Params, Param{Name: name, Type: typ})
	}
	return f, nil
}

// MustParseFormat is ParseFormat for formats fixed at compile time.
func MustParseFormat(s string) Format {
	f, err := ParseFormat(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Format) String() string { return f.raw }

// Encode appends the message id and args in parameter order. Integer
// parameters take any Go integer type, buffers take []byte or string.
func (f Format) Encode(dst []byte, id uint16, args ...any) ([]byte, error) {
	if len(args) != len(f.Params) {
		return dst, fmt.Errorf("%w: %s wants %d, got %d", ErrArgCount, f.Name, len(f.Params), len(args))
	}
	dst = AppendUint(dst, uint32(id))
	for i, p := range f.Params {
		if p.Type == ParamBuffer {
			switch v := args[i].(type) {
			case []byte:
				dst = AppendBytes(dst, v)
			case string:
				dst = AppendString(dst, v)
			default:
				return dst, fmt.Errorf("%w: %s=%T", ErrArgType, p.Name, args[i])
			}
			continue
		}
		v, ok := toInt32(args[i])
		if !ok {
			return dst, fmt.Errorf("%w: %s=%T", ErrArgType, p.Name, args[i])
		}
		dst = AppendInt(dst, v)
	}
	return dst, nil
}

func toInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int:
		return int32(n), true
	case int8:
		return int32(n), true
	case int16:
		return int32(n), true
	case int32:
		return n, true
	case int64:
		return int32(n), true
	case uint:
		return int32(n), true
	case uint8:
		return int32(n), true
	case uint16:
		return int32(n), true
	case uint32:
		return int32(n), true
	case uint64:
		return int32(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Decode reads the parameters following the message id. Unsigned
// parameters decode to uint32, signed ones to int32 and buffers to a copied
// []byte.
func (f Format) Decode(data *[]byte) (Values, error) {
	vals := make(Values, len(f.Params))
	for _, p := range f.Params {
		if p.Type == ParamBuffer {
			b, err := ReadBytes(data)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", f.Name, p.Name, err)
			}
			vals[p.Name] = append([]byte(nil), b...)
			continue
		}
		v, err := ReadInt(data)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", f.Name, p.Name, err)
		}
		switch p.Type {
		case ParamInt, ParamInt16:
			vals[p.Name] = v
		case ParamByte:
			vals[p.Name] = uint32(uint8(v))
		case ParamUint16:
			vals[p.Name] = uint32(uint16(v))
		default:
			vals[p.Name] = uint32(v)
		}
	}
	return vals, nil
}

// Values holds decoded message parameters by name
type Values map[string]any

func (v Values) Uint(name string) (uint32, error) {
	n, ok := v[name].(uint32)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingArg, name)
	}
	return n, nil
}

func (v Values) Int(name string) (int32, error) {
	n, ok := v[name].(int32)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingArg, name)
	}
	return n, nil
}

func (v Values) Bytes(name string) ([]byte, error) {
	b, ok := v[name].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingArg, name)
	}
	return b, nil
}
