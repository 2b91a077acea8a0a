package espnow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Reserved top-level frame keys.
const (
	keyMAC  = "MAC"
	keyName = "name"
)

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a decoded JSON object with its members in source order.
//
// Values are nil, bool, string, int64, float64, []any or Object.
type Object []Member

// Get returns the value of the last member with the given key.
func (o Object) Get(key string) (any, bool) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i].Key == key {
			return o[i].Value, true
		}
	}
	return nil, false
}

// Map converts the object to a plain map, recursively. Later duplicate
// keys win.
func (o Object) Map() map[string]any {
	m := make(map[string]any, len(o))
	for _, mem := range o {
		m[mem.Key] = plain(mem.Value)
	}
	return m
}

// MarshalJSON writes the members in order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, mem := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(mem.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(mem.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// plain converts decoded values to map/slice form for payloads that leave
// the engine.
func plain(v any) any {
	switch t := v.(type) {
	case Object:
		return t.Map()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// Frame is one validated line from the gateway.
type Frame struct {
	MAC  string
	Name string
	Body Object
}

// DecodeFrame parses one line.
//
// Returns:
//   - ErrNotProtocolLine when the first non-space byte is not '{'
//   - ErrInvalidFrame when the line is not a single JSON object
//   - ErrMissingMAC when the object has no non-empty string MAC
func DecodeFrame(line []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{}, ErrNotProtocolLine
	}

	obj, err := decodeObject(trimmed)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}

	mac, _ := obj.Get(keyMAC)
	macStr, ok := mac.(string)
	if !ok || macStr == "" {
		return Frame{}, ErrMissingMAC
	}

	f := Frame{MAC: macStr, Body: obj}
	if name, ok := obj.Get(keyName); ok {
		if s, ok := name.(string); ok {
			f.Name = s
		}
	}
	return f, nil
}

// decodeObject decodes exactly one JSON object, keeping member order.
func decodeObject(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, errors.New("top-level value is not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after object")
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeMembers(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		return numberValue(t), nil
	default:
		// string, bool or nil
		return t, nil
	}
}

func decodeMembers(dec *json.Decoder) (Object, error) {
	obj := Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj = append(obj, Member{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	arr := []any{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, err
	}
	return arr, nil
}

// numberValue yields int64 for integral literals and float64 otherwise.
func numberValue(n json.Number) any {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}
