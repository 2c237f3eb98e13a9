package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const bufferType = "Buffer"

// Buffer is a raw byte value inside a document. On the wire it is the object
// {"type":"Buffer","data":[<byte>,...]}.
type Buffer []byte

type bufferObject struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

func (b Buffer) MarshalJSON() ([]byte, error) {
	data := make([]int, len(b))
	for i, c := range b {
		data[i] = int(c)
	}
	return json.Marshal(bufferObject{Type: bufferType, Data: data})
}

func (b *Buffer) UnmarshalJSON(data []byte) error {
	var obj bufferObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Type != bufferType {
		return fmt.Errorf("protocol: expected %s object, got type %q", bufferType, obj.Type)
	}
	out := make(Buffer, len(obj.Data))
	for i, v := range obj.Data {
		if v < 0 || v > 255 {
			return fmt.Errorf("protocol: buffer byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

func (b Buffer) Equal(other Buffer) bool {
	return bytes.Equal(b, other)
}

// asBuffer reports whether m is exactly a Buffer object and converts it.
func asBuffer(m map[string]any) (Buffer, bool) {
	if len(m) != 2 || m["type"] != bufferType {
		return nil, false
	}
	raw, ok := m["data"].([]any)
	if !ok {
		return nil, false
	}
	out := make(Buffer, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 255 || f != float64(int(f)) {
			return nil, false
		}
		out[i] = byte(f)
	}
	return out, true
}

// revive replaces Buffer objects in a freshly decoded tree with Buffer
// values. Maps and slices are rewritten in place.
func revive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if b, ok := asBuffer(t); ok {
			return b
		}
		for k, child := range t {
			t[k] = revive(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = revive(child)
		}
		return t
	}
	return v
}
