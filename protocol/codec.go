package protocol

import (
	"encoding/json"
	"fmt"
)

type wireMessage struct {
	Verb Verb            `json:"verb"`
	Kind Kind            `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// Encode serializes m into a single text frame. Output is deterministic:
// fields are written in wire order and object keys are sorted.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s %s: %w", m.Kind, m.Verb, err)
	}
	return data, nil
}

// Decode parses one frame. Any failure is returned as a *DecodeError.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	m := Message{
		Verb: w.Verb,
		Kind: w.Kind,
		ID:   w.ID,
	}
	if len(w.Data) > 0 {
		v, err := decodeValue(w.Data)
		if err != nil {
			return Message{}, &DecodeError{Err: err}
		}
		m.Data = v
	}
	return m, nil
}

// ParseDocument decodes a JSON document, reviving Buffer objects.
func ParseDocument(data []byte) (any, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSONParse, err)
	}
	return v, nil
}

func decodeValue(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return revive(v), nil
}

// Normalize converts v into a document tree made of map[string]any, []any,
// float64, string, bool, nil and Buffer. It is used for values decoded from
// other formats (TOML, YAML) or built from Go structs.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: normalize: %w", err)
	}
	return decodeValue(data)
}

// Clone returns a deep copy of a document tree.
func Clone(doc any) any {
	switch t := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = Clone(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = Clone(v)
		}
		return out
	case Buffer:
		if t == nil {
			return t
		}
		out := make(Buffer, len(t))
		copy(out, t)
		return out
	case []byte:
		if t == nil {
			return t
		}
		out := make([]byte, len(t))
		copy(out, t)
		return out
	}
	return doc
}
