package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/wI2L/jsondiff"
)

type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
	OpMove    Op = "move"
	OpCopy    Op = "copy"
	OpTest    Op = "test"
)

// Operation is one RFC 6902 edit. Path and From are JSON pointers.
type Operation struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON writes value for add, replace and test even when it is null,
// and from only for move and copy.
func (o Operation) MarshalJSON() ([]byte, error) {
	switch o.Op {
	case OpAdd, OpReplace, OpTest:
		return json.Marshal(struct {
			Op    Op     `json:"op"`
			Path  string `json:"path"`
			Value any    `json:"value"`
		}{o.Op, o.Path, o.Value})
	case OpMove, OpCopy:
		return json.Marshal(struct {
			Op   Op     `json:"op"`
			Path string `json:"path"`
			From string `json:"from"`
		}{o.Op, o.Path, o.From})
	case OpRemove:
		return json.Marshal(struct {
			Op   Op     `json:"op"`
			Path string `json:"path"`
		}{o.Op, o.Path})
	}
	type plain Operation
	return json.Marshal(plain(o))
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	type plain Operation
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	p.Value = revive(p.Value)
	*o = Operation(p)
	return nil
}

func (o Operation) validate() error {
	switch o.Op {
	case OpAdd, OpRemove, OpReplace, OpTest:
	case OpMove, OpCopy:
		if !validPointer(o.From) {
			return fmt.Errorf("invalid from pointer %q", o.From)
		}
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	if !validPointer(o.Path) {
		return fmt.Errorf("invalid path pointer %q", o.Path)
	}
	return nil
}

func validPointer(p string) bool {
	return p == "" || strings.HasPrefix(p, "/")
}

// PatchSet is an ordered list of operations. Order is significant.
type PatchSet []Operation

// ParsePatchSet converts a decoded PATCH payload into a PatchSet.
func ParsePatchSet(v any) (PatchSet, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: missing patch set", ErrInvalidPatch)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var ps PatchSet
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	for i, op := range ps {
		if err := op.validate(); err != nil {
			return nil, fmt.Errorf("%w: operation %d: %v", ErrInvalidPatch, i, err)
		}
	}
	if ps == nil {
		ps = PatchSet{}
	}
	return ps, nil
}

type diffOptions struct {
	opts []jsondiff.Option
}

type DiffOption func(*diffOptions)

// WithMoves allows the diff to factorize removals and additions of equal
// values into move and copy operations.
func WithMoves() DiffOption {
	return func(o *diffOptions) {
		o.opts = append(o.opts, jsondiff.Factorize())
	}
}

// WithLCS compares arrays by longest common subsequence instead of by index.
func WithLCS() DiffOption {
	return func(o *diffOptions) {
		o.opts = append(o.opts, jsondiff.LCS())
	}
}

// WithTests precedes every remove and replace with a test of the old value so
// the patch only applies to the document it was computed from.
func WithTests() DiffOption {
	return func(o *diffOptions) {
		o.opts = append(o.opts, jsondiff.Invertible())
	}
}

// Diff computes the patch set that turns oldDoc into newDoc. Equal documents
// produce an empty, non-nil set.
func Diff(oldDoc, newDoc any, opts ...DiffOption) (PatchSet, error) {
	var o diffOptions
	for _, opt := range opts {
		opt(&o)
	}
	patch, err := jsondiff.Compare(oldDoc, newDoc, o.opts...)
	if err != nil {
		return nil, fmt.Errorf("protocol: diff: %w", err)
	}
	ps := make(PatchSet, 0, len(patch))
	for _, op := range patch {
		value, err := Normalize(op.Value)
		if err != nil {
			return nil, err
		}
		ps = append(ps, Operation{
			Op:    Op(op.Type),
			Path:  string(op.Path),
			From:  string(op.From),
			Value: value,
		})
	}
	return ps, nil
}

// Apply returns doc with ps applied. doc itself is never modified and the
// result shares no maps, slices or buffers with it. If any operation fails
// the whole set is abandoned and doc is returned together with an
// *ApplyError.
func Apply(doc any, ps PatchSet) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc, fmt.Errorf("protocol: marshal document: %w", err)
	}
	if len(ps) > 0 {
		for i, op := range ps {
			if err := op.validate(); err != nil {
				return doc, &ApplyError{Index: i, Op: op, Err: ErrInvalidPatch, Cause: err}
			}
		}
		encoded, err := json.Marshal(ps)
		if err != nil {
			return doc, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		ops, err := jsonpatch.DecodePatch(encoded)
		if err != nil {
			return doc, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		for i, op := range ps {
			if err := checkTargets(raw, op); err != nil {
				return doc, &ApplyError{Index: i, Op: op, Err: ErrPathNotFound, Cause: err}
			}
			raw, err = applyOne(raw, op, ops[i])
			if err != nil {
				return doc, &ApplyError{Index: i, Op: op, Err: classify(op), Cause: err}
			}
		}
	}
	out, err := decodeValue(raw)
	if err != nil {
		return doc, fmt.Errorf("protocol: decode patched document: %w", err)
	}
	return out, nil
}

func applyOne(doc []byte, op Operation, jop jsonpatch.Operation) (out []byte, err error) {
	if op.Path == "" {
		return applyRoot(doc, op)
	}
	// json-patch panics on some operations against null documents.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return jsonpatch.Patch{jop}.Apply(doc)
}

func applyRoot(doc []byte, op Operation) ([]byte, error) {
	switch op.Op {
	case OpAdd, OpReplace:
		return json.Marshal(op.Value)
	case OpRemove:
		return []byte("null"), nil
	case OpTest:
		cur, err := decodeValue(doc)
		if err != nil {
			return nil, err
		}
		want, err := Normalize(op.Value)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(cur, want) {
			return nil, fmt.Errorf("document does not match test value")
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%s to the document root is not supported", op.Op)
}

func classify(op Operation) error {
	switch {
	case op.Op == OpTest:
		return ErrTestFailed
	case op.Path == "":
		return ErrInvalidPatch
	}
	return ErrPathNotFound
}
