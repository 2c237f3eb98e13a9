package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// pointerTokens splits a JSON pointer into unescaped reference tokens. The
// root pointer has no tokens.
func pointerTokens(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(p[1:], "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		parts[i] = strings.ReplaceAll(part, "~0", "~")
	}
	return parts
}

func arrayIndex(tok string, n int) (int, bool) {
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(tok)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func resolve(doc any, tokens []string) (any, bool) {
	cur := doc
	for _, tok := range tokens {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := arrayIndex(tok, len(node))
			if !ok {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// addable reports whether a value can be added at tokens: the parent must
// exist and be a container, and an array position must be "-" or at most
// the array length.
func addable(doc any, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	parent, ok := resolve(doc, tokens[:len(tokens)-1])
	if !ok {
		return false
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		return true
	case []any:
		if last == "-" {
			return true
		}
		_, ok := arrayIndex(last, len(node)+1)
		return ok
	}
	return false
}

// checkTargets verifies that the locations op reads from or writes to exist
// in doc. json-patch accepts replace and test on missing object members, so
// this runs before every operation.
func checkTargets(doc []byte, op Operation) error {
	var tree any
	if err := json.Unmarshal(doc, &tree); err != nil {
		return err
	}
	switch op.Op {
	case OpReplace, OpRemove, OpTest:
		if _, ok := resolve(tree, pointerTokens(op.Path)); !ok {
			return fmt.Errorf("no value at %q", op.Path)
		}
	case OpMove, OpCopy:
		if _, ok := resolve(tree, pointerTokens(op.From)); !ok {
			return fmt.Errorf("no value at %q", op.From)
		}
		if !addable(tree, pointerTokens(op.Path)) {
			return fmt.Errorf("cannot add at %q", op.Path)
		}
	case OpAdd:
		if !addable(tree, pointerTokens(op.Path)) {
			return fmt.Errorf("cannot add at %q", op.Path)
		}
	}
	return nil
}
