package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"go.chrisrx.dev/reconf/protocol"
)

// LoadDocument reads a configuration document. The format follows the file
// extension: .json, .toml, .yaml or .yml. The result is a normalized document
// tree.
func LoadDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return doc, nil
}

func ParseDocument(data []byte, ext string) (any, error) {
	var v any
	switch strings.ToLower(ext) {
	case ".json":
		return protocol.ParseDocument(data)
	case ".toml":
		m := map[string]any{}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		v = m
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported document format %q", ext)
	}
	return protocol.Normalize(v)
}

// WriteDocument writes doc to path in the format named by its extension.
// Buffers keep their JSON object form in every format.
func WriteDocument(path string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var out []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		out = buf.Bytes()
	case ".yaml", ".yml":
		out, err = yaml.JSONToYAML(data)
		if err != nil {
			return err
		}
	case ".toml":
		var plain any
		if err := json.Unmarshal(data, &plain); err != nil {
			return err
		}
		m, ok := plain.(map[string]any)
		if !ok {
			return fmt.Errorf("config: toml documents must be tables, got %T", plain)
		}
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return err
		}
		out = buf.Bytes()
	default:
		return fmt.Errorf("config: unsupported document format %q", filepath.Ext(path))
	}
	return os.WriteFile(path, out, 0o644)
}
