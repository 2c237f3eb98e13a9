package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chrisrx.dev/reconf/protocol"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load without file or environment (-want +got):\n%s", diff)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeFile(t, "reconf.toml", `
addr = ":9000"
idStyle = "ulid"
pingInterval = "30s"

[diff]
tests = true
`)
	t.Setenv("RECONF_ADDR", ":9100")
	t.Setenv("RECONF_REQUEST_TIMEOUT", "1m")
	t.Setenv("RECONF_DIFF_LCS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Addr = ":9100"
	want.IDStyle = "ulid"
	want.PingInterval = 30 * time.Second
	want.RequestTimeout = time.Minute
	want.Diff = DiffConfig{LCS: true, Tests: true}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := len(cfg.DiffOptions()); got != 2 {
		t.Errorf("len(DiffOptions()) = %d, want 2", got)
	}
	if got := len(cfg.SessionOptions()); got == 0 {
		t.Error("no session options")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "bad.toml", `addr = `)); err == nil {
		t.Error("expected error for malformed file")
	}
	t.Setenv("RECONF_OUTGOING_BUFFER", "lots")
	if _, err := Load(""); err == nil {
		t.Error("expected error for malformed environment")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"id style", func(c *Config) { c.IDStyle = "sequence" }, "unknown id style"},
		{"negative ping", func(c *Config) { c.PingInterval = -time.Second }, "pingInterval"},
		{"write timeout", func(c *Config) { c.WriteTimeout = 0 }, "writeTimeout"},
		{"request timeout", func(c *Config) { c.RequestTimeout = 0 }, "requestTimeout"},
		{"dial retry", func(c *Config) { c.DialRetry = 0 }, "dialRetry"},
		{"outgoing buffer", func(c *Config) { c.OutgoingBuffer = 0 }, "outgoingBuffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
	cfg := Default()
	cfg.PingInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled keepalive rejected: %v", err)
	}
}

func TestLoadDocumentFormats(t *testing.T) {
	want := map[string]any{
		"name":     "agent",
		"replicas": float64(3),
		"enabled":  true,
		"limits":   map[string]any{"cpu": 1.5},
		"tags":     []any{"a", "b"},
	}
	files := map[string]string{
		"doc.json": `{"name":"agent","replicas":3,"enabled":true,"limits":{"cpu":1.5},"tags":["a","b"]}`,
		"doc.toml": `
name = "agent"
replicas = 3
enabled = true
tags = ["a", "b"]

[limits]
cpu = 1.5
`,
		"doc.yaml": `
name: agent
replicas: 3
enabled: true
limits:
  cpu: 1.5
tags:
  - a
  - b
`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			got, err := LoadDocument(writeFile(t, name, content))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(any(want), got); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadDocumentBuffer(t *testing.T) {
	got, err := LoadDocument(writeFile(t, "doc.yml", `
key:
  type: Buffer
  data: [1, 2, 255]
`))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"key": protocol.Buffer{1, 2, 255}}
	if diff := cmp.Diff(any(want), got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDocumentErrors(t *testing.T) {
	if _, err := LoadDocument(writeFile(t, "doc.ini", `a=1`)); err == nil {
		t.Error("expected error for unknown extension")
	}
	if _, err := LoadDocument(writeFile(t, "doc.json", `{"a":`)); err == nil {
		t.Error("expected error for malformed json")
	}
	if _, err := LoadDocument(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWriteDocument(t *testing.T) {
	doc := map[string]any{
		"name":  "agent",
		"count": float64(2),
		"key":   protocol.Buffer{7, 8},
		"list":  []any{"x", "y"},
	}
	for _, name := range []string{"out.json", "out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteDocument(path, doc); err != nil {
				t.Fatal(err)
			}
			got, err := LoadDocument(path)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(any(doc), got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if err := WriteDocument(filepath.Join(t.TempDir(), "out.toml"), []any{1}); err == nil {
		t.Error("expected error for toml document that is not a table")
	}
}
