package casconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/casregistry"
	_ "xdao.co/xdoc/storage/localfs"
	_ "xdao.co/xdoc/storage/memcas"
)

const jsonConfig = `{
  "write_policy": "all",
  "backends": [
    {"name": "mem", "id": "a"},
    {"name": "mem", "id": "b", "config": {"note": "x"}}
  ]
}`

const tomlConfig = `
write_policy = "all"

[[backends]]
name = "mem"
id = "a"

[[backends]]
name = "mem"
id = "b"

[backends.config]
note = "x"
`

const yamlConfig = `
write_policy: all
backends:
  - name: mem
    id: a
  - name: mem
    id: b
    config:
      note: x
`

func TestLoadFile_AllFormats(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"cas.json": jsonConfig,
		"cas.toml": tomlConfig,
		"cas.yaml": yamlConfig,
		"cas.yml":  yamlConfig,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			cfg, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if cfg.WritePolicy != "all" {
				t.Fatalf("write_policy: got %q", cfg.WritePolicy)
			}
			if len(cfg.Backends) != 2 || cfg.Backends[1].ID != "b" {
				t.Fatalf("unexpected backends: %+v", cfg.Backends)
			}
			if got := cfg.Backends[1].Config["note"]; got != "x" {
				t.Fatalf("config note: got %q", got)
			}
		})
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	cases := map[Format]string{
		FormatJSON: `{"backends":[{"name":"mem"}],"extra":1}`,
		FormatTOML: "extra = 1\n[[backends]]\nname = \"mem\"\n",
		FormatYAML: "extra: 1\nbackends:\n  - name: mem\n",
	}
	for format, body := range cases {
		if _, err := Parse([]byte(body), format); err == nil {
			t.Fatalf("%s: expected unknown key error", format)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []Config{
		{},
		{Backends: []BackendConfig{{}}},
		{Backends: []BackendConfig{{Name: "mem"}, {Name: "mem"}}},
		{WritePolicy: "some", Backends: []BackendConfig{{Name: "mem"}}},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestOpen_Policies(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte(jsonConfig), FormatJSON)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	rep, ok := cas.(storage.ReplicatingCAS)
	if !ok {
		t.Fatalf("write_policy=all: got %T", cas)
	}
	_, perBackend, err := rep.PutAll(ctx, []byte("replicated"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(perBackend) != 2 {
		t.Fatalf("PutAll: got %d backend CIDs", len(perBackend))
	}

	cfg.WritePolicy = "first"
	cfg.ReadRepair = true
	cas, _, err = cfg.Open(casregistry.UsageCLI, "b")
	if err != nil {
		t.Fatalf("Open(first): %v", err)
	}
	multi, ok := cas.(storage.MultiCAS)
	if !ok {
		t.Fatalf("write_policy=first: got %T", cas)
	}
	if !multi.ReadRepair {
		t.Fatalf("read_repair not applied")
	}

	if _, _, err := cfg.Open(casregistry.UsageCLI, "zzz"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
}

func TestOpen_RejectsUnknownBackendKeys(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{
		Name:   "localfs",
		Config: map[string]string{"localfs-directory": t.TempDir()},
	}}}
	if _, _, err := cfg.Open(casregistry.UsageCLI, ""); err == nil {
		t.Fatalf("expected error for misspelled localfs key")
	}
}
