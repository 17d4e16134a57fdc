package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/document"
	"xdao.co/xdoc/keys"
	"xdao.co/xdoc/wire"
)

const sampleDoc = `{"title":"hello","tags":["a","b"],"n":7}`

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("%v: exit %d\nstderr: %s", args, code, errOut)
	}
	return out
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func digestOf(t *testing.T, text string) document.Digest {
	t.Helper()
	v, err := document.Decode([]byte(text))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	d, err := document.Hash(v)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return d
}

func TestRun_UsageAndUnknown(t *testing.T) {
	if _, _, code := runCLI(t); code != 2 {
		t.Fatalf("no args: got exit %d", code)
	}
	if _, errOut, code := runCLI(t, "frobnicate"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Fatalf("unknown command: exit %d stderr %q", code, errOut)
	}
	if out := mustRun(t, "help"); !strings.Contains(out, "xdoc hash") {
		t.Fatalf("help output missing commands: %q", out)
	}
}

func TestHash(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", sampleDoc)
	reordered := writeFile(t, dir, "nested/b.json", `{"n":7,"tags":["a","b"],"title":"hello"}`)
	writeFile(t, dir, "nested/skip.txt", "not json")
	want := digestOf(t, sampleDoc).String()

	if got := strings.TrimSpace(mustRun(t, "hash", a)); got != want {
		t.Fatalf("hash: got %s want %s", got, want)
	}

	out := mustRun(t, "hash", "--glob", filepath.Join(dir, "**", "*.json"))
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("glob: expected 2 lines, got %q", out)
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, want+"  ") {
			t.Fatalf("glob: unexpected line %q", l)
		}
	}
	if !strings.Contains(out, reordered) {
		t.Fatalf("glob: nested file missing from %q", out)
	}

	bad := writeFile(t, dir, "bad.json", `{"x":null}`)
	if _, _, code := runCLI(t, "hash", bad); code != 1 {
		t.Fatalf("null document: got exit %d", code)
	}
	notUTF8 := writeFile(t, dir, "latin1.json", "{\"title\":\"caf\xe9\"}")
	if _, errOut, code := runCLI(t, "hash", notUTF8); code != 1 || !strings.Contains(errOut, "UTF-8") {
		t.Fatalf("non-UTF-8 document: got exit %d, stderr %q", code, errOut)
	}
}

func TestCanonAndCID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.json", sampleDoc)

	out := mustRun(t, "canon", path)
	if want := `{"n":7,"tags":["a","b"],"title":"hello"}` + "\n"; out != want {
		t.Fatalf("canon: got %q want %q", out, want)
	}

	v, err := document.Decode([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	id, err := cidutil.DocumentCID(v)
	if err != nil {
		t.Fatalf("DocumentCID: %v", err)
	}
	if got := strings.TrimSpace(mustRun(t, "cid", path)); got != id.String() {
		t.Fatalf("cid: got %s want %s", got, id)
	}
}

func TestWireEncodeDecode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.json", sampleDoc)
	cbor := filepath.Join(dir, "doc.cbor")

	mustRun(t, "wire", "encode", "--out", cbor, path)
	b, err := os.ReadFile(cbor)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if _, err := wire.Unmarshal(b); err != nil {
		t.Fatalf("wire.Unmarshal: %v", err)
	}
	if got := mustRun(t, "wire", "decode", cbor); got != mustRun(t, "canon", path) {
		t.Fatalf("wire decode: got %q", got)
	}
	if _, _, code := runCLI(t, "wire", "decode", path); code != 1 {
		t.Fatalf("decoding JSON as wire bytes should fail, got exit %d", code)
	}
}

func TestPutGet_LocalFS(t *testing.T) {
	dir := t.TempDir()
	casDir := filepath.Join(dir, "cas")
	path := writeFile(t, dir, "doc.json", sampleDoc)

	fields := strings.Fields(mustRun(t, "put", "--localfs-dir", casDir, path))
	if len(fields) != 2 {
		t.Fatalf("put: unexpected output %q", fields)
	}
	id, digest := fields[0], fields[1]
	if digest != digestOf(t, sampleDoc).String() {
		t.Fatalf("put: digest %s", digest)
	}

	got := mustRun(t, "get", "--localfs-dir", casDir, "--digest", digest, id)
	if got != mustRun(t, "canon", path) {
		t.Fatalf("get: got %q", got)
	}

	wrong := digestOf(t, `{"other":1}`).String()
	if _, errOut, code := runCLI(t, "get", "--localfs-dir", casDir, "--digest", wrong, id); code != 1 {
		t.Fatalf("get with wrong digest: exit %d stderr %q", code, errOut)
	}
	if _, _, code := runCLI(t, "get", "--backend", "nope", id); code != 2 {
		t.Fatalf("unknown backend: got exit %d", code)
	}
}

func TestPutGet_CASConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "cas.yaml", fmt.Sprintf(`
write_policy: all
backends:
  - name: localfs
    config:
      localfs-dir: %s
  - name: sqlite
    config:
      sqlite-path: %s
`, filepath.Join(dir, "fs"), filepath.Join(dir, "cas.db")))
	path := writeFile(t, dir, "doc.json", sampleDoc)

	id := strings.Fields(mustRun(t, "put", "--cas-config", cfg, path))[0]

	// Both replicas hold the block.
	if got := mustRun(t, "get", "--localfs-dir", filepath.Join(dir, "fs"), id); got == "" {
		t.Fatalf("localfs replica empty")
	}
	if got := mustRun(t, "get", "--backend", "sqlite", "--sqlite-path", filepath.Join(dir, "cas.db"), id); got == "" {
		t.Fatalf("sqlite replica empty")
	}
}

func TestKeySignVerify(t *testing.T) {
	dir := t.TempDir()
	keysDir := filepath.Join(dir, "keys")
	seedHex := hex.EncodeToString(bytes.Repeat([]byte{0x11}, 32))
	path := writeFile(t, dir, "doc.json", sampleDoc)

	out := mustRun(t, "key", "init", "--keys-dir", keysDir, "--name", "alice", "--seed-hex", seedHex)
	if !strings.Contains(out, "Created root key: ed25519:") {
		t.Fatalf("key init: %q", out)
	}
	mustRun(t, "key", "derive", "--keys-dir", keysDir, "--from", "alice", "--role", "publisher")
	if out := mustRun(t, "key", "list", "--keys-dir", keysDir); out != "alice\n  - publisher\n" {
		t.Fatalf("key list: %q", out)
	}
	signerKey := strings.TrimSpace(mustRun(t, "key", "export", "--keys-dir", keysDir, "--name", "alice", "--role", "publisher"))

	sigPath := filepath.Join(dir, "doc.sig.json")
	mustRun(t, "sign", "--keys-dir", keysDir, "--signer", "alice", "--signer-role", "publisher", "--out", sigPath, path)
	if out := mustRun(t, "verify", "--sig", sigPath, "--key", signerKey, path); out != "OK\n" {
		t.Fatalf("verify: %q", out)
	}

	rootKey := strings.TrimSpace(mustRun(t, "key", "export", "--keys-dir", keysDir, "--name", "alice"))
	if _, _, code := runCLI(t, "verify", "--sig", sigPath, "--key", rootKey, path); code != 1 {
		t.Fatalf("verify with the wrong required key: exit %d", code)
	}

	tampered := writeFile(t, dir, "tampered.json", `{"title":"hello","tags":["a","b"],"n":8}`)
	if _, _, code := runCLI(t, "verify", "--sig", sigPath, tampered); code != 1 {
		t.Fatalf("verify tampered: exit %d", code)
	}
}

func TestSignDilithium3(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "doc.json", sampleDoc)
	seedHex := hex.EncodeToString(bytes.Repeat([]byte{0x22}, 32))

	out := mustRun(t, "sign", "--seed-hex", seedHex, "--alg", "dilithium3", "--hash", "sha512", path)
	v, err := document.Decode([]byte(out))
	if err != nil {
		t.Fatalf("Decode signature: %v", err)
	}
	sig, err := keys.ParseSignature(v)
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	if sig.Alg != keys.AlgDilithium3 || sig.Hash != "sha512" {
		t.Fatalf("unexpected signature header: alg=%s hash=%s", sig.Alg, sig.Hash)
	}
	sigPath := writeFile(t, dir, "sig.json", out)
	mustRun(t, "verify", "--sig", sigPath, path)

	if _, _, code := runCLI(t, "sign", "--seed-hex", seedHex, "--alg", "rsa", path); code != 2 {
		t.Fatalf("unknown alg: exit %d", code)
	}
	if _, _, code := runCLI(t, "sign", "--keys-dir", dir, path); code != 2 {
		t.Fatalf("missing signer: exit %d", code)
	}
}

func TestBundleExportImport(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	a := writeFile(t, dir, "a.json", sampleDoc)
	b := writeFile(t, dir, "b.json", `{"k":"v"}`)

	idA := strings.Fields(mustRun(t, "put", "--localfs-dir", src, a))[0]
	idB := strings.Fields(mustRun(t, "put", "--localfs-dir", src, b))[0]

	for _, comp := range []string{"none", "zstd", "lz4", "brotli"} {
		t.Run(comp, func(t *testing.T) {
			archive := filepath.Join(dir, "bundle-"+comp+".tar")
			mustRun(t, "bundle", "export", "--localfs-dir", src, "--out", archive,
				"--compression", comp, "--label", "first="+idA, idA, idB)

			target := filepath.Join(dst, comp)
			out := mustRun(t, "bundle", "import", "--localfs-dir", target, archive)
			if !strings.Contains(out, idA) || !strings.Contains(out, idB) {
				t.Fatalf("import: missing CIDs in %q", out)
			}
			if got := mustRun(t, "get", "--localfs-dir", target, idA); got != mustRun(t, "canon", a) {
				t.Fatalf("get after import: %q", got)
			}
		})
	}

	if _, _, code := runCLI(t, "bundle", "export", "--localfs-dir", src, "--out", filepath.Join(dir, "x"), "--compression", "gzip", idA); code != 2 {
		t.Fatalf("bad compression: exit %d", code)
	}
}

func TestBackends(t *testing.T) {
	out := mustRun(t, "backends")
	for _, name := range []string{"localfs", "sqlite", "mem", "grpc", "ipfs"} {
		if !strings.Contains(out, name) {
			t.Fatalf("backends: %q missing %s", out, name)
		}
	}
}

func TestBlockPutGetHas(t *testing.T) {
	dir := t.TempDir()
	casDir := filepath.Join(dir, "cas")
	path := writeFile(t, dir, "raw.bin", "raw bytes, not a document")

	id := strings.TrimSpace(mustRun(t, "block", "put", "--localfs-dir", casDir, path))
	if want := cidutil.CIDv1RawSHA256([]byte("raw bytes, not a document")); id != want {
		t.Fatalf("block put: got %s want %s", id, want)
	}
	if got := mustRun(t, "block", "get", "--localfs-dir", casDir, id); got != "raw bytes, not a document" {
		t.Fatalf("block get: %q", got)
	}
	if out := mustRun(t, "block", "has", "--localfs-dir", casDir, id); out != "present\n" {
		t.Fatalf("block has: %q", out)
	}

	// A raw block is not a document.
	if _, errOut, code := runCLI(t, "get", "--localfs-dir", casDir, id); code != 1 {
		t.Fatalf("get on raw block: exit %d stderr %q", code, errOut)
	}

	other := cidutil.CIDv1RawSHA256([]byte("missing"))
	if out, _, code := runCLI(t, "block", "has", "--localfs-dir", casDir, other); code != 1 || out != "absent\n" {
		t.Fatalf("block has missing: exit %d out %q", code, out)
	}
}
