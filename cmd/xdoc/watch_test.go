package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func waitFor(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q; output so far:\n%s", want, buf.String())
}

func TestWatch_RehashesOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", sampleDoc)
	writeFile(t, dir, "ignored.txt", "x")

	ctx, cancel := context.WithCancel(context.Background())
	var out, errOut syncBuffer
	done := make(chan error, 1)
	go func() { done <- watch(ctx, dir, "**/*.json", &out, &errOut) }()

	waitFor(t, &out, digestOf(t, sampleDoc).String()+"  a.json")

	writeFile(t, dir, "sub/b.json", `{"k":"v"}`)
	waitFor(t, &out, digestOf(t, `{"k":"v"}`).String()+"  sub/b.json")

	changed := `{"title":"changed"}`
	writeFile(t, dir, "a.json", changed)
	waitFor(t, &out, digestOf(t, changed).String()+"  a.json")

	if err := os.Remove(filepath.Join(dir, "a.json")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	waitFor(t, &out, "removed  a.json")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
	if strings.Contains(out.String(), "ignored.txt") {
		t.Fatalf("non-matching file was hashed:\n%s", out.String())
	}
}
