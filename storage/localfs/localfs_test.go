package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cas.Put(ctx, orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err = cas.Get(ctx, id)
	if err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not repair or overwrite the corrupted object.
	_, err = cas.Put(ctx, orig)
	if err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	wantID, err := cidutil.CIDv1RawSHA256CID(orig)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestLocalFS_Walk(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	want := map[cid.Cid]bool{}
	for _, s := range []string{"one", "two", "three"} {
		id, err := cas.Put(ctx, []byte(s))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		want[id] = true
	}
	if err := os.WriteFile(filepath.Join(cas.Root(), "_stray"), []byte("stray"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	seen := 0
	err = cas.Walk(ctx, func(id cid.Cid) error {
		if !want[id] {
			t.Fatalf("unexpected CID %s", id)
		}
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if seen != len(want) {
		t.Fatalf("Walk: saw %d want %d", seen, len(want))
	}
}
