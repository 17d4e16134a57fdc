package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/document"
	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/memcas"
	"xdao.co/xdoc/storage/testkit"
)

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{memcas.New(), memcas.New()}}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: memcas.New()},
			{Name: "b", CAS: memcas.New()},
		}}
	})
}

func TestMultiCAS_FallsBackInOrder(t *testing.T) {
	ctx := context.Background()
	first, second := memcas.New(), memcas.New()
	id, err := second.Put(ctx, []byte("only in second"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}}
	got, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "only in second" {
		t.Fatalf("Get: got %q", got)
	}

	if _, err := m.Put(ctx, []byte("new")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if first.Len() != 1 || second.Len() != 1 {
		t.Fatalf("MultiCAS.Put must write only to the first adapter")
	}
}

func TestMultiCAS_NoAdapters(t *testing.T) {
	_, err := storage.MultiCAS{}.Put(context.Background(), []byte("x"))
	if !errors.Is(err, storage.ErrNoBackends) {
		t.Fatalf("got %v want ErrNoBackends", err)
	}
}

// lyingCAS returns a fixed CID for every Put.
type lyingCAS struct {
	storage.CAS
	id cid.Cid
}

func (l lyingCAS) Put(context.Context, []byte) (cid.Cid, error) { return l.id, nil }

func TestReplicatingCAS_DetectsCIDMismatch(t *testing.T) {
	ctx := context.Background()
	other, err := cidutil.CIDv1RawSHA256CID([]byte("other"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "good", CAS: memcas.New()},
		{Name: "liar", CAS: lyingCAS{CAS: memcas.New(), id: other}},
	}}
	_, perBackend, err := r.PutAll(ctx, []byte("payload"))
	if !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("got %v want ErrCIDMismatch", err)
	}
	if perBackend["liar"] != other {
		t.Fatalf("per-backend map should record the mismatching CID")
	}
}

func TestDocuments_RefAndResolve(t *testing.T) {
	ctx := context.Background()
	cas := memcas.New()
	docs := storage.Documents{CAS: cas}

	a := document.MapOf(
		document.Entry{Key: "b", Value: document.Int(2)},
		document.Entry{Key: "a", Value: document.Int(1)},
	)
	b := document.Map(map[string]document.Value{"a": document.Int(1), "b": document.Int(2)})

	refA, err := docs.Put(ctx, a)
	if err != nil {
		t.Fatalf("Put(a): %v", err)
	}
	refB, err := docs.Put(ctx, b)
	if err != nil {
		t.Fatalf("Put(b): %v", err)
	}
	if refA != refB {
		t.Fatalf("equal documents must share a Ref: %s vs %s", refA, refB)
	}
	if cas.Len() != 1 {
		t.Fatalf("equal documents must share one block, got %d", cas.Len())
	}

	wantCID, err := cidutil.DocumentCID(a)
	if err != nil {
		t.Fatalf("DocumentCID: %v", err)
	}
	if refA.CID != wantCID {
		t.Fatalf("CID: got %s want %s", refA.CID, wantCID)
	}

	ok, err := docs.Has(ctx, refA.CID)
	if err != nil || !ok {
		t.Fatalf("Has: ok=%v err=%v", ok, err)
	}

	wrong := refA
	wrong.Digest[0] ^= 0xff
	if _, err := docs.Resolve(ctx, wrong); !errors.Is(err, storage.ErrDigestMismatch) {
		t.Fatalf("Resolve with wrong digest: got %v", err)
	}
}

func TestDocuments_CorruptBlock(t *testing.T) {
	ctx := context.Background()
	cas := memcas.New()
	id, err := cas.Put(ctx, []byte("not cbor"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err = storage.Documents{CAS: cas}.Get(ctx, id)
	if !storage.IsCorrupt(err) {
		t.Fatalf("got %v want ErrCorrupt", err)
	}
	if !document.IsKind(err, document.KindDecode) {
		t.Fatalf("decode cause should be preserved: %v", err)
	}
}

func TestDocuments_InvalidValue(t *testing.T) {
	_, err := storage.Documents{CAS: memcas.New()}.Put(context.Background(), document.Value{})
	if !document.IsKind(err, document.KindInvalid) {
		t.Fatalf("got %v want KindInvalid", err)
	}
}

func TestMultiCAS_SkipsNilAdapters(t *testing.T) {
	ctx := context.Background()
	store := memcas.New()
	id, err := store.Put(ctx, []byte("present"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiCAS{Adapters: []storage.CAS{nil, store}, ReadRepair: true}
	ok, err := m.Has(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Has: ok=%v err=%v", ok, err)
	}
	if _, err := m.Get(ctx, id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := m.Put(ctx, []byte("x")); !errors.Is(err, storage.ErrNoBackends) {
		t.Fatalf("Put with nil first adapter: got %v want ErrNoBackends", err)
	}
}

func TestDocuments_RejectsInvalidUTF8(t *testing.T) {
	cas := memcas.New()
	v := document.MapOf(document.Entry{Key: "k", Value: document.String("\xff")})
	_, err := storage.Documents{CAS: cas}.Put(context.Background(), v)
	if !document.IsKind(err, document.KindInvalid) {
		t.Fatalf("got %v want KindInvalid", err)
	}
	if cas.Len() != 0 {
		t.Fatalf("invalid document must not be stored")
	}
}

func TestMultiCAS_ReadRepair(t *testing.T) {
	ctx := context.Background()
	first, second := memcas.New(), memcas.New()
	id, err := second.Put(ctx, []byte("remote"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}, ReadRepair: true}
	if _, err := m.Get(ctx, id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	ok, err := first.Has(ctx, id)
	if err != nil || !ok {
		t.Fatalf("read repair did not copy the block: ok=%v err=%v", ok, err)
	}
}

// swappingCAS serves fixed bytes for every Get.
type swappingCAS struct {
	storage.CAS
	data []byte
}

func (s swappingCAS) Get(context.Context, cid.Cid) ([]byte, error) { return s.data, nil }

func TestMultiCAS_VerifiesFallbackBytes(t *testing.T) {
	id, err := cidutil.CIDv1RawSHA256CID([]byte("expected"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	m := storage.MultiCAS{Adapters: []storage.CAS{
		memcas.New(),
		swappingCAS{CAS: memcas.New(), data: []byte("something else")},
	}}
	if _, err := m.Get(context.Background(), id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("got %v want ErrCIDMismatch", err)
	}
}

func TestReplicatingCAS_MissingAndRepair(t *testing.T) {
	ctx := context.Background()
	a, b, c := memcas.New(), memcas.New(), memcas.New()
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{
		{Name: "a", CAS: a},
		{Name: "b", CAS: b},
		{Name: "c", CAS: c},
	}}
	id, err := b.Put(ctx, []byte("only in b"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	missing, err := r.Missing(ctx, id)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 2 || missing[0] != "a" || missing[1] != "c" {
		t.Fatalf("Missing: got %v", missing)
	}

	repaired, err := r.Repair(ctx, id)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if len(repaired) != 2 {
		t.Fatalf("Repair: got %v", repaired)
	}
	if missing, _ := r.Missing(ctx, id); len(missing) != 0 {
		t.Fatalf("still missing after repair: %v", missing)
	}
	if repaired, err := r.Repair(ctx, id); err != nil || repaired != nil {
		t.Fatalf("second Repair: got %v err %v", repaired, err)
	}

	absent, _ := cidutil.CIDv1RawSHA256CID([]byte("nowhere"))
	if _, err := r.Repair(ctx, absent); !storage.IsNotFound(err) {
		t.Fatalf("Repair of absent block: got %v", err)
	}
}
