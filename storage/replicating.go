package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/cidutil"
)

// NamedCAS pairs a CAS with a stable backend name for reporting.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes every block to all backends and reads from the first
// backend that has it.
//
// Every backend must return the CID computed locally from the bytes, or the
// write fails with ErrCIDMismatch.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes data to all backends and returns the expected CID together
// with the CID each backend reported, keyed by backend name.
func (r ReplicatingCAS) PutAll(ctx context.Context, data []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, ErrNoBackends
	}

	got := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		id, err := b.CAS.Put(ctx, data)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		got[b.Name] = id
		if id != want {
			return cid.Undef, got, fmt.Errorf("%w: backend %q returned %s, want %s", ErrCIDMismatch, b.Name, id, want)
		}
	}
	return want, got, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(ctx, data)
	return id, err
}

func (r ReplicatingCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	b, _, err := firstHit(ctx, id, len(r.Backends), func(i int) CAS { return r.Backends[i].CAS })
	return b, err
}

func (r ReplicatingCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		ok, err := b.CAS.Has(ctx, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Missing lists, in backend order, the names of backends that lack id.
func (r ReplicatingCAS) Missing(ctx context.Context, id cid.Cid) ([]string, error) {
	var missing []string
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		ok, err := b.CAS.Has(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		if !ok {
			missing = append(missing, b.Name)
		}
	}
	return missing, nil
}

// Repair copies id to every backend that lacks it and returns their names.
// It fails with ErrNotFound when no backend holds the block.
func (r ReplicatingCAS) Repair(ctx context.Context, id cid.Cid) ([]string, error) {
	missing, err := r.Missing(ctx, id)
	if err != nil || len(missing) == 0 {
		return nil, err
	}
	b, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok, err := cidutil.Verify(id, b); err != nil || !ok {
		return nil, fmt.Errorf("%w: source block does not match %s", ErrCIDMismatch, id)
	}

	lacking := make(map[string]bool, len(missing))
	for _, name := range missing {
		lacking[name] = true
	}
	for _, nb := range r.Backends {
		if nb.CAS == nil || !lacking[nb.Name] {
			continue
		}
		got, err := nb.CAS.Put(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("storage: backend %q: %w", nb.Name, err)
		}
		if got != id {
			return nil, fmt.Errorf("%w: backend %q returned %s", ErrCIDMismatch, nb.Name, got)
		}
	}
	return missing, nil
}
