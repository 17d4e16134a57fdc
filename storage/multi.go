package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/cidutil"
)

// MultiCAS reads from several adapters in a fixed order and writes to the
// first one only.
//
// A block served by a later adapter is checked against its CID before it is
// returned. With ReadRepair set, such a block is also written back to the
// first adapter so the next read is local. Nil adapters are skipped on reads.
type MultiCAS struct {
	Adapters   []CAS
	ReadRepair bool
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 || m.Adapters[0] == nil {
		return cid.Undef, ErrNoBackends
	}
	return m.Adapters[0].Put(ctx, data)
}

func (m MultiCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if len(m.Adapters) == 0 {
		return nil, ErrNoBackends
	}
	b, idx, err := firstHit(ctx, id, len(m.Adapters), func(i int) CAS { return m.Adapters[i] })
	if err != nil {
		return nil, err
	}
	if idx > 0 && m.ReadRepair && m.Adapters[0] != nil {
		if _, err := m.Adapters[0].Put(ctx, b); err != nil {
			return nil, fmt.Errorf("storage: read repair: %w", err)
		}
	}
	return b, nil
}

func (m MultiCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, cas := range m.Adapters {
		if cas == nil {
			continue
		}
		ok, err := cas.Has(ctx, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// firstHit returns the block from the first of n stores that has it, with
// that store's index. Blocks from any store after the first are verified
// against id. Nil stores are skipped.
func firstHit(ctx context.Context, id cid.Cid, n int, at func(int) CAS) ([]byte, int, error) {
	for i := 0; i < n; i++ {
		cas := at(i)
		if cas == nil {
			continue
		}
		b, err := cas.Get(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, i, err
		}
		if i > 0 {
			ok, verr := cidutil.Verify(id, b)
			if verr != nil {
				return nil, i, fmt.Errorf("%w: %v", ErrInvalidCID, verr)
			}
			if !ok {
				return nil, i, fmt.Errorf("%w: fallback store returned bytes for another CID", ErrCIDMismatch)
			}
		}
		return b, i, nil
	}
	return nil, -1, ErrNotFound
}
