// Package memcas is an in-memory CAS.
//
// It is intended for tests, ephemeral daemons and staging imports. Nothing
// survives process exit.
package memcas

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/cidutil"
	"xdao.co/xdoc/storage"
)

// CAS stores blocks in a map keyed by CID. It is safe for concurrent use.
type CAS struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
}

var _ storage.CAS = (*CAS)(nil)

func New() *CAS {
	return &CAS{blocks: make(map[cid.Cid][]byte)}
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.blocks[id]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	c.blocks[id] = append([]byte(nil), data...)
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	c.mu.RLock()
	b, ok := c.blocks[id]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	c.mu.RLock()
	_, ok := c.blocks[id]
	c.mu.RUnlock()
	return ok, nil
}

// Len returns the number of stored blocks.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// CIDs returns every stored CID in ascending string order.
func (c *CAS) CIDs() []cid.Cid {
	c.mu.RLock()
	out := make([]cid.Cid, 0, len(c.blocks))
	for id := range c.blocks {
		out = append(out, id)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
