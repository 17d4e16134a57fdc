package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/xdoc/document"
	"xdao.co/xdoc/wire"
)

// Ref locates a stored document.
//
// CID addresses the stored wire bytes; Digest is the canonical structural
// hash of the document itself. Two equal documents always share both.
type Ref struct {
	CID    cid.Cid
	Digest document.Digest
}

func (r Ref) String() string {
	return r.CID.String() + " " + r.Digest.String()
}

// Documents stores document Values as wire-encoded blocks in a CAS.
type Documents struct {
	CAS CAS
}

// Put encodes v and stores it.
func (d Documents) Put(ctx context.Context, v document.Value) (Ref, error) {
	if d.CAS == nil {
		return Ref{}, ErrNoBackends
	}
	digest, err := document.Hash(v)
	if err != nil {
		return Ref{}, err
	}
	b, err := wire.Marshal(v)
	if err != nil {
		return Ref{}, err
	}
	id, err := d.CAS.Put(ctx, b)
	if err != nil {
		return Ref{}, err
	}
	return Ref{CID: id, Digest: digest}, nil
}

// Get loads and decodes the document stored under id.
//
// A block that is not valid wire data yields an error wrapping ErrCorrupt.
func (d Documents) Get(ctx context.Context, id cid.Cid) (document.Value, error) {
	if d.CAS == nil {
		return document.Value{}, ErrNoBackends
	}
	b, err := d.CAS.Get(ctx, id)
	if err != nil {
		return document.Value{}, err
	}
	v, err := wire.Unmarshal(b)
	if err != nil {
		return document.Value{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, id, err)
	}
	return v, nil
}

// Resolve loads ref.CID and checks that the decoded document hashes to
// ref.Digest.
func (d Documents) Resolve(ctx context.Context, ref Ref) (document.Value, error) {
	v, err := d.Get(ctx, ref.CID)
	if err != nil {
		return document.Value{}, err
	}
	got, err := document.Hash(v)
	if err != nil {
		return document.Value{}, err
	}
	if got != ref.Digest {
		return document.Value{}, fmt.Errorf("%w: want %s, got %s", ErrDigestMismatch, ref.Digest, got)
	}
	return v, nil
}

// Has reports whether a block exists under id.
func (d Documents) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if d.CAS == nil {
		return false, ErrNoBackends
	}
	return d.CAS.Has(ctx, id)
}

// IsCorrupt reports whether err came from a stored block that did not decode.
func IsCorrupt(err error) bool { return errors.Is(err, ErrCorrupt) }
