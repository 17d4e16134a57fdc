// Package cidutil derives content identifiers for stored blocks.
//
// Every block in this repo is addressed by a CIDv1 with the "raw" multicodec
// and a sha2-256 multihash of the stored bytes. For documents the stored
// bytes are the wire encoding, so the block CID and the structural document
// digest are different values over different inputs.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/xdoc/document"
	"xdao.co/xdoc/wire"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verify reports whether data hashes to id under id's own prefix.
func Verify(id cid.Cid, data []byte) (bool, error) {
	if !id.Defined() {
		return false, fmt.Errorf("cidutil: undefined cid")
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return false, err
	}
	return got.Equals(id), nil
}

// DocumentCID returns the block CID under which v is stored: the CID of its
// wire encoding.
func DocumentCID(v document.Value) (cid.Cid, error) {
	b, err := wire.Marshal(v)
	if err != nil {
		return cid.Undef, err
	}
	return CIDv1RawSHA256CID(b)
}
