// Package keys signs and verifies document digests.
//
// Signatures cover the canonical digest of a document, never its text or
// wire bytes, so a signature survives any re-encoding that preserves the
// document. A Signature is itself a document and can be stored, hashed or
// bundled like any other.
//
// API stability:
//
// Stable:
//   - Pure, deterministic primitives: signer-key formatting, role-seed
//     derivation, SignDigest/VerifyDigest and the Signature document shape.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore and related functions).
package keys
