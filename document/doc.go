// Package document implements the canonical document model.
//
// A Value is a closed tagged union with exactly seven variants (map, string,
// signed integer, unsigned integer, bool, byte string, list). Values are
// immutable once constructed. Every operation in this package is a pure
// function over Values and is safe for concurrent use.
//
// Hash produces a SHA-256 Digest that is identical for structurally equal
// Values regardless of map construction order. The byte layout fed to the
// hash is fixed (see Hash) and must not change: digests are compared across
// independent implementations.
//
// Decode and Encode map Values to and from JSON text. The mapping is lossy
// for byte strings: Bytes encode as base64 strings and decode back as String.
//
// API stability:
//
// Stable (SemVer-protected):
//   - The hash byte protocol, the type tags, and the Digest text form.
//   - Error Kind values and RuleIDs.
//
// Experimental:
//   - Copy-on-write helpers (With, Without, Append).
package document
