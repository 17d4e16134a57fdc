package document

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"unicode/utf8"
)

// Hash returns the canonical digest of v.
//
// Every subtree is hashed with its own SHA-256 context. The bytes fed per
// variant are:
//
//	String  's' || utf8 bytes
//	Int     'i' || 8-byte big-endian two's complement
//	Uint    'u' || 8-byte big-endian
//	Bool    'b' || 0x01 | 0x00
//	Bytes   'x' || raw bytes
//	List    'a' || H(e0) || H(e1) || ...             (no per-element tag)
//	Map     for each key in ascending byte order:
//	        's' || key bytes || tag(value) || H(value)   (no leading 'm')
//
// The map/list asymmetry is part of the protocol; digests stay compatible
// with documents hashed elsewhere only if it is kept.
//
// Hash fails only when v is not a well-formed document: it contains a zero
// Value, a string or key that is not valid UTF-8, or nesting beyond MaxDepth.
func Hash(v Value) (Digest, error) {
	return hashValue(v, 0)
}

func hashValue(v Value, depth int) (Digest, error) {
	var d Digest
	if (v.typ == TypeMap || v.typ == TypeList) && depth >= MaxDepth {
		return d, tooDeep()
	}
	h := sha256.New()
	switch v.typ {
	case TypeMap:
		for _, k := range v.keys {
			if !utf8.ValidString(k) {
				return d, PrefixPath(invalidUTF8("map key"), KeySegment(k))
			}
			e := v.m[k]
			sub, err := hashValue(e, depth+1)
			if err != nil {
				return d, PrefixPath(err, KeySegment(k))
			}
			_, _ = h.Write([]byte{TypeString.Tag()})
			_, _ = io.WriteString(h, k)
			_, _ = h.Write([]byte{e.typ.Tag()})
			_, _ = h.Write(sub[:])
		}
	case TypeString:
		if !utf8.ValidString(v.str) {
			return d, invalidUTF8("string")
		}
		_, _ = h.Write([]byte{TypeString.Tag()})
		_, _ = io.WriteString(h, v.str)
	case TypeInt:
		var buf [9]byte
		buf[0] = TypeInt.Tag()
		binary.BigEndian.PutUint64(buf[1:], uint64(v.i))
		_, _ = h.Write(buf[:])
	case TypeUint:
		var buf [9]byte
		buf[0] = TypeUint.Tag()
		binary.BigEndian.PutUint64(buf[1:], v.u)
		_, _ = h.Write(buf[:])
	case TypeBool:
		flag := byte(0x00)
		if v.b {
			flag = 0x01
		}
		_, _ = h.Write([]byte{TypeBool.Tag(), flag})
	case TypeBytes:
		_, _ = h.Write([]byte{TypeBytes.Tag()})
		_, _ = h.Write(v.bytes)
	case TypeList:
		_, _ = h.Write([]byte{TypeList.Tag()})
		for i, e := range v.list {
			sub, err := hashValue(e, depth+1)
			if err != nil {
				return d, PrefixPath(err, IndexSegment(i))
			}
			_, _ = h.Write(sub[:])
		}
	default:
		return d, invalidValue()
	}
	h.Sum(d[:0])
	return d, nil
}
