package document

import "bytes"

// Equal reports whether a and b hold the same variant with recursively equal
// payloads. Map comparison ignores construction order; list comparison does
// not.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case TypeString:
		return a.str == b.str
	case TypeInt:
		return a.i == b.i
	case TypeUint:
		return a.u == b.u
	case TypeBool:
		return a.b == b.b
	case TypeBytes:
		return bytes.Equal(a.bytes, b.bytes)
	case TypeList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Equal reports whether v and o are structurally equal.
func (v Value) Equal(o Value) bool {
	return Equal(v, o)
}
