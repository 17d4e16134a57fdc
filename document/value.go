package document

import (
	"sort"
)

// Type identifies the variant held by a Value.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeMap
	TypeString
	TypeInt
	TypeUint
	TypeBool
	TypeBytes
	TypeList
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeMap:
		return "map"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeList:
		return "list"
	default:
		return "invalid"
	}
}

// Tag returns the one-byte hash tag of the variant, or 0 for TypeInvalid.
// Tags are assigned once and never reused.
func (t Type) Tag() byte {
	switch t {
	case TypeMap:
		return 'm'
	case TypeString:
		return 's'
	case TypeInt:
		return 'i'
	case TypeUint:
		return 'u'
	case TypeBool:
		return 'b'
	case TypeBytes:
		return 'x'
	case TypeList:
		return 'a'
	default:
		return 0
	}
}

// TypeForTag is the inverse of Type.Tag.
func TypeForTag(tag byte) (Type, bool) {
	switch tag {
	case 'm':
		return TypeMap, true
	case 's':
		return TypeString, true
	case 'i':
		return TypeInt, true
	case 'u':
		return TypeUint, true
	case 'b':
		return TypeBool, true
	case 'x':
		return TypeBytes, true
	case 'a':
		return TypeList, true
	default:
		return TypeInvalid, false
	}
}

// Value is an immutable document.
//
// The zero Value is not a document; it reports TypeInvalid and is rejected
// by Hash and Encode. Only one payload field is meaningful, selected by typ.
type Value struct {
	typ Type

	str   string
	i     int64
	u     uint64
	b     bool
	bytes []byte
	list  []Value

	// m holds map entries; keys holds the same keys in canonical order.
	m    map[string]Value
	keys []string
}

// Entry is a key/value pair of a map Value.
type Entry struct {
	Key   string
	Value Value
}

// ============================================================
// Constructors
// ============================================================

// Map returns a map Value. The input map is copied.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return newMap(cp)
}

// MapOf returns a map Value built from entries. A later entry replaces an
// earlier one with the same key.
func MapOf(entries ...Entry) Value {
	m := make(map[string]Value, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return newMap(m)
}

// newMap takes ownership of m.
func newMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Go string comparison is bytewise, which is the canonical order.
	sort.Strings(keys)
	return Value{typ: TypeMap, m: m, keys: keys}
}

// String returns a string Value. s should be valid UTF-8; Hash and Encode
// reject a Value holding anything else.
func String(s string) Value {
	return Value{typ: TypeString, str: s}
}

// Int returns a signed integer Value.
func Int(i int64) Value {
	return Value{typ: TypeInt, i: i}
}

// Uint returns an unsigned integer Value. Uint(42) and Int(42) are distinct.
func Uint(u uint64) Value {
	return Value{typ: TypeUint, u: u}
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	return Value{typ: TypeBool, b: b}
}

// Bytes returns a byte-string Value. The input is copied.
func Bytes(b []byte) Value {
	return Value{typ: TypeBytes, bytes: append([]byte{}, b...)}
}

// List returns a list Value. Element order is significant.
func List(values ...Value) Value {
	return Value{typ: TypeList, list: append([]Value{}, values...)}
}

// ============================================================
// Accessors
// ============================================================

// Type returns the variant held by v.
func (v Value) Type() Type {
	return v.typ
}

// IsValid reports whether v is a document (not the zero Value).
func (v Value) IsValid() bool {
	return v.typ != TypeInvalid
}

// Len returns the number of entries of a map, elements of a list, or bytes
// of a string or byte string. It returns 0 for other variants.
func (v Value) Len() int {
	switch v.typ {
	case TypeMap:
		return len(v.m)
	case TypeList:
		return len(v.list)
	case TypeString:
		return len(v.str)
	case TypeBytes:
		return len(v.bytes)
	default:
		return 0
	}
}

// Keys returns the keys of a map in canonical order, or nil.
func (v Value) Keys() []string {
	if v.typ != TypeMap {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Entries returns the entries of a map in canonical order, or nil.
func (v Value) Entries() []Entry {
	if v.typ != TypeMap {
		return nil
	}
	out := make([]Entry, len(v.keys))
	for i, k := range v.keys {
		out[i] = Entry{Key: k, Value: v.m[k]}
	}
	return out
}

// Get returns the map entry for key.
func (v Value) Get(key string) (Value, bool) {
	if v.typ != TypeMap {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Index returns the i-th list element.
func (v Value) Index(i int) (Value, bool) {
	if v.typ != TypeList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// ============================================================
// Projections
// ============================================================

// AsMap returns a copy of the map payload.
func (v Value) AsMap() (map[string]Value, error) {
	if v.typ != TypeMap {
		return nil, mismatch(TypeMap, v.typ)
	}
	out := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		out[k] = e
	}
	return out, nil
}

// AsString returns the string payload.
func (v Value) AsString() (string, error) {
	if v.typ != TypeString {
		return "", mismatch(TypeString, v.typ)
	}
	return v.str, nil
}

// AsInt returns the signed integer payload. It does not convert from Uint.
func (v Value) AsInt() (int64, error) {
	if v.typ != TypeInt {
		return 0, mismatch(TypeInt, v.typ)
	}
	return v.i, nil
}

// AsUint returns the unsigned integer payload. It does not convert from Int.
func (v Value) AsUint() (uint64, error) {
	if v.typ != TypeUint {
		return 0, mismatch(TypeUint, v.typ)
	}
	return v.u, nil
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, error) {
	if v.typ != TypeBool {
		return false, mismatch(TypeBool, v.typ)
	}
	return v.b, nil
}

// AsBytes returns a copy of the byte-string payload.
func (v Value) AsBytes() ([]byte, error) {
	if v.typ != TypeBytes {
		return nil, mismatch(TypeBytes, v.typ)
	}
	return append([]byte{}, v.bytes...), nil
}

// AsList returns a copy of the list payload.
func (v Value) AsList() ([]Value, error) {
	if v.typ != TypeList {
		return nil, mismatch(TypeList, v.typ)
	}
	return append([]Value{}, v.list...), nil
}

// ============================================================
// Copy-on-write
// ============================================================

// With returns a copy of the map v with key set to val.
func (v Value) With(key string, val Value) (Value, error) {
	if v.typ != TypeMap {
		return Value{}, mismatch(TypeMap, v.typ)
	}
	m := make(map[string]Value, len(v.m)+1)
	for k, e := range v.m {
		m[k] = e
	}
	m[key] = val
	return newMap(m), nil
}

// Without returns a copy of the map v with key removed.
func (v Value) Without(key string) (Value, error) {
	if v.typ != TypeMap {
		return Value{}, mismatch(TypeMap, v.typ)
	}
	m := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		if k != key {
			m[k] = e
		}
	}
	return newMap(m), nil
}

// Append returns a copy of the list v with vals appended.
func (v Value) Append(vals ...Value) (Value, error) {
	if v.typ != TypeList {
		return Value{}, mismatch(TypeList, v.typ)
	}
	out := make([]Value, 0, len(v.list)+len(vals))
	out = append(out, v.list...)
	out = append(out, vals...)
	return Value{typ: TypeList, list: out}, nil
}
