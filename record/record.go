// Package record maps Go structs to and from documents using reflection.
//
// It is one implementation of the record contract defined by
// document.Marshaler and document.Unmarshaler: a struct becomes a map whose
// keys are the struct's field names and whose values are the per-field
// documents. Hand-written or generated implementations of the two interfaces
// are equally valid; types that implement them are used as-is.
//
// Field keys are the Go field names verbatim. A `doc:"name"` tag overrides
// the key and `doc:"-"` skips the field. Unexported fields are ignored.
//
// Supported field types:
//
//	string                      String
//	int, int8 ... int64         Int
//	uint, uint8 ... uint64      Uint
//	bool                        Bool
//	[]byte, [N]byte             Bytes
//	document.Value              as-is
//	struct                      Map (recursively)
//	[]T, [N]T                   List
//	map[string]T                Map
//	*T                          T (nil is rejected)
//
// Nil slices and maps marshal as empty lists and maps. Nil pointers and nil
// interfaces are rejected: documents have no null.
package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"xdao.co/xdoc/document"
)

// Stable rule identifiers for reflection failures.
const (
	RuleUnsupported = "DOC-REC-101"
	RuleNil         = "DOC-REC-102"
	RuleTarget      = "DOC-REC-103"
	RuleLength      = "DOC-REC-104"
)

var (
	// ErrUnsupported is the cause of errors for types with no document form.
	ErrUnsupported = errors.New("record: unsupported type")
	// ErrNil is the cause of errors for nil pointers and interfaces.
	ErrNil = errors.New("record: nil is not representable")
)

var (
	valueType       = reflect.TypeOf(document.Value{})
	marshalerType   = reflect.TypeOf((*document.Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*document.Unmarshaler)(nil)).Elem()
)

// Marshal converts rec, a struct or pointer to struct, to a map Value.
func Marshal(rec any) (document.Value, error) {
	if rec == nil {
		return document.Value{}, nilError()
	}
	rv := reflect.ValueOf(rec)
	base := rv
	for base.Kind() == reflect.Pointer {
		if base.IsNil() {
			return document.Value{}, nilError()
		}
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct && !rv.Type().Implements(marshalerType) {
		return document.Value{}, unsupported(rv.Type())
	}
	return marshalValue(rv)
}

// Unmarshal populates the struct pointed to by out from v.
//
// It fails with document.KindNotAMap unless v is a map, with
// document.KindMissingField naming the first absent field, with
// document.KindTypeMismatch when an entry holds the wrong variant, and with
// document.KindRange when an integer does not fit its field.
func Unmarshal(v document.Value, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return document.NewError(document.KindInvalid, RuleTarget, fmt.Sprintf("record: Unmarshal needs a non-nil pointer, got %T", out))
	}
	return unmarshalValue(v, rv.Elem())
}

// ============================================================
// Marshal
// ============================================================

func marshalValue(rv reflect.Value) (document.Value, error) {
	if !rv.IsValid() {
		return document.Value{}, nilError()
	}
	if rv.Type() == valueType {
		v := rv.Interface().(document.Value)
		if !v.IsValid() {
			return document.Value{}, document.NewError(document.KindInvalid, document.RuleInvalidValue, "invalid (zero) value")
		}
		return v, nil
	}
	if rv.Type().Implements(marshalerType) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return document.Value{}, nilError()
		}
		return rv.Interface().(document.Marshaler).MarshalDocument(), nil
	}
	if rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(marshalerType) {
		return rv.Addr().Interface().(document.Marshaler).MarshalDocument(), nil
	}

	switch rv.Kind() {
	case reflect.String:
		return document.String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return document.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return document.Uint(rv.Uint()), nil
	case reflect.Bool:
		return document.Bool(rv.Bool()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return document.Bytes(rv.Bytes()), nil
		}
		return marshalSequence(rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return document.Bytes(b), nil
		}
		return marshalSequence(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return document.Value{}, unsupported(rv.Type())
		}
		m := make(map[string]document.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			sub, err := marshalValue(iter.Value())
			if err != nil {
				return document.Value{}, document.PrefixPath(err, document.KeySegment(k))
			}
			m[k] = sub
		}
		return document.Map(m), nil
	case reflect.Struct:
		fields := cachedFields(rv.Type())
		m := make(map[string]document.Value, len(fields))
		for _, f := range fields {
			sub, err := marshalValue(rv.Field(f.index))
			if err != nil {
				return document.Value{}, document.PrefixPath(err, document.KeySegment(f.key))
			}
			m[f.key] = sub
		}
		return document.Map(m), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return document.Value{}, nilError()
		}
		return marshalValue(rv.Elem())
	default:
		return document.Value{}, unsupported(rv.Type())
	}
}

func marshalSequence(rv reflect.Value) (document.Value, error) {
	elems := make([]document.Value, rv.Len())
	for i := range elems {
		sub, err := marshalValue(rv.Index(i))
		if err != nil {
			return document.Value{}, document.PrefixPath(err, document.IndexSegment(i))
		}
		elems[i] = sub
	}
	return document.List(elems...), nil
}

// ============================================================
// Unmarshal
// ============================================================

func unmarshalValue(v document.Value, dst reflect.Value) error {
	if dst.CanAddr() && reflect.PointerTo(dst.Type()).Implements(unmarshalerType) {
		return dst.Addr().Interface().(document.Unmarshaler).UnmarshalDocument(v)
	}
	if dst.Type() == valueType {
		dst.Set(reflect.ValueOf(v))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		s, err := v.AsString()
		if err != nil {
			return err
		}
		dst.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := v.AsInt()
		if err != nil {
			return err
		}
		if dst.OverflowInt(i) {
			return overflow(fmt.Sprint(i), dst.Type())
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := v.AsUint()
		if err != nil {
			return err
		}
		if dst.OverflowUint(u) {
			return overflow(fmt.Sprint(u), dst.Type())
		}
		dst.SetUint(u)
	case reflect.Bool:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			b, err := v.AsBytes()
			if err != nil {
				return err
			}
			dst.SetBytes(b)
			return nil
		}
		elems, err := v.AsList()
		if err != nil {
			return err
		}
		s := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
		for i, e := range elems {
			if err := unmarshalValue(e, s.Index(i)); err != nil {
				return document.PrefixPath(err, document.IndexSegment(i))
			}
		}
		dst.Set(s)
	case reflect.Array:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			b, err := v.AsBytes()
			if err != nil {
				return err
			}
			if len(b) != dst.Len() {
				return lengthMismatch(len(b), dst.Type())
			}
			reflect.Copy(dst, reflect.ValueOf(b))
			return nil
		}
		elems, err := v.AsList()
		if err != nil {
			return err
		}
		if len(elems) != dst.Len() {
			return lengthMismatch(len(elems), dst.Type())
		}
		for i, e := range elems {
			if err := unmarshalValue(e, dst.Index(i)); err != nil {
				return document.PrefixPath(err, document.IndexSegment(i))
			}
		}
	case reflect.Map:
		if dst.Type().Key().Kind() != reflect.String {
			return unsupported(dst.Type())
		}
		if v.Type() != document.TypeMap {
			_, err := v.AsMap()
			return err
		}
		m := reflect.MakeMapWithSize(dst.Type(), v.Len())
		for _, e := range v.Entries() {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := unmarshalValue(e.Value, elem); err != nil {
				return document.PrefixPath(err, document.KeySegment(e.Key))
			}
			m.SetMapIndex(reflect.ValueOf(e.Key).Convert(dst.Type().Key()), elem)
		}
		dst.Set(m)
	case reflect.Struct:
		r, err := document.AsRecord(v, dst.Type().String())
		if err != nil {
			return err
		}
		for _, f := range cachedFields(dst.Type()) {
			fv, err := r.Field(f.key)
			if err != nil {
				return err
			}
			if err := unmarshalValue(fv, dst.Field(f.index)); err != nil {
				return document.PrefixPath(err, document.KeySegment(f.key))
			}
		}
	case reflect.Pointer:
		p := reflect.New(dst.Type().Elem())
		if err := unmarshalValue(v, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
	default:
		return unsupported(dst.Type())
	}
	return nil
}

// ============================================================
// Fields
// ============================================================

type field struct {
	key   string
	index int
}

var fieldCache sync.Map // reflect.Type -> []field

func cachedFields(t reflect.Type) []field {
	if f, ok := fieldCache.Load(t); ok {
		return f.([]field)
	}
	f, _ := fieldCache.LoadOrStore(t, typeFields(t))
	return f.([]field)
}

func typeFields(t reflect.Type) []field {
	out := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		key := sf.Name
		if tag, ok := sf.Tag.Lookup("doc"); ok {
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" {
				continue
			}
			if name != "" {
				key = name
			}
		}
		out = append(out, field{key: key, index: i})
	}
	return out
}

// ============================================================
// Errors
// ============================================================

func nilError() error {
	return document.WrapError(document.KindInvalid, RuleNil, ErrNil.Error(), ErrNil)
}

func unsupported(t reflect.Type) error {
	return document.WrapError(document.KindInvalid, RuleUnsupported, fmt.Sprintf("record: unsupported type %s", t), ErrUnsupported)
}

func overflow(n string, t reflect.Type) error {
	return document.NewError(document.KindRange, document.RuleIntegerOverflow, fmt.Sprintf("%s overflows %s", n, t))
}

func lengthMismatch(n int, t reflect.Type) error {
	return document.NewError(document.KindRange, RuleLength, fmt.Sprintf("length %d does not fit %s", n, t))
}
