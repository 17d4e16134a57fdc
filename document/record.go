package document

import "fmt"

// Marshaler is implemented by record types that convert themselves to a
// document. MarshalDocument returns a map whose keys are the record's field
// names and whose values are the per-field Values.
type Marshaler interface {
	MarshalDocument() Value
}

// Unmarshaler is implemented by record types that populate themselves from a
// document. UnmarshalDocument must fail with KindNotAMap unless v is a map,
// and with KindMissingField naming the key when a field is absent.
//
// AsRecord and Field implement both checks.
type Unmarshaler interface {
	UnmarshalDocument(v Value) error
}

// Record is a read-only view of a map Value used while populating a typed
// record. Lookups are by key only.
type Record struct {
	name string
	v    Value
}

// AsRecord checks that v is a map. name labels the record type in errors.
func AsRecord(v Value, name string) (Record, error) {
	if v.typ != TypeMap {
		return Record{}, &Error{
			Kind:    KindNotAMap,
			RuleID:  RuleNotAMap,
			Want:    TypeMap,
			Got:     v.typ,
			Message: fmt.Sprintf("%s: expected map, got %s", name, v.typ),
		}
	}
	return Record{name: name, v: v}, nil
}

// Name returns the record label passed to AsRecord.
func (r Record) Name() string {
	return r.name
}

// Has reports whether the record has an entry for key.
func (r Record) Has(key string) bool {
	_, ok := r.v.m[key]
	return ok
}

// Field returns the entry for key, or a KindMissingField error naming it.
func (r Record) Field(key string) (Value, error) {
	e, ok := r.v.m[key]
	if !ok {
		return Value{}, &Error{
			Kind:    KindMissingField,
			RuleID:  RuleMissingField,
			Path:    KeySegment(key),
			Message: fmt.Sprintf("%s: missing field %q", r.name, key),
		}
	}
	return e, nil
}

// Field looks up key in r and projects it with project, e.g.
//
//	name, err := document.Field(r, "name", document.Value.AsString)
//
// A projection failure carries key in its path.
func Field[T any](r Record, key string, project func(Value) (T, error)) (T, error) {
	var zero T
	e, err := r.Field(key)
	if err != nil {
		return zero, err
	}
	t, err := project(e)
	if err != nil {
		return zero, PrefixPath(err, KeySegment(key))
	}
	return t, nil
}
