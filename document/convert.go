package document

// Homogeneous list constructors and projections.

// Strings returns a list of string Values.
func Strings(ss []string) Value {
	return listOf(ss, String)
}

// Ints returns a list of signed integer Values.
func Ints(is []int64) Value {
	return listOf(is, Int)
}

// Uints returns a list of unsigned integer Values.
func Uints(us []uint64) Value {
	return listOf(us, Uint)
}

// Bools returns a list of boolean Values.
func Bools(bs []bool) Value {
	return listOf(bs, Bool)
}

// BytesList returns a list of byte-string Values.
func BytesList(bss [][]byte) Value {
	return listOf(bss, Bytes)
}

// Maps returns a list of map Values.
func Maps(ms []map[string]Value) Value {
	return listOf(ms, Map)
}

func listOf[T any](in []T, construct func(T) Value) Value {
	out := make([]Value, len(in))
	for i, e := range in {
		out[i] = construct(e)
	}
	return Value{typ: TypeList, list: out}
}

// AsStrings projects a list of strings.
func (v Value) AsStrings() ([]string, error) {
	return ListOf(v, Value.AsString)
}

// AsInts projects a list of signed integers.
func (v Value) AsInts() ([]int64, error) {
	return ListOf(v, Value.AsInt)
}

// AsUints projects a list of unsigned integers.
func (v Value) AsUints() ([]uint64, error) {
	return ListOf(v, Value.AsUint)
}

// AsBools projects a list of booleans.
func (v Value) AsBools() ([]bool, error) {
	return ListOf(v, Value.AsBool)
}

// AsBytesList projects a list of byte strings.
func (v Value) AsBytesList() ([][]byte, error) {
	return ListOf(v, Value.AsBytes)
}

// AsMaps projects a list of maps.
func (v Value) AsMaps() ([]map[string]Value, error) {
	return ListOf(v, Value.AsMap)
}

// ListOf projects every element of the list v with project. The first
// failing element is reported with its index in the error path.
func ListOf[T any](v Value, project func(Value) (T, error)) ([]T, error) {
	if v.typ != TypeList {
		return nil, mismatch(TypeList, v.typ)
	}
	out := make([]T, len(v.list))
	for i, e := range v.list {
		t, err := project(e)
		if err != nil {
			return nil, PrefixPath(err, IndexSegment(i))
		}
		out[i] = t
	}
	return out, nil
}
