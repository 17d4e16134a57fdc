package document

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample is a hand-written implementation of the record contract covering
// every primitive and a list of each.
type sample struct {
	Map        map[string]Value
	String     string
	I64        int64
	U64        uint64
	Bool       bool
	Bytes      []byte
	MapArray   []map[string]Value
	StringArr  []string
	I64Array   []int64
	U64Array   []uint64
	BoolArray  []bool
	BytesArray [][]byte
}

var (
	_ Marshaler   = sample{}
	_ Unmarshaler = (*sample)(nil)
)

func (s sample) MarshalDocument() Value {
	return Map(map[string]Value{
		"map":          Map(s.Map),
		"string":       String(s.String),
		"i64":          Int(s.I64),
		"u64":          Uint(s.U64),
		"bool":         Bool(s.Bool),
		"bytes":        Bytes(s.Bytes),
		"map_array":    Maps(s.MapArray),
		"string_array": Strings(s.StringArr),
		"i64_array":    Ints(s.I64Array),
		"u64_array":    Uints(s.U64Array),
		"bool_array":   Bools(s.BoolArray),
		"bytes_array":  BytesList(s.BytesArray),
	})
}

func (s *sample) UnmarshalDocument(v Value) error {
	r, err := AsRecord(v, "sample")
	if err != nil {
		return err
	}
	var out sample
	if out.Map, err = Field(r, "map", Value.AsMap); err != nil {
		return err
	}
	if out.String, err = Field(r, "string", Value.AsString); err != nil {
		return err
	}
	if out.I64, err = Field(r, "i64", Value.AsInt); err != nil {
		return err
	}
	if out.U64, err = Field(r, "u64", Value.AsUint); err != nil {
		return err
	}
	if out.Bool, err = Field(r, "bool", Value.AsBool); err != nil {
		return err
	}
	if out.Bytes, err = Field(r, "bytes", Value.AsBytes); err != nil {
		return err
	}
	if out.MapArray, err = Field(r, "map_array", Value.AsMaps); err != nil {
		return err
	}
	if out.StringArr, err = Field(r, "string_array", Value.AsStrings); err != nil {
		return err
	}
	if out.I64Array, err = Field(r, "i64_array", Value.AsInts); err != nil {
		return err
	}
	if out.U64Array, err = Field(r, "u64_array", Value.AsUints); err != nil {
		return err
	}
	if out.BoolArray, err = Field(r, "bool_array", Value.AsBools); err != nil {
		return err
	}
	if out.BytesArray, err = Field(r, "bytes_array", Value.AsBytesList); err != nil {
		return err
	}
	*s = out
	return nil
}

func newSample() sample {
	return sample{
		Map:        map[string]Value{"nested": Int(1)},
		String:     "Hello",
		I64:        42,
		U64:        42,
		Bool:       true,
		Bytes:      []byte{1, 2, 3, 4},
		MapArray:   []map[string]Value{{}},
		StringArr:  []string{"Hello"},
		I64Array:   []int64{42},
		U64Array:   []uint64{42},
		BoolArray:  []bool{true},
		BytesArray: [][]byte{{1, 2, 3, 4}},
	}
}

func equalSample(t *testing.T, want, got sample) {
	t.Helper()
	assert.True(t, Equal(Map(want.Map), Map(got.Map)))
	assert.Equal(t, want.String, got.String)
	assert.Equal(t, want.I64, got.I64)
	assert.Equal(t, want.U64, got.U64)
	assert.Equal(t, want.Bool, got.Bool)
	assert.True(t, bytes.Equal(want.Bytes, got.Bytes))
	assert.True(t, Equal(Maps(want.MapArray), Maps(got.MapArray)))
	assert.Equal(t, want.StringArr, got.StringArr)
	assert.Equal(t, want.I64Array, got.I64Array)
	assert.Equal(t, want.U64Array, got.U64Array)
	assert.Equal(t, want.BoolArray, got.BoolArray)
	assert.Equal(t, want.BytesArray, got.BytesArray)
}

func TestRecord_DirectRoundTrip(t *testing.T) {
	in := newSample()
	doc := in.MarshalDocument()
	assert.Equal(t, TypeMap, doc.Type())

	var out sample
	require.NoError(t, out.UnmarshalDocument(doc))
	equalSample(t, in, out)
}

func TestRecord_MissingFieldNamesKey(t *testing.T) {
	doc, err := newSample().MarshalDocument().Without("u64_array")
	require.NoError(t, err)

	var out sample
	err = out.UnmarshalDocument(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMissingField))
	assert.Equal(t, RuleMissingField, RuleID(err))
	assert.Equal(t, "u64_array", PathOf(err))
	assert.Contains(t, err.Error(), `"u64_array"`)
}

func TestRecord_NotAMap(t *testing.T) {
	var out sample
	err := out.UnmarshalDocument(List())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotAMap))
}

func TestRecord_FieldTypeMismatchCarriesPath(t *testing.T) {
	doc, err := newSample().MarshalDocument().With("i64_array", List(Int(1), String("two")))
	require.NoError(t, err)

	var out sample
	err = out.UnmarshalDocument(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTypeMismatch))
	assert.Equal(t, "i64_array[1]", PathOf(err))
}

func TestRecord_TextRoundTrip(t *testing.T) {
	in := newSample()
	in.U64 = 1 << 63
	in.U64Array = []uint64{1<<64 - 1}

	text, err := Encode(in.MarshalDocument())
	require.NoError(t, err)
	doc, err := Decode(text)
	require.NoError(t, err)

	// Bytes fields do not survive text: they come back as base64 strings.
	var out sample
	err = out.UnmarshalDocument(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTypeMismatch))
	assert.Equal(t, "bytes", PathOf(err))
	got, _ := doc.Get("bytes")
	assert.True(t, Equal(String("AQIDBA=="), got))

	doc, err = doc.With("bytes", Bytes(in.Bytes))
	require.NoError(t, err)
	doc, err = doc.With("bytes_array", BytesList(in.BytesArray))
	require.NoError(t, err)
	require.NoError(t, out.UnmarshalDocument(doc))
	equalSample(t, in, out)
}
