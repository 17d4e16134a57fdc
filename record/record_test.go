package record

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/xdoc/document"
	"xdao.co/xdoc/wire"
)

type inner struct {
	Name string
	Tags []string
}

type outer struct {
	ID       uint64 `doc:"id"`
	Count    int32
	Enabled  bool
	Payload  []byte
	Checksum [4]byte
	Inner    inner
	Children []inner
	Labels   map[string]string
	Extra    document.Value
	Ptr      *inner
	Skipped  string `doc:"-"`
	private  int
}

func newOuter() outer {
	return outer{
		ID:       1<<64 - 1,
		Count:    -7,
		Enabled:  true,
		Payload:  []byte{0xde, 0xad},
		Checksum: [4]byte{1, 2, 3, 4},
		Inner:    inner{Name: "a", Tags: []string{"x", "y"}},
		Children: []inner{{Name: "c1", Tags: []string{}}, {Name: "c2", Tags: []string{"z"}}},
		Labels:   map[string]string{"env": "prod", "tier": "1"},
		Extra:    document.List(document.Int(1), document.Bool(false)),
		Ptr:      &inner{Name: "p", Tags: []string{}},
		Skipped:  "ignored",
		private:  3,
	}
}

func TestMarshal_FieldKeysAndTypes(t *testing.T) {
	v, err := Marshal(newOuter())
	require.NoError(t, err)
	require.Equal(t, document.TypeMap, v.Type())

	assert.Equal(t,
		[]string{"Checksum", "Children", "Count", "Enabled", "Extra", "Inner", "Labels", "Payload", "Ptr", "id"},
		v.Keys())

	id, _ := v.Get("id")
	assert.True(t, document.Equal(document.Uint(math.MaxUint64), id))
	count, _ := v.Get("Count")
	assert.True(t, document.Equal(document.Int(-7), count))
	sum, _ := v.Get("Checksum")
	assert.True(t, document.Equal(document.Bytes([]byte{1, 2, 3, 4}), sum))
	in, _ := v.Get("Inner")
	want := document.MapOf(
		document.Entry{Key: "Name", Value: document.String("a")},
		document.Entry{Key: "Tags", Value: document.Strings([]string{"x", "y"})},
	)
	assert.True(t, document.Equal(want, in))
}

func TestMarshal_NilSliceAndMapAreEmpty(t *testing.T) {
	v, err := Marshal(struct {
		L []int64
		M map[string]bool
	}{})
	require.NoError(t, err)

	l, _ := v.Get("L")
	assert.True(t, document.Equal(document.List(), l))
	m, _ := v.Get("M")
	assert.True(t, document.Equal(document.MapOf(), m))
}

func TestMarshal_RejectsNil(t *testing.T) {
	_, err := Marshal(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNil))

	var p *outer
	_, err = Marshal(p)
	assert.True(t, errors.Is(err, ErrNil))

	o := newOuter()
	o.Ptr = nil
	_, err = Marshal(o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNil))
	assert.Equal(t, "Ptr", document.PathOf(err))
}

func TestMarshal_RejectsUnsupported(t *testing.T) {
	_, err := Marshal(42)
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Marshal(struct{ F float64 }{1.5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.Equal(t, "F", document.PathOf(err))

	_, err = Marshal(struct{ M map[int]string }{})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestRoundTrip(t *testing.T) {
	in := newOuter()
	v, err := Marshal(&in)
	require.NoError(t, err)

	var out outer
	require.NoError(t, Unmarshal(v, &out))

	in.Skipped, in.private = "", 0
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Count, out.Count)
	assert.Equal(t, in.Enabled, out.Enabled)
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, in.Checksum, out.Checksum)
	assert.Equal(t, in.Inner, out.Inner)
	assert.Equal(t, in.Children, out.Children)
	assert.Equal(t, in.Labels, out.Labels)
	assert.True(t, document.Equal(in.Extra, out.Extra))
	assert.Equal(t, in.Ptr, out.Ptr)
	assert.Empty(t, out.Skipped)
}

func TestRoundTrip_ThroughWire(t *testing.T) {
	in := newOuter()
	v, err := Marshal(in)
	require.NoError(t, err)

	b, err := wire.Marshal(v)
	require.NoError(t, err)
	back, err := wire.Unmarshal(b)
	require.NoError(t, err)

	var out outer
	require.NoError(t, Unmarshal(back, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Payload, out.Payload)
	assert.Equal(t, in.Children, out.Children)
}

func TestUnmarshal_MissingField(t *testing.T) {
	v, err := Marshal(newOuter())
	require.NoError(t, err)
	v, err = v.Without("Labels")
	require.NoError(t, err)

	var out outer
	err = Unmarshal(v, &out)
	require.Error(t, err)
	assert.True(t, document.IsKind(err, document.KindMissingField))
	assert.Equal(t, "Labels", document.PathOf(err))
}

func TestUnmarshal_NestedMismatchPath(t *testing.T) {
	v, err := Marshal(newOuter())
	require.NoError(t, err)
	bad := document.List(
		document.MapOf(
			document.Entry{Key: "Name", Value: document.String("ok")},
			document.Entry{Key: "Tags", Value: document.List()},
		),
		document.MapOf(
			document.Entry{Key: "Name", Value: document.String("bad")},
			document.Entry{Key: "Tags", Value: document.List(document.Int(3))},
		),
	)
	v, err = v.With("Children", bad)
	require.NoError(t, err)

	var out outer
	err = Unmarshal(v, &out)
	require.Error(t, err)
	assert.True(t, document.IsKind(err, document.KindTypeMismatch))
	assert.Equal(t, "Children[1].Tags[0]", document.PathOf(err))
}

func TestUnmarshal_NotAMap(t *testing.T) {
	var out outer
	err := Unmarshal(document.String("nope"), &out)
	require.Error(t, err)
	assert.True(t, document.IsKind(err, document.KindNotAMap))
}

func TestUnmarshal_IntegerOverflow(t *testing.T) {
	v := document.MapOf(document.Entry{Key: "N", Value: document.Int(300)})
	var out struct{ N int8 }
	err := Unmarshal(v, &out)
	require.Error(t, err)
	assert.True(t, document.IsKind(err, document.KindRange))
	assert.Equal(t, document.RuleIntegerOverflow, document.RuleID(err))
	assert.Equal(t, "N", document.PathOf(err))

	v = document.MapOf(document.Entry{Key: "N", Value: document.Uint(1 << 40)})
	var small struct{ N uint32 }
	err = Unmarshal(v, &small)
	assert.True(t, document.IsKind(err, document.KindRange))
}

func TestUnmarshal_ByteArrayLength(t *testing.T) {
	v := document.MapOf(document.Entry{Key: "B", Value: document.Bytes([]byte{1, 2})})
	var out struct{ B [4]byte }
	err := Unmarshal(v, &out)
	require.Error(t, err)
	assert.Equal(t, RuleLength, document.RuleID(err))
}

func TestUnmarshal_RequiresPointer(t *testing.T) {
	var out outer
	err := Unmarshal(document.MapOf(), out)
	require.Error(t, err)
	assert.Equal(t, RuleTarget, document.RuleID(err))

	err = Unmarshal(document.MapOf(), (*outer)(nil))
	assert.Equal(t, RuleTarget, document.RuleID(err))
}

// celsius implements the contract by hand; reflection defers to it.
type celsius struct{ deg int64 }

func (c celsius) MarshalDocument() document.Value {
	return document.String("C" + string(rune('0'+c.deg)))
}

func (c *celsius) UnmarshalDocument(v document.Value) error {
	s, err := v.AsString()
	if err != nil {
		return err
	}
	c.deg = int64(s[1] - '0')
	return nil
}

func TestHonoursHandWrittenImplementations(t *testing.T) {
	type reading struct {
		Temp celsius
	}
	v, err := Marshal(reading{Temp: celsius{deg: 7}})
	require.NoError(t, err)
	temp, _ := v.Get("Temp")
	assert.True(t, document.Equal(document.String("C7"), temp))

	var out reading
	require.NoError(t, Unmarshal(v, &out))
	assert.Equal(t, int64(7), out.Temp.deg)
}

func TestMarshal_InvalidValueField(t *testing.T) {
	_, err := Marshal(struct{ V document.Value }{})
	require.Error(t, err)
	assert.True(t, document.IsKind(err, document.KindInvalid))
	assert.Equal(t, "V", document.PathOf(err))
}
