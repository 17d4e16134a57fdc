// Package wire is the lossless binary form of documents.
//
// Unlike the JSON interchange form, wire keeps every variant distinct: Bytes
// stay Bytes and Uint(42) stays Uint. Each Value is a two-element CBOR array
// [tag, payload] where tag is the one-letter type tag used by the canonical
// hash ("m", "s", "i", "u", "b", "x", "a"):
//
//	["m", {key: <value>, ...}]
//	["s", text] ["i", int] ["u", uint] ["b", bool] ["x", bytes]
//	["a", [<value>, ...]]
//
// Encoding uses CBOR canonical mode, so equal Values produce identical bytes.
// That makes wire bytes suitable for content-addressed storage.
package wire

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/xdoc/document"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 2*document.MaxDepth + 4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// envelope is the decoded shape of one Value.
type envelope struct {
	_       struct{} `cbor:",toarray"`
	Tag     string
	Payload cbor.RawMessage
}

// Marshal encodes v. It fails only when v is not a well-formed document:
// a zero Value, text that is not UTF-8, or nesting beyond document.MaxDepth.
func Marshal(v document.Value) ([]byte, error) {
	tree, err := toTree(v, 0)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(tree)
}

func toTree(v document.Value, depth int) ([]interface{}, error) {
	tag := string([]byte{v.Type().Tag()})
	switch v.Type() {
	case document.TypeMap, document.TypeList:
		if depth >= document.MaxDepth {
			return nil, document.NewError(document.KindInvalid, document.RuleDepth,
				fmt.Sprintf("nesting exceeds %d levels", document.MaxDepth))
		}
	}
	switch v.Type() {
	case document.TypeMap:
		m := make(map[string]interface{}, v.Len())
		for _, e := range v.Entries() {
			if err := document.CheckText(e.Key, "map key"); err != nil {
				return nil, document.PrefixPath(err, document.KeySegment(e.Key))
			}
			sub, err := toTree(e.Value, depth+1)
			if err != nil {
				return nil, document.PrefixPath(err, document.KeySegment(e.Key))
			}
			m[e.Key] = sub
		}
		return []interface{}{tag, m}, nil
	case document.TypeString:
		s, _ := v.AsString()
		if err := document.CheckText(s, "string"); err != nil {
			return nil, err
		}
		return []interface{}{tag, s}, nil
	case document.TypeInt:
		i, _ := v.AsInt()
		return []interface{}{tag, i}, nil
	case document.TypeUint:
		u, _ := v.AsUint()
		return []interface{}{tag, u}, nil
	case document.TypeBool:
		b, _ := v.AsBool()
		return []interface{}{tag, b}, nil
	case document.TypeBytes:
		b, _ := v.AsBytes()
		return []interface{}{tag, b}, nil
	case document.TypeList:
		elems, _ := v.AsList()
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			sub, err := toTree(e, depth+1)
			if err != nil {
				return nil, document.PrefixPath(err, document.IndexSegment(i))
			}
			out[i] = sub
		}
		return []interface{}{tag, out}, nil
	default:
		return nil, document.NewError(document.KindInvalid, document.RuleInvalidValue, "invalid (zero) value")
	}
}

// Unmarshal decodes wire bytes produced by Marshal.
//
// Input that is valid CBOR but not the canonical encoding of the decoded
// Value (non-minimal integers, unsorted keys) is rejected, so a document has
// exactly one wire form and one CID.
//
// Errors are *document.Error with KindDecode.
func Unmarshal(data []byte) (document.Value, error) {
	v, err := decode(data, 0)
	if err != nil {
		return document.Value{}, err
	}
	canon, err := Marshal(v)
	if err != nil {
		return document.Value{}, document.WrapError(document.KindDecode, RuleNonCanonical, "re-encode: "+err.Error(), err)
	}
	if !bytes.Equal(canon, data) {
		return document.Value{}, document.NewError(document.KindDecode, RuleNonCanonical, "wire data is not in canonical form")
	}
	return v, nil
}

func decode(data []byte, depth int) (document.Value, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return document.Value{}, malformed(err)
	}
	if len(env.Tag) != 1 {
		return document.Value{}, document.NewError(document.KindDecode, RuleTag, fmt.Sprintf("invalid type tag %q", env.Tag))
	}
	typ, ok := document.TypeForTag(env.Tag[0])
	if !ok {
		return document.Value{}, document.NewError(document.KindDecode, RuleTag, fmt.Sprintf("unknown type tag %q", env.Tag))
	}

	switch typ {
	case document.TypeMap, document.TypeList:
		if depth >= document.MaxDepth {
			return document.Value{}, document.NewError(document.KindDecode, document.RuleDepth,
				fmt.Sprintf("nesting exceeds %d levels", document.MaxDepth))
		}
	}

	switch typ {
	case document.TypeMap:
		var raw map[string]cbor.RawMessage
		if err := decMode.Unmarshal(env.Payload, &raw); err != nil {
			return document.Value{}, malformed(err)
		}
		m := make(map[string]document.Value, len(raw))
		for k, r := range raw {
			sub, err := decode(r, depth+1)
			if err != nil {
				return document.Value{}, document.PrefixPath(err, document.KeySegment(k))
			}
			m[k] = sub
		}
		return document.Map(m), nil
	case document.TypeString:
		var s string
		if err := decMode.Unmarshal(env.Payload, &s); err != nil {
			return document.Value{}, malformed(err)
		}
		return document.String(s), nil
	case document.TypeInt:
		var i int64
		if err := decMode.Unmarshal(env.Payload, &i); err != nil {
			return document.Value{}, malformed(err)
		}
		return document.Int(i), nil
	case document.TypeUint:
		var u uint64
		if err := decMode.Unmarshal(env.Payload, &u); err != nil {
			return document.Value{}, malformed(err)
		}
		return document.Uint(u), nil
	case document.TypeBool:
		var b bool
		if err := decMode.Unmarshal(env.Payload, &b); err != nil {
			return document.Value{}, malformed(err)
		}
		return document.Bool(b), nil
	case document.TypeBytes:
		var b []byte
		if err := decMode.Unmarshal(env.Payload, &b); err != nil {
			return document.Value{}, malformed(err)
		}
		return document.Bytes(b), nil
	default:
		var raw []cbor.RawMessage
		if err := decMode.Unmarshal(env.Payload, &raw); err != nil {
			return document.Value{}, malformed(err)
		}
		elems := make([]document.Value, len(raw))
		for i, r := range raw {
			sub, err := decode(r, depth+1)
			if err != nil {
				return document.Value{}, document.PrefixPath(err, document.IndexSegment(i))
			}
			elems[i] = sub
		}
		return document.List(elems...), nil
	}
}

const (
	// RuleTag names an envelope whose tag is not a known type tag.
	RuleTag = "DOC-WIRE-001"
	// RuleNonCanonical names well-formed CBOR that Marshal would not produce.
	RuleNonCanonical = "DOC-WIRE-002"
)

func malformed(err error) error {
	return document.WrapError(document.KindDecode, document.RuleSyntax, "malformed wire data: "+err.Error(), err)
}
