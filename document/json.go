package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxDepth bounds the nesting of maps and lists accepted by decoders.
const MaxDepth = 512

// ============================================================
// Decode - JSON text to Value
// ============================================================

// Decode parses JSON text into a Value.
//
// Objects become maps, arrays become lists, strings become String, booleans
// become Bool. A number becomes Int when it fits int64, otherwise Uint when
// it fits uint64; fractional, exponent and out-of-range numbers fail. null
// anywhere fails. Duplicate object keys and trailing data fail. The input
// must be valid UTF-8 and may not escape a lone UTF-16 surrogate.
//
// Base64-looking strings are not turned back into Bytes.
func Decode(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return Value{}, NewError(KindDecode, RuleSyntax, "input is not valid UTF-8")
	}
	if err := checkEscapes(data); err != nil {
		return Value{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeNext(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, WrapError(KindDecode, RuleTrailingData, "unexpected data after top-level value", err)
	}
	return v, nil
}

// DecodeReader is Decode over a reader. The whole input must be one value.
func DecodeReader(r io.Reader) (Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Value{}, WrapError(KindDecode, RuleSyntax, "read input: "+err.Error(), err)
	}
	return Decode(data)
}

func decodeNext(dec *json.Decoder, depth int) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, WrapError(KindDecode, RuleSyntax, "unexpected end of input", err)
		}
		return Value{}, WrapError(KindDecode, RuleSyntax, "malformed input: "+err.Error(), err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			if depth >= MaxDepth {
				return Value{}, NewError(KindDecode, RuleDepth, fmt.Sprintf("nesting exceeds %d levels", MaxDepth))
			}
			return decodeObject(dec, depth+1)
		case '[':
			if depth >= MaxDepth {
				return Value{}, NewError(KindDecode, RuleDepth, fmt.Sprintf("nesting exceeds %d levels", MaxDepth))
			}
			return decodeArray(dec, depth+1)
		default:
			return Value{}, NewError(KindDecode, RuleSyntax, fmt.Sprintf("unexpected %q", rune(t)))
		}
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return decodeNumber(t)
	case nil:
		return Value{}, NewError(KindDecode, RuleNull, "null is not representable")
	default:
		return Value{}, NewError(KindDecode, RuleSyntax, fmt.Sprintf("unsupported token %T", tok))
	}
}

func decodeObject(dec *json.Decoder, depth int) (Value, error) {
	m := make(map[string]Value)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, WrapError(KindDecode, RuleSyntax, "malformed object: "+err.Error(), err)
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, NewError(KindDecode, RuleSyntax, "object key must be a string")
		}
		if _, dup := m[key]; dup {
			return Value{}, PrefixPath(NewError(KindDecode, RuleDuplicateKey, "duplicate object key"), KeySegment(key))
		}
		v, err := decodeNext(dec, depth)
		if err != nil {
			return Value{}, PrefixPath(err, KeySegment(key))
		}
		m[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, WrapError(KindDecode, RuleSyntax, "unterminated object", err)
	}
	return newMap(m), nil
}

func decodeArray(dec *json.Decoder, depth int) (Value, error) {
	list := []Value{}
	for dec.More() {
		v, err := decodeNext(dec, depth)
		if err != nil {
			return Value{}, PrefixPath(err, IndexSegment(len(list)))
		}
		list = append(list, v)
	}
	if _, err := dec.Token(); err != nil {
		return Value{}, WrapError(KindDecode, RuleSyntax, "unterminated array", err)
	}
	return Value{typ: TypeList, list: list}, nil
}

// checkEscapes rejects \u escapes naming a surrogate that is not part of a
// high/low pair. encoding/json would silently turn those into U+FFFD.
// Other malformed escapes are left for the tokenizer to report.
func checkEscapes(data []byte) error {
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			continue
		}
		switch c {
		case '"':
			inString = false
		case '\\':
			if i+1 >= len(data) {
				return nil
			}
			if data[i+1] != 'u' {
				i++
				continue
			}
			r, ok := hex4(data, i+2)
			if !ok {
				return nil
			}
			switch {
			case r >= 0xd800 && r < 0xdc00:
				if i+11 < len(data) && data[i+6] == '\\' && data[i+7] == 'u' {
					if lo, ok := hex4(data, i+8); ok && lo >= 0xdc00 && lo < 0xe000 {
						i += 11
						continue
					}
				}
				return loneSurrogate(i)
			case r >= 0xdc00 && r < 0xe000:
				return loneSurrogate(i)
			default:
				i += 5
			}
		}
	}
	return nil
}

func hex4(data []byte, at int) (rune, bool) {
	if at+4 > len(data) {
		return 0, false
	}
	n, err := strconv.ParseUint(string(data[at:at+4]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}

func loneSurrogate(offset int) error {
	return NewError(KindDecode, RuleSyntax, fmt.Sprintf("lone surrogate escape at offset %d", offset))
}

// decodeNumber prefers int64 and falls back to uint64.
func decodeNumber(n json.Number) (Value, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		return Value{}, NewError(KindDecode, RuleNumber, fmt.Sprintf("non-integral number %s", s))
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Uint(u), nil
	}
	return Value{}, NewError(KindDecode, RuleNumber, fmt.Sprintf("number %s out of 64-bit range", s))
}

// ============================================================
// Encode - Value to JSON text
// ============================================================

// Encode renders v as compact JSON text with map keys in canonical order.
// Bytes become standard base64 strings. Encode fails only when v is not a
// well-formed document (see Hash).
func Encode(v Value) ([]byte, error) {
	st := newEncodeState()
	if err := st.value(v, 0); err != nil {
		return nil, err
	}
	return st.buf.Bytes(), nil
}

// EncodeIndent is like Encode but applies json.Indent formatting.
func EncodeIndent(v Value, prefix, indent string) ([]byte, error) {
	b, err := Encode(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type encodeState struct {
	buf     bytes.Buffer
	scratch bytes.Buffer
	enc     *json.Encoder
}

func newEncodeState() *encodeState {
	st := &encodeState{}
	st.enc = json.NewEncoder(&st.scratch)
	st.enc.SetEscapeHTML(false)
	return st
}

func (st *encodeState) value(v Value, depth int) error {
	if (v.typ == TypeMap || v.typ == TypeList) && depth >= MaxDepth {
		return tooDeep()
	}
	switch v.typ {
	case TypeMap:
		st.buf.WriteByte('{')
		for i, k := range v.keys {
			if !utf8.ValidString(k) {
				return PrefixPath(invalidUTF8("map key"), KeySegment(k))
			}
			if i > 0 {
				st.buf.WriteByte(',')
			}
			st.string(k)
			st.buf.WriteByte(':')
			if err := st.value(v.m[k], depth+1); err != nil {
				return PrefixPath(err, KeySegment(k))
			}
		}
		st.buf.WriteByte('}')
	case TypeString:
		if !utf8.ValidString(v.str) {
			return invalidUTF8("string")
		}
		st.string(v.str)
	case TypeInt:
		st.buf.WriteString(strconv.FormatInt(v.i, 10))
	case TypeUint:
		st.buf.WriteString(strconv.FormatUint(v.u, 10))
	case TypeBool:
		st.buf.WriteString(strconv.FormatBool(v.b))
	case TypeBytes:
		st.string(base64.StdEncoding.EncodeToString(v.bytes))
	case TypeList:
		st.buf.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				st.buf.WriteByte(',')
			}
			if err := st.value(e, depth+1); err != nil {
				return PrefixPath(err, IndexSegment(i))
			}
		}
		st.buf.WriteByte(']')
	default:
		return invalidValue()
	}
	return nil
}

// string writes s as a JSON string literal.
func (st *encodeState) string(s string) {
	st.scratch.Reset()
	// Encoding a Go string cannot fail.
	_ = st.enc.Encode(s)
	st.buf.Write(bytes.TrimSuffix(st.scratch.Bytes(), []byte{'\n'}))
}
