package document

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindTypeMismatch: a projection asked for a variant the Value does not hold.
	KindTypeMismatch Kind = "TypeMismatch"

	// KindDecode: interchange input is malformed, has an unsupported number, or contains null.
	KindDecode Kind = "Decode"

	// KindMissingField: a record projection found no entry for a required field.
	KindMissingField Kind = "MissingField"

	// KindNotAMap: a record projection was given a non-map Value.
	KindNotAMap Kind = "NotAMap"

	// KindInvalid: the Value is not a well-formed document (zero Value, text
	// that is not UTF-8, or nesting beyond MaxDepth).
	KindInvalid Kind = "Invalid"

	// KindRange: an integer does not fit the destination type.
	KindRange Kind = "Range"
)

// Stable rule identifiers.
const (
	RuleTypeMismatch    = "DOC-TYPE-001"
	RuleSyntax          = "DOC-DEC-001"
	RuleNull            = "DOC-DEC-002"
	RuleNumber          = "DOC-DEC-003"
	RuleDuplicateKey    = "DOC-DEC-004"
	RuleTrailingData    = "DOC-DEC-005"
	RuleDepth           = "DOC-DEC-006"
	RuleNotAMap         = "DOC-REC-001"
	RuleMissingField    = "DOC-REC-002"
	RuleInvalidValue    = "DOC-VAL-001"
	RuleInvalidUTF8     = "DOC-VAL-002"
	RuleIntegerOverflow = "DOC-RNG-001"
)

// Error is the package's structured error type.
//
// Path locates the offending element inside the document, e.g. `a.b[2]`.
// It is empty when the error concerns the root. Want and Got are set for
// KindTypeMismatch only.
type Error struct {
	Kind    Kind
	RuleID  string
	Path    string
	Want    Type
	Got     Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return "document: " + e.Message
	}
	return "document: " + e.Path + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError returns a structured error rooted at the document root.
func NewError(kind Kind, ruleID, msg string) *Error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError is NewError with a cause.
func WrapError(kind Kind, ruleID, msg string, cause error) *Error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

func mismatch(want, got Type) *Error {
	return &Error{
		Kind:    KindTypeMismatch,
		RuleID:  RuleTypeMismatch,
		Want:    want,
		Got:     got,
		Message: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

func invalidValue() *Error {
	return NewError(KindInvalid, RuleInvalidValue, "invalid (zero) value")
}

func invalidUTF8(what string) *Error {
	return NewError(KindInvalid, RuleInvalidUTF8, what+" is not valid UTF-8")
}

func tooDeep() *Error {
	return NewError(KindInvalid, RuleDepth, fmt.Sprintf("nesting exceeds %d levels", MaxDepth))
}

// CheckText reports a KindInvalid error when s is not valid UTF-8. what
// names the offending element ("string", "map key").
func CheckText(s, what string) error {
	if !utf8.ValidString(s) {
		return invalidUTF8(what)
	}
	return nil
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// PathOf returns the document path carried by a structured error, or "".
func PathOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Path
}

// KeySegment and IndexSegment build path segments for PrefixPath.
func KeySegment(key string) string { return key }

func IndexSegment(i int) string { return fmt.Sprintf("[%d]", i) }

// PrefixPath returns err with seg prepended to its document path.
// Errors that are not *Error are returned unchanged.
func PrefixPath(err error, seg string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	out := *e
	out.Path = joinPath(seg, e.Path)
	return &out
}

func joinPath(seg, rest string) string {
	switch {
	case rest == "":
		return seg
	case seg == "":
		return rest
	case strings.HasPrefix(rest, "["):
		return seg + rest
	default:
		return seg + "." + rest
	}
}
