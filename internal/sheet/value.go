package sheet

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Type tags used by the checksum serializer. Changing any of these changes
// every checksum ever produced.
const (
	TagEmpty   byte = 'E'
	TagString  byte = 'S'
	TagNumber  byte = 'N'
	TagBool    byte = 'B'
	TagFormula byte = 'F'
)

// Value is a sealed interface representing the contents of one cell.
// Only Empty, String, Number, Bool and Formula implement it.
type Value interface {
	// Tag returns the one-byte type tag.
	Tag() byte

	// Display returns the human-readable rendering used in fingerprints.
	Display() string

	sheetValue()
}

// Empty is a cell with no content.
type Empty struct{}

func (Empty) sheetValue()                  {}
func (Empty) Tag() byte                    { return TagEmpty }
func (Empty) Display() string              { return "" }
func (Empty) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// String is a literal text value.
type String string

func (String) sheetValue()       {}
func (String) Tag() byte         { return TagString }
func (s String) Display() string { return string(s) }
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(Wire(s))
}

// Number is a numeric value. Dates and times are serial numbers, as the
// remote store returns them unformatted.
type Number float64

func (Number) sheetValue()       {}
func (Number) Tag() byte         { return TagNumber }
func (n Number) Display() string { return formatNumber(float64(n)) }
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(n))
}

// Bool is a boolean value.
type Bool bool

func (Bool) sheetValue() {}
func (Bool) Tag() byte   { return TagBool }
func (b Bool) Display() string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// Formula is formula text including the leading '='. It is never evaluated.
type Formula string

func (Formula) sheetValue()       {}
func (Formula) Tag() byte         { return TagFormula }
func (f Formula) Display() string { return string(f) }
func (f Formula) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// formatNumber renders a float in its shortest round-trip form.
// Negative zero is folded into zero so both observations hash identically.
func formatNumber(f float64) string {
	if f == 0 {
		f = 0
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Canonical returns the byte form of v used for hashing and equality.
// Strings and formulas are NFC normalized. A nil Value is treated as Empty.
func Canonical(v Value) []byte {
	switch val := v.(type) {
	case nil, Empty:
		return nil
	case String:
		return []byte(norm.NFC.String(string(val)))
	case Formula:
		return []byte(norm.NFC.String(string(val)))
	case Number:
		return []byte(formatNumber(float64(val)))
	case Bool:
		if val {
			return []byte("1")
		}
		return []byte("0")
	default:
		return []byte(v.Display())
	}
}

// TagOf returns v's tag, treating nil as Empty.
func TagOf(v Value) byte {
	if v == nil {
		return TagEmpty
	}
	return v.Tag()
}

// IsEmpty reports whether v is nil or Empty.
func IsEmpty(v Value) bool {
	return TagOf(v) == TagEmpty
}

// Equal reports whether a and b hold the same canonical content.
func Equal(a, b Value) bool {
	if TagOf(a) != TagOf(b) {
		return false
	}
	return string(Canonical(a)) == string(Canonical(b))
}

// literalKey marks text that must not be read back as a formula or as
// empty: {"string": "=not a formula"}.
const literalKey = "string"

// Wire returns the JSON/YAML form of v that FromAny reads back as v.
// Text that starts with '=' or is empty is wrapped as {"string": text};
// every other value is a plain scalar.
func Wire(v Value) any {
	if s, ok := v.(String); ok && (s == "" || strings.HasPrefix(string(s), "=")) {
		return map[string]any{literalKey: string(s)}
	}
	return ToAny(v)
}

// FromAny converts a decoded JSON/YAML scalar into a Value.
//
// Strings beginning with '=' become formulas, the empty string and nil become
// Empty, and {"string": text} is always literal text. Floats that are NaN or
// infinite are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Empty{}, nil
	case Value:
		return val, nil
	case map[string]any:
		text, ok := val[literalKey].(string)
		if !ok || len(val) != 1 {
			return nil, fmt.Errorf("unsupported cell object: want {%q: text}", literalKey)
		}
		return String(text), nil
	case string:
		if val == "" {
			return Empty{}, nil
		}
		if strings.HasPrefix(val, "=") {
			return Formula(val), nil
		}
		return String(val), nil
	case bool:
		return Bool(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite number %v", val)
		}
		return Number(val), nil
	case float32:
		return FromAny(float64(val))
	case int:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return FromAny(f)
	default:
		return nil, fmt.Errorf("unsupported cell value type %T", v)
	}
}

// ToAny converts a Value into the scalar the remote store accepts on write.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Empty:
		return ""
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Formula:
		return string(val)
	default:
		return v.Display()
	}
}
