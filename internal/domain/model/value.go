package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	// KindNull is the zero kind.
	KindNull ValueKind = iota
	// KindString holds text.
	KindString
	// KindNumber holds a float64.
	KindNumber
)

// Value is a record cell: a string, a number, or null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Null returns the null value.
func Null() Value { return Value{} }

// Kind reports the variant.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the text of a string value and "" otherwise.
func (v Value) Str() string { return v.str }

// Num returns the number and whether v holds one.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Canonical is the normalized form used for hashing and comparison.
// Strings are trimmed with case preserved; numbers use the shortest decimal form,
// so 1500 and 1500.0 agree.
func (v Value) Canonical() string {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Empty reports whether the value is null or blank text.
func (v Value) Empty() bool {
	return v.kind == KindNull || (v.kind == KindString && strings.TrimSpace(v.str) == "")
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Canonical()
}

// MarshalJSON encodes strings as JSON strings, numbers as JSON numbers and null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON string, number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Null()
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("record value must be string, number or null: %s", data)
		}
		*v = Number(f)
	}
	return nil
}

// ValueOf converts a decoded JSON scalar (as produced by encoding/json or JMESPath) into a Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case bool:
		return String(strconv.FormatBool(t))
	default:
		return String(fmt.Sprint(t))
	}
}
