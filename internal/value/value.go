package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"github.com/shopspring/decimal"
)

// Value is a sealed interface over the decoded JSON variants.
// Only Null, String, Number, Bool, Array and Object implement it.
type Value interface {
	value() // Sealed
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a JSON string.
type String string

func (String) value() {}

// Number represents a JSON number. The literal text is kept for rendering;
// comparisons use its decimal form.
type Number struct {
	lit string
	dec decimal.Decimal
}

func (Number) value() {}

// Bool represents a JSON boolean.
type Bool bool

func (Bool) value() {}

// Array represents a JSON array.
type Array []Value

func (Array) value() {}

// Object represents a JSON object.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// NewNumber parses a numeric literal.
func NewNumber(lit string) (Number, error) {
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q: %w", lit, err)
	}
	return Number{lit: lit, dec: d}, nil
}

// Int creates a Number from an integer.
func Int(n int64) Number {
	d := decimal.NewFromInt(n)
	return Number{lit: d.String(), dec: d}
}

// MustNumber is like NewNumber but panics on malformed input.
// Intended for tests and literals.
func MustNumber(lit string) Number {
	n, err := NewNumber(lit)
	if err != nil {
		panic(err)
	}
	return n
}

// Decimal returns the numeric value.
func (n Number) Decimal() decimal.Decimal {
	return n.dec
}

// String returns the literal as it appeared in the source document.
func (n Number) String() string {
	if n.lit == "" {
		return n.dec.String()
	}
	return n.lit
}

// MarshalJSON implements json.Marshaler for Number.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.dec.String()), nil
}

// IsNull reports whether v is missing or an explicit Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// KindOf names the variant of v. Missing values report "null".
func KindOf(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsComposite reports whether v is an Array or an Object.
func IsComposite(v Value) bool {
	switch v.(type) {
	case Array, Object:
		return true
	}
	return false
}

// Equal reports whether a and b hold the same value.
// Two null or missing values are equal; a null is never equal to a non-null.
// Numbers compare by decimal value. Objects must have the same key set.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}

	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && x.dec.Equal(y.dec)
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, present := y[k]
			if !present || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Get returns the value stored under key, or nil when o is nil or the key
// is absent.
func (o Object) Get(key string) Value {
	if o == nil {
		return nil
	}
	return o[key]
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// MarshalJSON implements json.Marshaler for Array.
func (a Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	*o = obj
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected JSON array, got %s", KindOf(v))
	}
	*a = arr
	return nil
}

// Decode parses a single JSON document into a Value.
// Numbers keep their literal text; null becomes Null{}.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}

	return FromAny(raw)
}

// DecodeObject parses a JSON object.
func DecodeObject(data []byte) (Object, error) {
	var obj Object
	if err := obj.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return obj, nil
}

// FromAny converts a decoded Go value into a Value.
// It accepts the output of encoding/json (with or without UseNumber) and
// Values themselves.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return NewNumber(string(val))
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case float64:
		d := decimal.NewFromFloat(val)
		return Number{lit: d.String(), dec: d}, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = item
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = item
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
