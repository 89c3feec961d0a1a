// Package payload models the structured payload returned by the generator as
// an order-preserving JSON value.
//
// encoding/json decodes objects into Go maps, which loses member order. The
// normaliser's output (relation order, which duplicate entity wins) depends
// on document order, so values are decoded with gjson and kept as ordered
// member lists instead.
package payload

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is a single key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	text    string // string contents, or the raw literal of a number
	b       bool
	items   []Value
	members []Member
}

// NullValue returns the JSON null.
func NullValue() Value { return Value{} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// NumberValue wraps a number given as its JSON literal, e.g. "0.95".
func NumberValue(literal string) Value { return Value{kind: Number, text: literal} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: String, text: s} }

// ArrayValue builds an array from items.
func ArrayValue(items ...Value) Value {
	return Value{kind: Array, items: items}
}

// ObjectValue builds an object from members. A repeated key replaces the
// earlier value but keeps the earlier position.
func ObjectValue(members ...Member) Value {
	v := Value{kind: Object}
	for _, m := range members {
		v.set(m.Key, m.Value)
	}
	return v
}

func (v *Value) set(key string, val Value) {
	for i := range v.members {
		if v.members[i].Key == key {
			v.members[i].Value = val
			return
		}
	}
	v.members = append(v.members, Member{Key: key, Value: val})
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsScalar reports whether v is a string, number, boolean or null.
func (v Value) IsScalar() bool { return v.kind != Array && v.kind != Object }

// Members returns the members of an object in document order.
func (v Value) Members() []Member { return v.members }

// Items returns the elements of an array.
func (v Value) Items() []Value { return v.items }

// Get returns the value stored under key in an object.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Has reports whether an object contains key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Text coerces a scalar to its string form: strings as-is, numbers as their
// literal, booleans as "true"/"false" and null as "". Arrays and objects
// return "".
func (v Value) Text() string {
	switch v.kind {
	case String, Number:
		return v.text
	case Bool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Truthy reports whether v counts as present: non-empty strings, arrays and
// objects, non-zero numbers and true.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		f, err := strconv.ParseFloat(v.text, 64)
		return err != nil || f != 0
	case String:
		return v.text != ""
	case Array:
		return len(v.items) > 0
	case Object:
		return len(v.members) > 0
	default:
		return false
	}
}

// Decode parses a complete JSON document. Trailing non-whitespace is an
// error.
func Decode(doc string) (Value, error) {
	if !gjson.Valid(doc) {
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(doc), &raw); err != nil {
			return Value{}, fmt.Errorf("invalid JSON: %w", err)
		}
		return Value{}, fmt.Errorf("invalid JSON")
	}
	return fromResult(gjson.Parse(doc)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return BoolValue(false)
	case gjson.True:
		return BoolValue(true)
	case gjson.Number:
		return NumberValue(r.Raw)
	case gjson.String:
		return StringValue(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			v := Value{kind: Array}
			r.ForEach(func(_, item gjson.Result) bool {
				v.items = append(v.items, fromResult(item))
				return true
			})
			return v
		}
		v := Value{kind: Object}
		r.ForEach(func(key, val gjson.Result) bool {
			v.set(key.Str, fromResult(val))
			return true
		})
		return v
	default:
		return NullValue()
	}
}
