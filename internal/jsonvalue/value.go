// Package jsonvalue models loosely-typed JSON payloads as an ordered tree.
//
// Upstream entity payloads differ between API versions and carry free-form
// properties, so they are not decoded into fixed structs. Instead every payload
// becomes a Value: an Object (ordered members), an Array, or a scalar leaf.
// Member order is kept from input to output.
package jsonvalue

import (
	"bytes"
	"encoding/json"
)

// Kind identifies the concrete type behind a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is one node of a JSON tree. The set of implementations is closed:
// Object, Array, String, Number, Bool and Null.
type Value interface {
	json.Marshaler
	Kind() Kind
}

// Member is a single key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object is a JSON object that remembers member order.
type Object []Member

// Array is a JSON array.
type Array []Value

// String is a JSON string.
type String string

// Number is a JSON number kept as its literal text, so no precision is lost
// between decoding and re-encoding.
type Number string

// Bool is a JSON boolean.
type Bool bool

// Null is the JSON null literal.
type Null struct{}

func (Object) Kind() Kind { return KindObject }
func (Array) Kind() Kind  { return KindArray }
func (String) Kind() Kind { return KindString }
func (Number) Kind() Kind { return KindNumber }
func (Bool) Kind() Kind   { return KindBool }
func (Null) Kind() Kind   { return KindNull }

// KindOf returns the kind of v, treating a nil interface as null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// Get returns the value of the first member named key.
func (o Object) Get(key string) (Value, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Has reports whether o has a member named key.
func (o Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set replaces the value of the member named key, or appends a new member.
func (o *Object) Set(key string, v Value) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = v
			return
		}
	}
	*o = append(*o, Member{Key: key, Value: v})
}

// Delete removes every member named key and returns the value of the first one.
func (o *Object) Delete(key string) (Value, bool) {
	var (
		removed Value
		found   bool
	)
	out := make(Object, 0, len(*o))
	for _, m := range *o {
		if m.Key == key {
			if !found {
				removed, found = m.Value, true
			}
			continue
		}
		out = append(out, m)
	}
	*o = out
	return removed, found
}

// GetObject returns the member named key when it is an object.
func (o Object) GetObject(key string) (Object, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	obj, ok := v.(Object)
	return obj, ok
}

// GetArray returns the member named key when it is an array.
func (o Object) GetArray(key string) (Array, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := v.(Array)
	return arr, ok
}

// GetString returns the member named key when it is a string.
func (o Object) GetString(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// Text renders a scalar leaf as text. Strings are returned verbatim, numbers
// as their literal and booleans as "true"/"false". Containers and null are
// not text.
func Text(v Value) (string, bool) {
	switch t := v.(type) {
	case String:
		return string(t), true
	case Number:
		return string(t), true
	case Bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// Truthy mirrors the usual "is this worth rendering" check: null, false, zero,
// and empty strings or containers are not truthy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(t)
	case String:
		return t != ""
	case Number:
		f, err := json.Number(t).Float64()
		return err != nil || f != 0
	case Array:
		return len(t) > 0
	case Object:
		return len(t) > 0
	default:
		return false
	}
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalValue(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		val, err := marshalValue(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

func (b Bool) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func marshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return v.MarshalJSON()
}
