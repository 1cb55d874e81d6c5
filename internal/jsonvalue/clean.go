package jsonvalue

// Map returns a copy of v in which every scalar leaf has been replaced by
// fn(leaf). Objects and arrays are rebuilt with the same keys, order and
// nesting; fn is never called on a container.
func Map(v Value, fn func(Value) Value) Value {
	switch t := v.(type) {
	case Object:
		out := make(Object, len(t))
		for i, m := range t {
			out[i] = Member{Key: m.Key, Value: Map(m.Value, fn)}
		}
		return out
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Map(e, fn)
		}
		return out
	case nil:
		return nil
	default:
		return fn(v)
	}
}

// Clean converts every boolean and number leaf of v to its string form.
// Strings and nulls pass through, so Clean(Clean(v)) equals Clean(v).
func Clean(v Value) Value {
	return Map(v, stringifyLeaf)
}

// CleanObject is Clean for an object root.
func CleanObject(o Object) Object {
	if o == nil {
		return nil
	}
	return Clean(o).(Object)
}

func stringifyLeaf(v Value) Value {
	switch v.(type) {
	case Bool, Number:
		s, _ := Text(v)
		return String(s)
	default:
		return v
	}
}
