package env

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Identifies reports whether the display string of v determines its
// behavior. Plain data does; functions, builtins, modules and unknown host
// values print only a name, so two different values can look the same.
// Containers identify themselves when every element does.
func Identifies(v starlark.Value) bool {
	return identifies(v, make(map[starlark.Value]bool))
}

func identifies(v starlark.Value, seen map[starlark.Value]bool) bool {
	switch x := v.(type) {
	case starlark.NoneType, starlark.Bool, starlark.Int, starlark.Float,
		starlark.String, starlark.Bytes:
		return true
	case Stringifier:
		return true
	case starlark.Tuple:
		for _, elem := range x {
			if !identifies(elem, seen) {
				return false
			}
		}
		return true
	case *starlark.List:
		if seen[x] {
			return true
		}
		seen[x] = true
		for i := 0; i < x.Len(); i++ {
			if !identifies(x.Index(i), seen) {
				return false
			}
		}
		return true
	case *starlark.Dict:
		if seen[x] {
			return true
		}
		seen[x] = true
		for _, item := range x.Items() {
			if !identifies(item[0], seen) || !identifies(item[1], seen) {
				return false
			}
		}
		return true
	case *starlark.Set:
		if seen[x] {
			return true
		}
		seen[x] = true
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			if !identifies(elem, seen) {
				return false
			}
		}
		return true
	case *starlarkstruct.Struct:
		if seen[x] {
			return true
		}
		seen[x] = true
		if !identifies(x.Constructor(), seen) {
			return false
		}
		fields := make(starlark.StringDict)
		x.ToStringDict(fields)
		for _, field := range fields {
			if !identifies(field, seen) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// identical reports whether a and b are the same value: equal scalars or the
// same object. Values of non-comparable types are never identical, except
// tuples, which compare element by element.
func identical(a, b starlark.Value) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	if ta, ok := a.(starlark.Tuple); ok {
		tb, ok := b.(starlark.Tuple)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !identical(ta[i], tb[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
