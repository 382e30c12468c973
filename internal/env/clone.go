package env

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Clone returns a deep copy of v when it can, else v itself.
//
// The boolean is false when any part of v had to be aliased. Aliased values
// stay mutable through every other holder. Scalars are immutable and count as
// cloned. Cycles through lists, dicts and sets are preserved.
func Clone(v starlark.Value) (starlark.Value, bool) {
	c := newCloner()
	out := c.clone(v)
	return out, !c.aliased
}

// cloner copies values while remembering what it already copied, so shared
// and cyclic references keep their shape.
type cloner struct {
	seen    map[starlark.Value]starlark.Value
	aliased bool
}

func newCloner() *cloner {
	return &cloner{seen: make(map[starlark.Value]starlark.Value)}
}

func (c *cloner) clone(v starlark.Value) starlark.Value {
	switch x := v.(type) {
	case nil:
		return nil
	case starlark.NoneType, starlark.Bool, starlark.Int, starlark.Float,
		starlark.String, starlark.Bytes:
		return v
	case *starlark.List:
		if done, ok := c.seen[x]; ok {
			return done
		}
		out := starlark.NewList(make([]starlark.Value, 0, x.Len()))
		c.seen[x] = out
		for i := 0; i < x.Len(); i++ {
			if err := out.Append(c.clone(x.Index(i))); err != nil {
				c.aliased = true
				return x
			}
		}
		return out
	case starlark.Tuple:
		out := make(starlark.Tuple, len(x))
		for i, elem := range x {
			out[i] = c.clone(elem)
		}
		return out
	case *starlark.Dict:
		if done, ok := c.seen[x]; ok {
			return done
		}
		out := starlark.NewDict(x.Len())
		c.seen[x] = out
		for _, item := range x.Items() {
			if err := out.SetKey(item[0], c.clone(item[1])); err != nil {
				c.aliased = true
				return x
			}
		}
		return out
	case *starlark.Set:
		if done, ok := c.seen[x]; ok {
			return done
		}
		out := starlark.NewSet(x.Len())
		c.seen[x] = out
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			if err := out.Insert(elem); err != nil {
				c.aliased = true
				return x
			}
		}
		return out
	case *starlarkstruct.Struct:
		if done, ok := c.seen[x]; ok {
			return done
		}
		fields := make(starlark.StringDict)
		x.ToStringDict(fields)
		for name, field := range fields {
			fields[name] = c.clone(field)
		}
		out := starlarkstruct.FromStringDict(x.Constructor(), fields)
		c.seen[x] = out
		return out
	default:
		// Functions, builtins, modules and host types have no generic copy.
		c.aliased = true
		return v
	}
}
