package concurrent

import "github.com/mohae/deepcopy"

// WithClone sets the function used to copy a broadcast value for every
// subscriber except the last one, which receives the original. Use it when
// T carries references (slices, maps, pointers) that subscribers must not
// share.
//
// fn must match the multiplexer's element type; a mismatch panics with a
// [*ContractError] on the first broadcast.
func WithClone[T any](fn func(T) T) MultiplexerOption {
	return func(c *multiplexerConfig) {
		if fn == nil {
			c.clone = nil
			return
		}
		c.clone = func(v any) any {
			tv, ok := v.(T)
			if !ok {
				return cloneMismatch{}
			}
			return fn(tv)
		}
	}
}

// WithDeepCopy clones broadcast values with a reflection based deep copy.
// Unexported fields are not copied.
func WithDeepCopy() MultiplexerOption {
	return func(c *multiplexerConfig) {
		c.clone = deepcopy.Copy
	}
}

type cloneMismatch struct{}
