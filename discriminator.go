package invoke

import "strings"

// Discriminator decides whether a Source should handle a message, from cheap
// field checks on a View.
type Discriminator interface {
	Match(v View) bool
}

// DiscriminatorFunc adapts a function to Discriminator.
type DiscriminatorFunc func(v View) bool

// Match implements the Discriminator interface.
func (f DiscriminatorFunc) Match(v View) bool { return f(v) }

// HasFields matches when every path exists.
func HasFields(paths ...string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, p := range paths {
			if !v.HasField(p) {
				return false
			}
		}
		return true
	})
}

// FieldEquals matches when path holds the string value.
func FieldEquals(path, value string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.GetString(path)
		return ok && s == value
	})
}

// FieldHasPrefix matches when path holds a string starting with prefix.
func FieldHasPrefix(path, prefix string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.GetString(path)
		return ok && strings.HasPrefix(s, prefix)
	})
}

// And matches when every discriminator matches.
func And(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if !d.Match(v) {
				return false
			}
		}
		return true
	})
}

// Or matches when any discriminator matches.
func Or(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if d.Match(v) {
				return true
			}
		}
		return false
	})
}

// Not inverts d.
func Not(d Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool { return !d.Match(v) })
}
