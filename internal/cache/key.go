package cache

import "strings"

// Key identifies a query group hierarchically, e.g. {"messages", chatID}.
type Key []string

// K is shorthand for building keys inline.
func K(segments ...string) Key { return Key(segments) }

func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix reports whether k starts with prefix. Invalidation by key is
// prefix matching: invalidating {"messages"} hits every per-chat group.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports segment-wise equality.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
