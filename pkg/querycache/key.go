package querycache

import "strings"

// keySep cannot appear in ordinary identifiers, so joined keys never collide.
const keySep = "\x1f"

// QueryKey identifies a cached resource, e.g. ("events") or ("events", "1").
// Equality is structural.
type QueryKey []string

// Key builds a QueryKey from its parts.
func Key(parts ...string) QueryKey {
	out := make(QueryKey, len(parts))
	copy(out, parts)
	return out
}

// String renders the key for map lookups and persistence.
func (k QueryKey) String() string {
	return strings.Join(k, keySep)
}

// Display renders the key for logs.
func (k QueryKey) Display() string {
	return "[" + strings.Join(k, ",") + "]"
}

// Equal reports structural equality.
func (k QueryKey) Equal(other QueryKey) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading parts of k. An empty prefix matches every key.
func (k QueryKey) HasPrefix(prefix QueryKey) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Collection returns the first part of the key as a single-part key.
func (k QueryKey) Collection() QueryKey {
	if len(k) == 0 {
		return nil
	}
	return Key(k[0])
}

// ParseKey reverses String.
func ParseKey(s string) QueryKey {
	if s == "" {
		return QueryKey{}
	}
	return QueryKey(strings.Split(s, keySep))
}
