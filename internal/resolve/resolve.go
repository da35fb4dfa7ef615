// Package resolve expands user-supplied id prefixes to full identifiers.
// Agents and tasks carry ULID-style ids that nobody wants to type in full;
// any listing command accepts the shortest unique prefix instead.
package resolve

import "fmt"

// Identifiable is any entity exposing a unique string id.
type Identifiable interface {
	Identifier() string
}

// Item is a bare id, for callers that fetched plain id strings.
type Item string

// Identifier returns the id itself.
func (i Item) Identifier() string { return string(i) }

// NotFoundError indicates that no candidate id starts with the prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no id matches prefix %q", e.Prefix)
}

// AmbiguousError indicates that two or more candidate ids share the prefix.
// Count reports how many matched so the caller can tell the user to type
// more characters.
type AmbiguousError struct {
	Prefix string
	Count  int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("prefix %q is ambiguous: %d ids match", e.Prefix, e.Count)
}

// Prefix filters items to those whose id starts with prefix and returns the
// single surviving id. Zero survivors yields *NotFoundError, two or more
// yield *AmbiguousError. Ids are assumed unique within one listing snapshot;
// the resolver does not enforce that.
func Prefix[T Identifiable](items []T, prefix string) (string, error) {
	var match string
	count := 0
	for _, item := range items {
		id := item.Identifier()
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			match = id
			count++
		}
	}

	switch count {
	case 1:
		return match, nil
	case 0:
		return "", &NotFoundError{Prefix: prefix}
	default:
		return "", &AmbiguousError{Prefix: prefix, Count: count}
	}
}
