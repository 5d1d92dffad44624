// Package change defines keyed change records and change sets, the unit of data exchanged between
// an upstream keyed collection and the grouper.
package change

import (
	"fmt"
	"strings"
)

// Reason is the kind of mutation an item underwent.
type Reason int

const (
	Add Reason = iota
	Update
	Remove
	Evaluate
)

// Reasons lists all valid reasons.
var Reasons = []Reason{Add, Update, Remove, Evaluate}

// String returns the name of the reason.
func (r Reason) String() string {
	switch r {
	case Add:
		return "Add"
	case Update:
		return "Update"
	case Remove:
		return "Remove"
	case Evaluate:
		return "Evaluate"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// IsValid reports whether r is one of the defined reasons.
func (r Reason) IsValid() bool { return r >= Add && r <= Evaluate }

// ParseReason converts a case-insensitive reason name into a Reason.
func ParseReason(s string) (Reason, error) {
	for _, r := range Reasons {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return Reason(-1), fmt.Errorf("unknown change reason %q", s)
}

// Change registers a change on a keyed item. Previous is only meaningful if HasPrevious is set.
type Change[K comparable, V any] struct {
	Reason      Reason
	Key         K
	Current     V
	Previous    V
	HasPrevious bool
}

func NewAdd[K comparable, V any](key K, item V) Change[K, V] {
	return Change[K, V]{Reason: Add, Key: key, Current: item}
}

func NewUpdate[K comparable, V any](key K, item, previous V) Change[K, V] {
	return Change[K, V]{Reason: Update, Key: key, Current: item, Previous: previous, HasPrevious: true}
}

func NewRemove[K comparable, V any](key K, item V) Change[K, V] {
	return Change[K, V]{Reason: Remove, Key: key, Current: item}
}

func NewEvaluate[K comparable, V any](key K, item V) Change[K, V] {
	return Change[K, V]{Reason: Evaluate, Key: key, Current: item}
}

// String returns a human readable form of the change.
func (c Change[K, V]) String() string {
	return fmt.Sprintf("%s(key=%v, item=%v)", c.Reason, c.Key, c.Current)
}

// ChangeSet is an ordered batch of changes delivered atomically.
type ChangeSet[K comparable, V any] []Change[K, V]

// Count returns the number of changes with the given reason.
func (cs ChangeSet[K, V]) Count(reason Reason) int {
	n := 0
	for _, c := range cs {
		if c.Reason == reason {
			n++
		}
	}
	return n
}

// Keys returns the keys of the changes in batch order. Keys may repeat.
func (cs ChangeSet[K, V]) Keys() []K {
	ret := make([]K, len(cs))
	for i, c := range cs {
		ret[i] = c.Key
	}
	return ret
}

// Filter returns the changes with the given reason.
func (cs ChangeSet[K, V]) Filter(reason Reason) ChangeSet[K, V] {
	ret := ChangeSet[K, V]{}
	for _, c := range cs {
		if c.Reason == reason {
			ret = append(ret, c)
		}
	}
	return ret
}

// String summarizes the change set, e.g., "[Add:2, Remove:1]".
func (cs ChangeSet[K, V]) String() string {
	parts := []string{}
	for _, r := range Reasons {
		if n := cs.Count(r); n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", r, n))
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
