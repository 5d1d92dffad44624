// Package grouper maintains a partition of a keyed collection into groups and propagates changes
// to that partition incrementally.
//
// A Grouper consumes batches of keyed item changes (Add, Update, Remove, Evaluate), resolves the
// group key of each item with a caller supplied Selector and emits only group lifecycle changes:
// an Add when a group key gets its first member and a Remove when its last member leaves. Each
// Group in turn exposes its own member change stream through Watch, so downstream consumers can
// follow what happens inside a group without ever receiving the whole collection.
//
// Key components:
//   - Group: the live sub-collection of one group key, plus its watchers.
//   - ledger: the last applied change per tracked item key, used to find the group a key leaves.
//   - registry: the authoritative set of non-empty groups.
//   - Grouper: the orchestrator serializing Apply and Regroup under one lock.
//
// Example usage:
//
//	g := grouper.New[string, Item, string](grouper.SelectorFunc(func(i Item) string {
//		return i.Capture
//	}), grouper.Options{Logger: logger})
//	events, err := g.Apply(change.ChangeSet[string, Item]{change.NewAdd("1", item)})
package grouper
