package grouper

import (
	"cmp"
	"slices"

	"github.com/l7mp/dgroup/pkg/change"
)

// entry is the last applied change for a tracked key.
type entry[K comparable, V any, G comparable] struct {
	item     V
	key      K
	groupKey G
	reason   change.Reason
	seq      uint64
}

// ledger maps every tracked item key to its last applied change. It is used to find the group a
// key is leaving.
type ledger[K comparable, V any, G comparable] struct {
	entries map[K]entry[K, V, G]
	next    uint64
}

func newLedger[K comparable, V any, G comparable]() *ledger[K, V, G] {
	return &ledger[K, V, G]{entries: make(map[K]entry[K, V, G])}
}

func (l *ledger[K, V, G]) lookup(key K) (entry[K, V, G], bool) {
	e, ok := l.entries[key]
	return e, ok
}

// put writes the entry for e.key. Overwriting keeps the original insertion position.
func (l *ledger[K, V, G]) put(e entry[K, V, G]) {
	if prev, ok := l.entries[e.key]; ok {
		e.seq = prev.seq
	} else {
		e.seq = l.next
		l.next++
	}
	l.entries[e.key] = e
}

func (l *ledger[K, V, G]) remove(key K) { delete(l.entries, key) }

func (l *ledger[K, V, G]) len() int { return len(l.entries) }

// ordered returns the entries in insertion order.
func (l *ledger[K, V, G]) ordered() []entry[K, V, G] {
	ret := make([]entry[K, V, G], 0, len(l.entries))
	for _, e := range l.entries {
		ret = append(ret, e)
	}
	slices.SortFunc(ret, func(a, b entry[K, V, G]) int { return cmp.Compare(a.seq, b.seq) })
	return ret
}
