package grouper

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dgroup/pkg/change"
)

// Group is the live sub-collection of the items currently assigned to one group key. Groups are
// created and mutated only by the Grouper that owns them; everyone else gets a read-only view
// plus a change stream via Watch.
type Group[K comparable, V any, G comparable] struct {
	key      G
	mu       sync.RWMutex
	members  map[K]V
	pending  change.ChangeSet[K, V]
	watchers []*Watcher[K, V]
	evicted  bool
	buffer   int
	log      logr.Logger
}

func newGroup[K comparable, V any, G comparable](key G, buffer int, log logr.Logger) *Group[K, V, G] {
	return &Group[K, V, G]{
		key:     key,
		members: make(map[K]V),
		buffer:  buffer,
		log:     log,
	}
}

// Key returns the group key.
func (g *Group[K, V, G]) Key() G { return g.key }

// Count returns the number of members.
func (g *Group[K, V, G]) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Lookup returns the member stored under key.
func (g *Group[K, V, G]) Lookup(key K) (V, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	item, ok := g.members[key]
	return item, ok
}

// Keys returns a snapshot of the member keys.
func (g *Group[K, V, G]) Keys() sets.Set[K] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ret := sets.New[K]()
	for k := range g.members {
		ret.Insert(k)
	}
	return ret
}

// Items returns a snapshot of the members.
func (g *Group[K, V, G]) Items() map[K]V {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ret := make(map[K]V, len(g.members))
	for k, v := range g.members {
		ret[k] = v
	}
	return ret
}

// Evicted reports whether the group has been removed from its registry.
func (g *Group[K, V, G]) Evicted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.evicted
}

// String returns a short description of the group.
func (g *Group[K, V, G]) String() string {
	return fmt.Sprintf("Group(%v, count=%d)", g.key, g.Count())
}

// Watch subscribes to the member changes of the group. The current members are delivered first
// as a single change set of Adds. The watcher is stopped when ctx is canceled or the group is
// evicted. Each watcher receives its own copy of every change set.
func (g *Group[K, V, G]) Watch(ctx context.Context) (*Watcher[K, V], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.evicted {
		return nil, fmt.Errorf("cannot watch group %v: %w", g.key, ErrGroupEvicted)
	}

	wCtx, cancel := context.WithCancel(ctx)
	watcher := newWatcher[K, V](g.buffer, cancel)
	watcher.skip = len(g.pending)

	if len(g.members) > 0 {
		snapshot := make(change.ChangeSet[K, V], 0, len(g.members))
		for k, v := range g.members {
			snapshot = append(snapshot, change.NewAdd(k, v))
		}
		watcher.result <- snapshot
	}

	g.watchers = append(g.watchers, watcher)

	go func() {
		<-wCtx.Done()
		watcher.Stop()
		g.removeWatcher(watcher)
	}()

	return watcher, nil
}

func (g *Group[K, V, G]) removeWatcher(watcher *Watcher[K, V]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, w := range g.watchers {
		if w == watcher {
			g.watchers = append(g.watchers[:i], g.watchers[i+1:]...)
			break
		}
	}
}

// mutators, called by the owning Grouper only

func (g *Group[K, V, G]) upsert(key K, item V) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.members[key]; ok {
		g.pending = append(g.pending, change.NewUpdate(key, item, prev))
	} else {
		g.pending = append(g.pending, change.NewAdd(key, item))
	}
	g.members[key] = item
}

func (g *Group[K, V, G]) remove(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, ok := g.members[key]
	if !ok {
		return false
	}
	delete(g.members, key)
	g.pending = append(g.pending, change.NewRemove(key, prev))
	return true
}

// evaluate refreshes the stored item and, if notify is set, queues an Evaluate marker for the
// subscribers.
func (g *Group[K, V, G]) evaluate(key K, item V, notify bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[key]; !ok {
		return
	}
	g.members[key] = item
	if notify {
		g.pending = append(g.pending, change.NewEvaluate(key, item))
	}
}

// flush publishes the queued member changes to the watchers as one change set.
func (g *Group[K, V, G]) flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flushLocked()
}

func (g *Group[K, V, G]) flushLocked() {
	if len(g.pending) == 0 {
		return
	}
	for _, w := range g.watchers {
		if w.skip >= len(g.pending) {
			w.skip = 0
			continue
		}
		// every watcher owns its change set
		cs := slices.Clone(g.pending[w.skip:])
		w.skip = 0
		if !w.send(cs) {
			g.log.V(2).Info("watcher channel full, dropping member changes",
				"group", g.key, "changes", cs.String())
		}
	}
	g.pending = nil
}

// close flushes the queued changes, marks the group evicted and stops all watchers.
func (g *Group[K, V, G]) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flushLocked()
	g.evicted = true
	for _, w := range g.watchers {
		w.Stop()
	}
	g.watchers = nil
}
