package grouper

import (
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/dgroup/pkg/change"
	"github.com/l7mp/dgroup/pkg/metrics"
)

// Selector maps an item to its group key. It may be called any number of times per item and must
// be deterministic for a given item snapshot.
type Selector[V any, G comparable] func(V) (G, error)

// SelectorFunc lifts an infallible grouping function into a Selector.
func SelectorFunc[V any, G comparable](f func(V) G) Selector[V, G] {
	return func(v V) (G, error) { return f(v), nil }
}

// GroupChangeSet is the lifecycle output of a batch: Add when a group appears, Remove when it
// disappears. It never contains Update or Evaluate.
type GroupChangeSet[K comparable, V any, G comparable] = change.ChangeSet[G, *Group[K, V, G]]

// Options configures a Grouper.
type Options struct {
	// Logger is the base logger, defaults to logr.Discard().
	Logger logr.Logger
	// Metrics receives instrumentation, defaults to a no-op collector.
	Metrics metrics.Collector
	// WatchBuffer is the channel capacity of group watchers, defaults to DefaultWatchBuffer.
	WatchBuffer int
}

// Grouper partitions a keyed collection into groups and turns batches of item changes into
// batches of group lifecycle changes. Apply and Regroup are serialized by a single lock.
type Grouper[K comparable, V any, G comparable] struct {
	mu          sync.Mutex
	selector    Selector[V, G]
	ledger      *ledger[K, V, G]
	registry    *registry[K, V, G]
	metrics     metrics.Collector
	watchBuffer int
	log         logr.Logger
}

// New creates a Grouper that assigns items to groups using selector.
func New[K comparable, V any, G comparable](selector Selector[V, G], opts Options) *Grouper[K, V, G] {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	buffer := opts.WatchBuffer
	if buffer <= 0 {
		buffer = DefaultWatchBuffer
	}

	return &Grouper[K, V, G]{
		selector:    selector,
		ledger:      newLedger[K, V, G](),
		registry:    newRegistry[K, V, G](),
		metrics:     m,
		watchBuffer: buffer,
		log:         logger.WithName("grouper"),
	}
}

// Apply processes one upstream batch and returns the resulting group lifecycle changes. On error
// the batch is aborted: changes before the offending one stay applied and the lifecycle changes
// they caused are returned together with the error.
//
// Changes are applied group by group in the order each group key first appears in the batch, not
// in batch order. A key should therefore change at most once per batch: for example an Add of k
// to G1 followed by an Update moving k to G2 fails with ErrMissingPriorState if G2 appears in the
// batch before G1.
func (g *Grouper[K, V, G]) Apply(batch change.ChangeSet[K, V]) (GroupChangeSet[K, V, G], error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.process("apply", batch, false)
}

// Regroup re-evaluates every tracked item against the grouping function. Only items that move to
// another group produce output; group subscribers are not notified of items that stay put.
func (g *Grouper[K, V, G]) Regroup() (GroupChangeSet[K, V, G], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entries := g.ledger.ordered()
	batch := make(change.ChangeSet[K, V], 0, len(entries))
	for _, e := range entries {
		batch = append(batch, change.NewEvaluate(e.key, e.item))
	}

	return g.process("regroup", batch, true)
}

// Group returns the group for a group key.
func (g *Grouper[K, V, G]) Group(key G) (*Group[K, V, G], bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.get(key)
}

// Groups returns the current groups ordered by the string form of their keys.
func (g *Grouper[K, V, G]) Groups() []*Group[K, V, G] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.list()
}

// Len returns the number of groups.
func (g *Grouper[K, V, G]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.len()
}

// Tracked returns the group key last recorded for an item key.
func (g *Grouper[K, V, G]) Tracked(key K) (G, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.ledger.lookup(key)
	return e.groupKey, ok
}

// TrackedLen returns the number of tracked item keys.
func (g *Grouper[K, V, G]) TrackedLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ledger.len()
}

// grouped is a change with its resolved group key.
type grouped[K comparable, V any, G comparable] struct {
	change.Change[K, V]
	groupKey G
}

type bucket[K comparable, V any, G comparable] struct {
	key     G
	changes []grouped[K, V, G]
}

// batchState collects the side effects of one batch.
type batchState[K comparable, V any, G comparable] struct {
	regroup bool
	events  GroupChangeSet[K, V, G]
	touched []*Group[K, V, G]
	seen    map[*Group[K, V, G]]bool
}

func (s *batchState[K, V, G]) touch(grp *Group[K, V, G]) {
	if !s.seen[grp] {
		s.seen[grp] = true
		s.touched = append(s.touched, grp)
	}
}

// flush publishes the member changes of every group touched so far.
func (s *batchState[K, V, G]) flush() {
	for _, grp := range s.touched {
		grp.flush()
	}
	s.touched = s.touched[:0]
	s.seen = make(map[*Group[K, V, G]]bool)
}

func (g *Grouper[K, V, G]) process(kind string, batch change.ChangeSet[K, V], regroup bool) (GroupChangeSet[K, V, G], error) {
	start := time.Now()

	buckets, err := g.bucketize(batch)
	if err != nil {
		g.log.Error(err, "failed to resolve group keys", "kind", kind, "changes", batch.String())
		return GroupChangeSet[K, V, G]{}, err
	}

	state := &batchState[K, V, G]{
		regroup: regroup,
		events:  GroupChangeSet[K, V, G]{},
		seen:    make(map[*Group[K, V, G]]bool),
	}

	for _, b := range buckets {
		if err = g.applyBucket(state, b); err != nil {
			break
		}
	}

	ret := g.compact(state.events)

	for _, ev := range ret {
		g.log.V(4).Info("group lifecycle event", "reason", ev.Reason.String(), "group", ev.Key)
		g.metrics.LifecycleEvent(ev.Reason.String())
	}
	g.metrics.BatchProcessed(kind, len(batch), time.Since(start).Seconds())
	g.metrics.SetGroups(g.registry.len())
	g.metrics.SetTrackedItems(g.ledger.len())

	if err != nil {
		g.log.Error(err, "batch aborted", "kind", kind, "changes", batch.String(),
			"lifecycle-events", ret.String())
		return ret, err
	}

	g.log.V(1).Info("batch processed", "kind", kind, "changes", batch.String(),
		"lifecycle-events", ret.String(), "groups", g.registry.len(), "tracked", g.ledger.len())

	return ret, nil
}

// bucketize resolves the group key of every change and buckets the changes by group key. Buckets
// follow the first appearance of their key; changes keep batch order inside a bucket. No state is
// touched, so a selector failure leaves the grouper unchanged.
func (g *Grouper[K, V, G]) bucketize(batch change.ChangeSet[K, V]) ([]*bucket[K, V, G], error) {
	buckets := []*bucket[K, V, G]{}
	index := make(map[G]*bucket[K, V, G])
	for _, c := range batch {
		gk, err := g.selector(c.Current)
		if err != nil {
			return nil, NewSelectorError(c.Key, err)
		}
		b, ok := index[gk]
		if !ok {
			b = &bucket[K, V, G]{key: gk}
			index[gk] = b
			buckets = append(buckets, b)
		}
		b.changes = append(b.changes, grouped[K, V, G]{Change: c, groupKey: gk})
	}
	return buckets, nil
}

func (g *Grouper[K, V, G]) newGroup(key G) *Group[K, V, G] {
	return newGroup[K, V](key, g.watchBuffer, g.log.WithValues("group", key))
}

func (g *Grouper[K, V, G]) applyBucket(state *batchState[K, V, G], b *bucket[K, V, G]) error {
	grp, created := g.registry.getOrCreate(b.key, g.newGroup)
	if created {
		state.events = append(state.events, change.NewAdd(b.key, grp))
	}
	state.touch(grp)

	var err error
	for _, c := range b.changes {
		if err = g.applyChange(state, grp, c); err != nil {
			break
		}
	}

	// the bucket is finalized even if a change failed
	if grp.Count() == 0 {
		g.evict(state, grp)
	}
	state.flush()

	return err
}

func (g *Grouper[K, V, G]) applyChange(state *batchState[K, V, G], grp *Group[K, V, G], c grouped[K, V, G]) error {
	g.log.V(5).Info("applying change", "reason", c.Reason.String(), "key", c.Key, "group", c.groupKey)

	next := entry[K, V, G]{item: c.Current, key: c.Key, groupKey: c.groupKey, reason: c.Reason}

	switch c.Reason {
	case change.Add:
		// a repeated Add for a key tracked elsewhere moves the key
		if prior, ok := g.ledger.lookup(c.Key); ok && prior.groupKey != c.groupKey {
			g.detach(state, grp, prior.groupKey, c.Key)
		}
		grp.upsert(c.Key, c.Current)
		g.ledger.put(next)

	case change.Update:
		prior, ok := g.ledger.lookup(c.Key)
		if !ok {
			g.metrics.ContractViolation(c.Reason.String())
			return NewMissingPriorStateError(c.Key, c.Reason)
		}
		grp.upsert(c.Key, c.Current)
		if prior.groupKey != c.groupKey {
			g.detach(state, grp, prior.groupKey, c.Key)
		}
		g.ledger.put(next)

	case change.Remove:
		if !grp.remove(c.Key) {
			// the key moved out of this group in an earlier evaluation
			prior, ok := g.ledger.lookup(c.Key)
			if !ok {
				g.metrics.ContractViolation(c.Reason.String())
				return NewMissingPriorStateError(c.Key, c.Reason)
			}
			g.detach(state, grp, prior.groupKey, c.Key)
		}
		g.ledger.remove(c.Key)

	case change.Evaluate:
		prior, ok := g.ledger.lookup(c.Key)
		switch {
		case !ok:
			grp.upsert(c.Key, c.Current)
		case prior.groupKey == c.groupKey:
			grp.evaluate(c.Key, c.Current, !state.regroup)
		default:
			g.detach(state, grp, prior.groupKey, c.Key)
			grp.upsert(c.Key, c.Current)
		}
		g.ledger.put(next)

	default:
		return NewUnknownReasonError(c.Key, c.Reason)
	}

	return nil
}

// detach removes key from the group stored under groupKey and evicts that group if it emptied.
// The bucket's own group is never evicted here, that happens when the bucket is finalized.
func (g *Grouper[K, V, G]) detach(state *batchState[K, V, G], current *Group[K, V, G], groupKey G, key K) {
	prior, ok := g.registry.get(groupKey)
	if !ok {
		return
	}
	state.touch(prior)
	prior.remove(key)
	if prior != current && prior.Count() == 0 {
		g.evict(state, prior)
	}
}

func (g *Grouper[K, V, G]) evict(state *batchState[K, V, G], grp *Group[K, V, G]) {
	if !g.registry.remove(grp.key, grp) {
		return
	}
	state.events = append(state.events, change.NewRemove(grp.key, grp))
	grp.close()
}

// compact reduces the raw lifecycle events of a batch to the net transition of every group key:
// at most one Remove (for the instance that existed before the batch) and at most one Add (for
// the instance that exists after it). A group that appeared and vanished within the batch
// produces nothing.
func (g *Grouper[K, V, G]) compact(events GroupChangeSet[K, V, G]) GroupChangeSet[K, V, G] {
	order := []G{}
	first := make(map[G]change.Change[G, *Group[K, V, G]])
	for _, ev := range events {
		if _, ok := first[ev.Key]; !ok {
			first[ev.Key] = ev
			order = append(order, ev.Key)
		}
	}

	ret := GroupChangeSet[K, V, G]{}
	for _, key := range order {
		ev := first[key]
		existed := ev.Reason == change.Remove
		cur, exists := g.registry.get(key)
		switch {
		case existed && !exists:
			ret = append(ret, ev)
		case !existed && exists:
			ret = append(ret, change.NewAdd(key, cur))
		case existed && exists && cur != ev.Current:
			ret = append(ret, ev, change.NewAdd(key, cur))
		}
	}
	return ret
}
