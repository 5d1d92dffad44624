package grouper

import (
	"github.com/l7mp/dgroup/pkg/util"
)

// registry is the authoritative set of non-empty groups, keyed by group key.
type registry[K comparable, V any, G comparable] struct {
	groups map[G]*Group[K, V, G]
}

func newRegistry[K comparable, V any, G comparable]() *registry[K, V, G] {
	return &registry[K, V, G]{groups: make(map[G]*Group[K, V, G])}
}

func (r *registry[K, V, G]) get(key G) (*Group[K, V, G], bool) {
	g, ok := r.groups[key]
	return g, ok
}

// getOrCreate returns the group for key, creating it with newFn if absent. The second return
// value reports whether the group was created.
func (r *registry[K, V, G]) getOrCreate(key G, newFn func(G) *Group[K, V, G]) (*Group[K, V, G], bool) {
	if g, ok := r.groups[key]; ok {
		return g, false
	}
	g := newFn(key)
	r.groups[key] = g
	return g, true
}

// remove evicts g if the registry still holds this very instance under key.
func (r *registry[K, V, G]) remove(key G, g *Group[K, V, G]) bool {
	if cur, ok := r.groups[key]; !ok || cur != g {
		return false
	}
	delete(r.groups, key)
	return true
}

func (r *registry[K, V, G]) len() int { return len(r.groups) }

// list returns the groups ordered by the string form of their keys.
func (r *registry[K, V, G]) list() []*Group[K, V, G] {
	ret := make([]*Group[K, V, G], 0, len(r.groups))
	for _, g := range r.groups {
		ret = append(ret, g)
	}
	util.SortByString(ret, func(g *Group[K, V, G]) G { return g.key })
	return ret
}
