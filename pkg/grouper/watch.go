package grouper

import (
	"sync"

	"github.com/l7mp/dgroup/pkg/change"
)

// DefaultWatchBuffer is the default capacity of a watcher's result channel.
const DefaultWatchBuffer = 256

// Watcher streams the member changes of a single group.
type Watcher[K comparable, V any] struct {
	result  chan change.ChangeSet[K, V]
	cancel  func()
	stopped bool
	// number of pending group changes that were already part of the initial snapshot
	skip int
	mu   sync.Mutex
}

func newWatcher[K comparable, V any](buffer int, cancel func()) *Watcher[K, V] {
	return &Watcher[K, V]{
		result: make(chan change.ChangeSet[K, V], buffer),
		cancel: cancel,
	}
}

// ResultChan returns the channel the member change sets are delivered on. The channel is closed
// when the watcher is stopped or the group is evicted. Change sets are not shared with other
// watchers.
func (w *Watcher[K, V]) ResultChan() <-chan change.ChangeSet[K, V] {
	return w.result
}

// Stop stops the watcher and closes the result channel. It is safe to call Stop more than once.
func (w *Watcher[K, V]) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		w.cancel()
		close(w.result)
	}
}

// send delivers cs without blocking and reports whether the change set was accepted.
func (w *Watcher[K, V]) send(cs change.ChangeSet[K, V]) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return true
	}
	select {
	case w.result <- cs:
		return true
	default:
		return false
	}
}
