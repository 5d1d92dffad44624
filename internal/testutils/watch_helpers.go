package testutils

import (
	"time"

	. "github.com/onsi/gomega"

	"github.com/l7mp/dgroup/pkg/change"
)

// TryWatch attempts to receive a change set from a watcher channel within the specified timeout.
// Returns false on timeout or if the channel was closed.
func TryWatch[K comparable, V any](ch <-chan change.ChangeSet[K, V], timeout time.Duration) (change.ChangeSet[K, V], bool) {
	select {
	case cs, ok := <-ch:
		return cs, ok
	case <-time.After(timeout):
		return nil, false
	}
}

// ExpectClosed asserts that the watcher channel gets closed within the timeout, draining any
// change sets still buffered.
func ExpectClosed[K comparable, V any](ch <-chan change.ChangeSet[K, V], timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			Expect(false).To(BeTrue(), "watcher channel not closed")
			return
		}
	}
}

// MatchChange validates that a change has the expected reason and key.
func MatchChange[K comparable, V any](c change.Change[K, V], reason change.Reason, key K) {
	Expect(c.Reason).To(Equal(reason))
	Expect(c.Key).To(Equal(key))
}
