// Package runner drives a Grouper from an upstream stream of change sets and an out-of-band
// regroup trigger.
package runner

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/dgroup/pkg/change"
	"github.com/l7mp/dgroup/pkg/grouper"
)

// Kind tells which entry point produced a result.
type Kind string

const (
	KindApply   Kind = "apply"
	KindRegroup Kind = "regroup"
)

// Result is the outcome of one batch.
type Result[K comparable, V any, G comparable] struct {
	Kind    Kind
	Changes grouper.GroupChangeSet[K, V, G]
	Err     error
}

// Sink receives the result of every batch, in processing order.
type Sink[K comparable, V any, G comparable] func(Result[K, V, G])

// Options configures a Runner.
type Options struct {
	Logger logr.Logger
	// StopOnError makes Start return the first batch error instead of reporting it to the sink
	// and carrying on.
	StopOnError bool
}

// Runner feeds a Grouper from its two call sites. All batches go through the grouper lock, so
// the runner may coexist with direct Apply/Regroup calls.
type Runner[K comparable, V any, G comparable] struct {
	grouper     *grouper.Grouper[K, V, G]
	source      <-chan change.ChangeSet[K, V]
	trigger     <-chan struct{}
	sink        Sink[K, V, G]
	stopOnError bool
	log         logr.Logger
}

// New creates a runner. A nil trigger disables regrouping.
func New[K comparable, V any, G comparable](g *grouper.Grouper[K, V, G], source <-chan change.ChangeSet[K, V],
	trigger <-chan struct{}, sink Sink[K, V, G], opts Options) *Runner[K, V, G] {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if sink == nil {
		sink = func(Result[K, V, G]) {}
	}
	return &Runner[K, V, G]{
		grouper:     g,
		source:      source,
		trigger:     trigger,
		sink:        sink,
		stopOnError: opts.StopOnError,
		log:         logger.WithName("runner"),
	}
}

// Start processes batches until ctx is canceled or the source is closed. It returns nil when the
// source is drained, ctx.Err() on cancellation, and the batch error if StopOnError is set.
func (r *Runner[K, V, G]) Start(ctx context.Context) error {
	r.log.V(2).Info("starting")
	defer r.log.V(2).Info("stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cs, ok := <-r.source:
			if !ok {
				return nil
			}
			events, err := r.grouper.Apply(cs)
			if err := r.report(KindApply, events, err); err != nil {
				return err
			}

		case _, ok := <-r.trigger:
			if !ok {
				// trigger closed: keep serving the source
				r.trigger = nil
				continue
			}
			events, err := r.grouper.Regroup()
			if err := r.report(KindRegroup, events, err); err != nil {
				return err
			}
		}
	}
}

func (r *Runner[K, V, G]) report(kind Kind, events grouper.GroupChangeSet[K, V, G], err error) error {
	if err != nil {
		r.log.Error(err, "batch failed", "kind", kind)
	}
	r.sink(Result[K, V, G]{Kind: kind, Changes: events, Err: err})
	if err != nil && r.stopOnError {
		return err
	}
	return nil
}

// Ticker returns a regroup trigger that fires every d until ctx is canceled. Ticks are dropped
// while a previous one is still pending.
func Ticker(ctx context.Context, d time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}
