// Package metrics provides the metrics collectors used by the grouper.
package metrics

// Collector receives grouper instrumentation. Implementations must be safe for concurrent use.
type Collector interface {
	// BatchProcessed records a processed batch. Kind is "apply" or "regroup".
	BatchProcessed(kind string, changes int, seconds float64)
	// LifecycleEvent records a group lifecycle event ("Add" or "Remove").
	LifecycleEvent(reason string)
	// ContractViolation records a change rejected for lack of prior state.
	ContractViolation(reason string)
	// SetGroups sets the number of groups currently in the registry.
	SetGroups(n int)
	// SetTrackedItems sets the number of items currently in the ledger.
	SetTrackedItems(n int)
}

// Nop discards all metrics.
type Nop struct{}

var _ Collector = (*Nop)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *Nop { return &Nop{} }

func (*Nop) BatchProcessed(_ string, _ int, _ float64) {}
func (*Nop) LifecycleEvent(_ string)                   {}
func (*Nop) ContractViolation(_ string)                {}
func (*Nop) SetGroups(_ int)                           {}
func (*Nop) SetTrackedItems(_ int)                     {}
