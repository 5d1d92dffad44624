package grouper

import (
	"errors"
	"fmt"

	"github.com/l7mp/dgroup/pkg/change"
)

var (
	// ErrMissingPriorState is returned when an Update or Remove arrives for a key that has no
	// ledger entry. The upstream source must always Add a key before updating or removing it.
	ErrMissingPriorState = errors.New("missing prior state")

	// ErrGroupEvicted is returned when watching a group that is no longer in the registry.
	ErrGroupEvicted = errors.New("group evicted")
)

type ErrContractViolation = error

func NewMissingPriorStateError(key any, reason change.Reason) ErrContractViolation {
	return fmt.Errorf("%s for key %v: %w", reason, key, ErrMissingPriorState)
}

type ErrSelector = error

func NewSelectorError(key any, err error) ErrSelector {
	return fmt.Errorf("grouping function failed for key %v: %w", key, err)
}

type ErrUnknownReason = error

func NewUnknownReasonError(key any, reason change.Reason) ErrUnknownReason {
	return fmt.Errorf("unknown change reason %s for key %v", reason, key)
}
