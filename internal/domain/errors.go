package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	ErrEmptyLedger         = errors.New("ledger has no entries")
	ErrUnorderedLedger     = errors.New("ledger entries are not ordered by occurred_at, id")
	ErrInvalidEntry        = errors.New("invalid ledger entry")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInconsistentFee     = errors.New("fee and fee type must be set together")
	ErrUnknownReason       = errors.New("unknown transaction reason")
)

// InsufficientBalanceError rejects an outflow larger than the quantity held.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s", e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// InconsistentFeeError is returned when only one of fee and fee type is set.
type InconsistentFeeError struct {
	HasFee     bool
	HasFeeType bool
}

func (e *InconsistentFeeError) Error() string {
	return fmt.Sprintf("fee and fee type must be set together (fee set: %t, fee type set: %t)", e.HasFee, e.HasFeeType)
}

func (e *InconsistentFeeError) Is(target error) bool {
	return target == ErrInconsistentFee
}

// UnknownReasonError means an entry carries a reason outside the closed set.
// It indicates a programming or data error and is never defaulted.
type UnknownReasonError struct {
	Reason Reason
}

func (e *UnknownReasonError) Error() string {
	return fmt.Sprintf("unknown transaction reason %q", string(e.Reason))
}

func (e *UnknownReasonError) Is(target error) bool {
	return target == ErrUnknownReason
}
