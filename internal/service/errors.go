package service

import (
	"errors"
	"fmt"

	"github.com/templui/goalstake/internal/model"
)

// Kind categorizes engine errors so callers can pick a retry policy.
type Kind string

const (
	// KindInvalidInput is a malformed request. Not retryable without correction.
	KindInvalidInput Kind = "invalid_input"

	// KindNotFound is an unknown goal, proof or cohort.
	KindNotFound Kind = "not_found"

	// KindInvalidState is a transition attempted from the wrong status.
	// Error.Current carries the status the goal is actually in.
	KindInvalidState Kind = "invalid_state"

	// KindNotConfirmed means the ledger has not confirmed the transfer yet.
	KindNotConfirmed Kind = "not_confirmed"

	// KindLedgerUnavailable is a transient ledger fault. Retry with backoff.
	KindLedgerUnavailable Kind = "ledger_unavailable"

	// KindInsufficientFunds means the escrow cannot cover a payout.
	// Needs operator funding before a retry can succeed.
	KindInsufficientFunds Kind = "insufficient_funds"

	// KindCohortNotFinal means a cohort still has active goals.
	KindCohortNotFinal Kind = "cohort_not_final"

	// KindSettlementInProgress means another run holds the cohort.
	KindSettlementInProgress Kind = "settlement_in_progress"

	// KindValidationTimeout marks a verdict forced to needs_review because the
	// validator did not answer. It is reported, never returned as a failure.
	KindValidationTimeout Kind = "validation_timeout"

	// KindDemoDisabled means the demo path was requested outside demo mode.
	KindDemoDisabled Kind = "demo_disabled"

	KindInternal Kind = "internal"
)

// Retryable reports whether repeating the same call later can succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindNotConfirmed, KindLedgerUnavailable, KindCohortNotFinal, KindSettlementInProgress:
		return true
	}
	return false
}

// Error is the error type returned by the lifecycle and settlement services.
type Error struct {
	Kind   Kind
	Detail string
	// Current is the goal status observed when the error was raised, if any.
	Current model.GoalStatus
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	if e.Current != "" {
		msg += fmt.Sprintf(" (current status %s)", e.Current)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func invalidState(detail string, current model.GoalStatus) *Error {
	return &Error{Kind: KindInvalidState, Detail: detail, Current: current}
}

// KindOf returns the kind of err, KindInternal for foreign errors and ""
// for nil. Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an engine error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
