package classify

import (
	"errors"

	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
)

// Kind is a classification failure category.
type Kind string

const (
	KindTransient   Kind = "transient"
	KindRateLimited Kind = "rate_limited"
	KindMalformed   Kind = "malformed"
	KindBudget      Kind = "budget"
	KindPermanent   Kind = "permanent"
)

// ErrBudgetExceeded is reported when a reservation would pass the ceiling.
var ErrBudgetExceeded = cost.ErrBudgetExceeded

// Error is a classification failure of a known kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return "classify: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the failure kind of err. Errors without an explicit kind are
// transient when resilience says so and permanent otherwise.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, cost.ErrBudgetExceeded) {
		return KindBudget
	}
	if resilience.IsTransient(err) {
		return KindTransient
	}
	return KindPermanent
}

// FailureKind maps k onto the run summary's failure counters.
func (k Kind) FailureKind() model.FailureKind {
	switch k {
	case KindTransient:
		return model.FailureClassifyTransient
	case KindRateLimited:
		return model.FailureRateLimited
	case KindMalformed:
		return model.FailureClassifyMalformed
	case KindBudget:
		return model.FailureBudget
	default:
		return model.FailureClassifyPermanent
	}
}

// shouldRetry is the retry policy. Transient and rate-limited errors retry
// until attempts run out. malformed counts the malformed replies seen for the
// lead so far, err included; only the first one earns another attempt.
func shouldRetry(err error, malformed int) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	case KindMalformed:
		return malformed < 2
	default:
		return false
	}
}
