package moderation

import (
	"errors"
	"fmt"

	"github.com/davidahmann/partnergate/pkg/types"
)

var (
	ErrInvalidStateTransition       = errors.New("invalid state transition")
	ErrMissingQASignoff             = errors.New("lane A publication requires a recorded QA signoff")
	ErrInsufficientEvidenceCoverage = errors.New("insufficient evidence coverage")
	ErrAlreadySignedOff             = errors.New("QA signoff already recorded")
	ErrRejectionReasonRequired      = errors.New("rejection requires a reason")
	ErrInvalidDecision              = errors.New("invalid review decision")
	ErrInvalidCoverage              = errors.New("evidence coverage must be between 0 and 100")
	ErrInvalidFilter                = errors.New("invalid list filter")
	ErrInvalidResolution            = errors.New("resolution must be accepted or rejected")
	ErrAlreadyResolved              = errors.New("contradiction already resolved")
	ErrActorRequired                = errors.New("actor id is required")
)

// TransitionError is a move outside the workflow graph.
type TransitionError struct {
	From types.QueueStatus
	To   types.QueueStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// PolicyViolation is a governance gate that refused an operation.
type PolicyViolation struct {
	Policy   string
	Required int
	Actual   int
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy %s violated: required %d, got %d", e.Policy, e.Required, e.Actual)
}

func (e *PolicyViolation) Unwrap() error {
	return ErrInsufficientEvidenceCoverage
}

// guardKind labels a refused operation for metrics.
func guardKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, ErrMissingQASignoff):
		return "missing_qa_signoff"
	case errors.Is(err, ErrInsufficientEvidenceCoverage):
		return "insufficient_coverage"
	case errors.Is(err, ErrAlreadySignedOff):
		return "already_signed_off"
	case errors.Is(err, ErrRejectionReasonRequired), errors.Is(err, ErrInvalidDecision), errors.Is(err, ErrInvalidCoverage):
		return "invalid_input"
	default:
		return "other"
	}
}
