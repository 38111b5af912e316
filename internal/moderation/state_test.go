package moderation

import (
	"errors"
	"testing"

	"github.com/davidahmann/partnergate/pkg/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to types.QueueStatus
		ok       bool
	}{
		{types.StatusReceived, types.StatusValidating, true},
		{types.StatusValidating, types.StatusPendingReview, true},
		{types.StatusValidating, types.StatusQuarantined, true},
		{types.StatusPendingReview, types.StatusApprovedPublicAggregate, true},
		{types.StatusPendingReview, types.StatusQuarantined, true},
		{types.StatusApprovedRestricted, types.StatusPublished, true},
		{types.StatusQuarantined, types.StatusRejected, true},
		{types.StatusPendingReview, types.StatusPublished, false},
		{types.StatusQuarantined, types.StatusPendingReview, false},
		{types.StatusFailedValidation, types.StatusValidating, false},
		{types.StatusPublished, types.StatusRejected, false},
		{types.StatusRejected, types.StatusPendingReview, false},
		{types.StatusReceived, types.StatusPendingReview, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for _, st := range types.AllQueueStatuses {
		for _, to := range types.AllQueueStatuses {
			if IsTerminal(st) && CanTransition(st, to) {
				t.Fatalf("terminal %s must not move to %s", st, to)
			}
		}
	}
}

func TestSubmissionStatusFor(t *testing.T) {
	cases := map[types.QueueStatus]types.SubmissionStatus{
		types.StatusReceived:                types.SubmissionPending,
		types.StatusValidating:              types.SubmissionPending,
		types.StatusPendingReview:           types.SubmissionUnderReview,
		types.StatusApprovedRestricted:      types.SubmissionApproved,
		types.StatusApprovedPublicAggregate: types.SubmissionApproved,
		types.StatusPublished:               types.SubmissionApproved,
		types.StatusFailedValidation:        types.SubmissionNeedsRevision,
		types.StatusQuarantined:             types.SubmissionNeedsRevision,
		types.StatusRejected:                types.SubmissionRejected,
	}
	for st, want := range cases {
		if got := SubmissionStatusFor(st); got != want {
			t.Fatalf("%s: expected %s got %s", st, want, got)
		}
	}
}

func TestInitialOutcome(t *testing.T) {
	if InitialOutcome(true, true) != types.StatusPendingReview {
		t.Fatalf("passed validation must go to pending_review")
	}
	if InitialOutcome(false, true) != types.StatusQuarantined {
		t.Fatalf("expected quarantined")
	}
	if InitialOutcome(false, false) != types.StatusFailedValidation {
		t.Fatalf("expected failed_validation")
	}
}

func TestErrorTypesUnwrap(t *testing.T) {
	var err error = &TransitionError{From: types.StatusPendingReview, To: types.StatusPublished}
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("TransitionError must unwrap to ErrInvalidStateTransition")
	}
	if err.Error() != "invalid state transition: pending_review -> published" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	err = &PolicyViolation{Policy: "evidence_coverage_threshold", Required: 95, Actual: 94}
	if !errors.Is(err, ErrInsufficientEvidenceCoverage) {
		t.Fatalf("PolicyViolation must unwrap to ErrInsufficientEvidenceCoverage")
	}
	if guardKind(err) != "insufficient_coverage" {
		t.Fatalf("unexpected guard kind %s", guardKind(err))
	}
}
