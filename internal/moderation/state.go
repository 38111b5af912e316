package moderation

import "github.com/davidahmann/partnergate/pkg/types"

var transitions = map[types.QueueStatus][]types.QueueStatus{
	types.StatusReceived:   {types.StatusValidating, types.StatusRejected},
	types.StatusValidating: {types.StatusPendingReview, types.StatusFailedValidation, types.StatusQuarantined, types.StatusRejected},
	// Dead ends: only an administrative reject closes them.
	types.StatusFailedValidation: {types.StatusRejected},
	types.StatusQuarantined:      {types.StatusRejected},
	types.StatusPendingReview: {
		types.StatusApprovedRestricted,
		types.StatusApprovedPublicAggregate,
		types.StatusRejected,
		types.StatusQuarantined,
	},
	types.StatusApprovedRestricted:      {types.StatusPublished, types.StatusRejected},
	types.StatusApprovedPublicAggregate: {types.StatusPublished, types.StatusRejected},
}

// CanTransition reports whether from → to is an edge of the workflow graph.
func CanTransition(from, to types.QueueStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s types.QueueStatus) bool {
	return s == types.StatusPublished || s == types.StatusRejected
}

func ValidStatus(s types.QueueStatus) bool {
	for _, known := range types.AllQueueStatuses {
		if known == s {
			return true
		}
	}
	return false
}

func ValidSubmissionStatus(s types.SubmissionStatus) bool {
	for _, known := range types.AllSubmissionStatuses {
		if known == s {
			return true
		}
	}
	return false
}

func ValidLane(l types.PublishingLane) bool {
	for _, known := range types.AllLanes {
		if known == l {
			return true
		}
	}
	return false
}

// SubmissionStatusFor maps a queue state to the submission's mirrored status.
func SubmissionStatusFor(s types.QueueStatus) types.SubmissionStatus {
	switch s {
	case types.StatusPendingReview:
		return types.SubmissionUnderReview
	case types.StatusApprovedRestricted, types.StatusApprovedPublicAggregate, types.StatusPublished:
		return types.SubmissionApproved
	case types.StatusFailedValidation, types.StatusQuarantined:
		return types.SubmissionNeedsRevision
	case types.StatusRejected:
		return types.SubmissionRejected
	default:
		return types.SubmissionPending
	}
}

// LaneFor returns the publishing lane an approval decision implies.
func LaneFor(s types.QueueStatus) (types.PublishingLane, bool) {
	switch s {
	case types.StatusApprovedRestricted:
		return types.LaneRestricted, true
	case types.StatusApprovedPublicAggregate:
		return types.LanePublic, true
	default:
		return "", false
	}
}

// InitialOutcome picks the post-validation state.
func InitialOutcome(passed, autoQuarantine bool) types.QueueStatus {
	switch {
	case passed:
		return types.StatusPendingReview
	case autoQuarantine:
		return types.StatusQuarantined
	default:
		return types.StatusFailedValidation
	}
}
