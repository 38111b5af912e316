package api

import (
	"errors"
	"net/http"

	"github.com/davidahmann/partnergate/internal/contracts"
	"github.com/davidahmann/partnergate/internal/governance"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/moderation"
	"github.com/davidahmann/partnergate/internal/validation"
)

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Policy   string `json:"policy,omitempty"`
	Required *int   `json:"required,omitempty"`
	Actual   *int   `json:"actual,omitempty"`
}

// classify maps service errors to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, contracts.ErrContractNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, moderation.ErrInsufficientEvidenceCoverage):
		return http.StatusUnprocessableEntity, "policy_violation"
	case errors.Is(err, moderation.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, moderation.ErrMissingQASignoff):
		return http.StatusConflict, "missing_qa_signoff"
	case errors.Is(err, moderation.ErrAlreadySignedOff):
		return http.StatusConflict, "already_signed_off"
	case errors.Is(err, moderation.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, ledger.ErrStaleState):
		return http.StatusConflict, "stale_state"
	case errors.Is(err, ledger.ErrAlreadyQueued):
		return http.StatusConflict, "already_queued"
	case errors.Is(err, validation.ErrReferenceUnavailable):
		return http.StatusServiceUnavailable, "reference_unavailable"
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, moderation.ErrInvalidSubmission),
		errors.Is(err, validation.ErrInvalidEnvelope),
		errors.Is(err, moderation.ErrRejectionReasonRequired),
		errors.Is(err, moderation.ErrInvalidDecision),
		errors.Is(err, moderation.ErrInvalidCoverage),
		errors.Is(err, moderation.ErrInvalidFilter),
		errors.Is(err, moderation.ErrInvalidResolution),
		errors.Is(err, moderation.ErrActorRequired),
		errors.Is(err, governance.ErrInvalidPolicy):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
