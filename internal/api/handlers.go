package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/davidahmann/partnergate/internal/audit"
	"github.com/davidahmann/partnergate/internal/auth"
	"github.com/davidahmann/partnergate/internal/contracts"
	"github.com/davidahmann/partnergate/internal/governance"
	"github.com/davidahmann/partnergate/internal/moderation"
	"github.com/davidahmann/partnergate/pkg/types"
)

const maxBodyBytes = 10 << 20

const (
	RoleReviewer  = "reviewer"
	RoleQA        = "qa"
	RolePublisher = "publisher"
	RoleAdmin     = "admin"
)

type Handler struct {
	Auth       auth.Authenticator
	Moderation *moderation.Service
	Policies   *governance.Service
	Contracts  contracts.Registry
	Audit      audit.Reader
	Metrics    http.Handler
	Log        *zap.Logger
}

type startWorkflowRequest struct {
	SubmissionID string `json:"submission_id"`
	ContractID   string `json:"contract_id,omitempty"`
}

type runValidationRequest struct {
	ContractID string `json:"contract_id,omitempty"`
}

type signoffRequest struct {
	Notes string `json:"notes,omitempty"`
}

type evidenceRequest struct {
	Coverage       *int   `json:"evidence_coverage"`
	EvidencePackID string `json:"evidence_pack_id,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type policyRequest struct {
	Value json.RawMessage `json:"value"`
}

type resolveRequest struct {
	Resolution types.Resolution `json:"resolution"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req moderation.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Moderation.SubmitData(r.Context(), actor.ID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	sub, err := h.Moderation.Submission(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) ValidationHistory(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	history, err := h.Moderation.ValidationHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": history})
}

func (h *Handler) RunValidation(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req runValidationRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	res, err := h.Moderation.RunValidation(r.Context(), actor.ID, r.PathValue("id"), req.ContractID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) Contradictions(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	list, err := h.Moderation.Contradictions(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contradictions": list})
}

func (h *Handler) StartWorkflow(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req startWorkflowRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SubmissionID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "submission_id is required", Code: "bad_request"})
		return
	}
	res, err := h.Moderation.StartWorkflow(r.Context(), actor.ID, req.SubmissionID, req.ContractID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListSubmissions returns the caller's own submissions. Reviewers may pass
// submitted_by to look at another partner, or omit it to see everyone.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	q := r.URL.Query()
	limit, offset, ok := paging(w, q.Get("limit"), q.Get("offset"))
	if !ok {
		return
	}
	submitter := actor.ID
	if actor.HasRole(RoleReviewer) {
		submitter = q.Get("submitted_by")
	}
	subs, err := h.Moderation.Submissions(r.Context(), types.SubmissionFilter{
		SubmittedBy: submitter,
		Status:      types.SubmissionStatus(q.Get("status")),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (h *Handler) Queue(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	q := r.URL.Query()
	limit, offset, ok := paging(w, q.Get("limit"), q.Get("offset"))
	if !ok {
		return
	}
	entries, err := h.Moderation.Queue(r.Context(), types.QueueFilter{
		Status: types.QueueStatus(q.Get("status")),
		Lane:   types.PublishingLane(q.Get("lane")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	stats, err := h.Moderation.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	entry, err := h.Moderation.Entry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req types.ReviewDecision
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.Moderation.Review(r.Context(), r.PathValue("id"), req, actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) QASignoff(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req signoffRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	entry, err := h.Moderation.QASignoff(r.Context(), r.PathValue("id"), actor.ID, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	pub, err := h.Moderation.Publish(r.Context(), r.PathValue("id"), actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pub)
}

func (h *Handler) Evidence(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req evidenceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Coverage == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "evidence_coverage is required", Code: "bad_request"})
		return
	}
	entry, err := h.Moderation.UpdateEvidenceCoverage(r.Context(), r.PathValue("id"), *req.Coverage, req.EvidencePackID, actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.Moderation.Reject(r.Context(), r.PathValue("id"), actor.ID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	list, err := h.Policies.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": list})
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	p, err := h.Policies.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req policyRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Policies.Update(r.Context(), actor.ID, r.PathValue("key"), req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListContracts(w http.ResponseWriter, _ *http.Request, _ auth.Actor) {
	writeJSON(w, http.StatusOK, map[string]any{"contracts": h.Contracts.List()})
}

func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	c, err := h.Contracts.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ResolveContradiction(w http.ResponseWriter, r *http.Request, actor auth.Actor) {
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Moderation.ResolveContradiction(r.Context(), r.PathValue("id"), req.Resolution, actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request, _ auth.Actor) {
	q := r.URL.Query()
	limit, offset, ok := paging(w, q.Get("limit"), q.Get("offset"))
	if !ok {
		return
	}
	entries, err := audit.Query(r.Context(), h.Audit, types.AuditFilter{
		Category:   types.AuditCategory(q.Get("category")),
		ActorID:    q.Get("actor_id"),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Code: "bad_request"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decode(w, r, dst)
}

func paging(w http.ResponseWriter, limitRaw, offsetRaw string) (int, int, bool) {
	limit, err := atoiDefault(limitRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be an integer", Code: "bad_request"})
		return 0, 0, false
	}
	offset, err := atoiDefault(offsetRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "offset must be an integer", Code: "bad_request"})
		return 0, 0, false
	}
	if limit < 0 || offset < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit and offset must be non-negative", Code: "bad_request"})
		return 0, 0, false
	}
	return limit, offset, true
}

func atoiDefault(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	body := errorBody{Error: err.Error(), Code: code}
	var pv *moderation.PolicyViolation
	if errors.As(err, &pv) {
		body.Policy = pv.Policy
		body.Required = &pv.Required
		body.Actual = &pv.Actual
	}
	writeJSON(w, status, body)
}

func (h *Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
