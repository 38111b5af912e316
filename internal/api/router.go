package api

import (
	"net/http"
	"strconv"

	"github.com/davidahmann/partnergate/internal/auth"
	"github.com/davidahmann/partnergate/internal/metrics"
)

type actorHandler func(http.ResponseWriter, *http.Request, auth.Actor)

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, role string, fn actorHandler) {
		mux.Handle(pattern, instrument(pattern, h.authenticated(role, fn)))
	}

	route("POST /v1/submissions", "", h.Submit)
	route("GET /v1/submissions", "", h.ListSubmissions)
	route("GET /v1/submissions/{id}", "", h.GetSubmission)
	route("GET /v1/submissions/{id}/validations", "", h.ValidationHistory)
	route("POST /v1/submissions/{id}/validations", RoleReviewer, h.RunValidation)
	route("GET /v1/submissions/{id}/contradictions", "", h.Contradictions)
	route("POST /v1/workflows", "", h.StartWorkflow)

	route("GET /v1/queue", "", h.Queue)
	route("GET /v1/queue/stats", "", h.QueueStats)
	route("GET /v1/queue/{id}", "", h.GetEntry)
	route("POST /v1/queue/{id}/review", RoleReviewer, h.Review)
	route("POST /v1/queue/{id}/qa-signoff", RoleQA, h.QASignoff)
	route("POST /v1/queue/{id}/publish", RolePublisher, h.Publish)
	route("POST /v1/queue/{id}/evidence", RoleReviewer, h.Evidence)
	route("POST /v1/queue/{id}/reject", RoleReviewer, h.Reject)

	route("GET /v1/policies", "", h.ListPolicies)
	route("GET /v1/policies/{key}", "", h.GetPolicy)
	route("PUT /v1/policies/{key}", RoleAdmin, h.PutPolicy)

	route("GET /v1/contracts", "", h.ListContracts)
	route("GET /v1/contracts/{id}", "", h.GetContract)

	route("POST /v1/contradictions/{id}/resolve", RoleReviewer, h.ResolveContradiction)
	route("GET /v1/audit", RoleAdmin, h.AuditLog)

	mux.Handle("GET /healthz", instrument("GET /healthz", http.HandlerFunc(h.Healthz)))
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	return mux
}

// authenticated resolves the actor and enforces role when one is given.
func (h *Handler) authenticated(role string, fn actorHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication not configured", Code: "unauthorized"})
			return
		}
		actor, err := h.Auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "unauthorized"})
			return
		}
		if role != "" && !actor.HasRole(role) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "actor lacks role " + role, Code: "forbidden"})
			return
		}
		fn(w, r, actor)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
