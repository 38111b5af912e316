package types

type SubmissionStatus string

// Submission status mirrors the moderation outcome for presentation layers.
const (
	SubmissionPending       SubmissionStatus = "pending"
	SubmissionUnderReview   SubmissionStatus = "under_review"
	SubmissionApproved      SubmissionStatus = "approved"
	SubmissionRejected      SubmissionStatus = "rejected"
	SubmissionNeedsRevision SubmissionStatus = "needs_revision"
)

var AllSubmissionStatuses = []SubmissionStatus{
	SubmissionPending,
	SubmissionUnderReview,
	SubmissionApproved,
	SubmissionRejected,
	SubmissionNeedsRevision,
}

type SubmissionFilter struct {
	SubmittedBy string           `json:"submitted_by,omitempty"`
	Status      SubmissionStatus `json:"status,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Offset      int              `json:"offset,omitempty"`
}

// Record is one row of submitted data. Values keep their decoded JSON
// shape (string, float64, bool, map, slice or nil).
type Record map[string]any

type SubmissionMetadata struct {
	SourceStatement   string `json:"source_statement,omitempty"`
	MethodDescription string `json:"method_description,omitempty"`
	CoverageWindow    string `json:"coverage_window,omitempty"`
	License           string `json:"license,omitempty"`
	ContactInfo       string `json:"contact_info,omitempty"`
}

type SubmissionData struct {
	Records  []Record            `json:"records"`
	Metadata *SubmissionMetadata `json:"metadata,omitempty"`
}

type PartnerSubmission struct {
	SubmissionID      string           `json:"submission_id"`
	ContractID        string           `json:"contract_id"`
	SubmittedBy       string           `json:"submitted_by"`
	Title             string           `json:"title"`
	Description       string           `json:"description,omitempty"`
	SourceDescription string           `json:"source_description"`
	Status            SubmissionStatus `json:"status"`
	Data              SubmissionData   `json:"data"`
	CreatedAt         string           `json:"created_at"`
	UpdatedAt         string           `json:"updated_at"`
}
