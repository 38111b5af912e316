package types

type QueueStatus string

const (
	StatusReceived                QueueStatus = "received"
	StatusValidating              QueueStatus = "validating"
	StatusFailedValidation        QueueStatus = "failed_validation"
	StatusQuarantined             QueueStatus = "quarantined"
	StatusPendingReview           QueueStatus = "pending_review"
	StatusApprovedRestricted      QueueStatus = "approved_restricted"
	StatusApprovedPublicAggregate QueueStatus = "approved_public_aggregate"
	StatusPublished               QueueStatus = "published"
	StatusRejected                QueueStatus = "rejected"
)

// AllQueueStatuses lists every workflow state in graph order.
var AllQueueStatuses = []QueueStatus{
	StatusReceived,
	StatusValidating,
	StatusFailedValidation,
	StatusQuarantined,
	StatusPendingReview,
	StatusApprovedRestricted,
	StatusApprovedPublicAggregate,
	StatusPublished,
	StatusRejected,
}

type PublishingLane string

const (
	LaneNone       PublishingLane = "none"
	LaneRestricted PublishingLane = "lane_b_restricted"
	LanePublic     PublishingLane = "lane_a_public"
)

var AllLanes = []PublishingLane{LaneNone, LaneRestricted, LanePublic}

type QueueEntry struct {
	QueueID          string         `json:"queue_id"`
	SubmissionID     string         `json:"submission_id"`
	ContractID       string         `json:"contract_id"`
	Status           QueueStatus    `json:"status"`
	Lane             PublishingLane `json:"publishing_lane"`
	EvidenceCoverage int            `json:"evidence_coverage"`
	EvidencePackID   string         `json:"evidence_pack_id,omitempty"`
	ValidationID     string         `json:"validation_id,omitempty"`
	ReviewedBy       string         `json:"reviewed_by,omitempty"`
	ReviewedAt       string         `json:"reviewed_at,omitempty"`
	ReviewNotes      string         `json:"review_notes,omitempty"`
	QASignoffBy      string         `json:"qa_signoff_by,omitempty"`
	QASignoffAt      string         `json:"qa_signoff_at,omitempty"`
	QANotes          string         `json:"qa_notes,omitempty"`
	RejectionReason  string         `json:"rejection_reason,omitempty"`
	PublishedBy      string         `json:"published_by,omitempty"`
	PublishedAt      string         `json:"published_at,omitempty"`
	Version          int            `json:"version"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

type ReviewDecision struct {
	Status          QueueStatus    `json:"status"`
	Lane            PublishingLane `json:"lane,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

type QueueFilter struct {
	Status QueueStatus    `json:"status,omitempty"`
	Lane   PublishingLane `json:"lane,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}

type ModerationStats struct {
	ByStatus map[QueueStatus]int    `json:"by_status"`
	ByLane   map[PublishingLane]int `json:"by_lane"`
}

type Publication struct {
	PublicationID string         `json:"publication_id"`
	QueueID       string         `json:"queue_id"`
	SubmissionID  string         `json:"submission_id"`
	ContractID    string         `json:"contract_id"`
	Lane          PublishingLane `json:"lane"`
	RecordCount   int            `json:"record_count"`
	RecordsDigest string         `json:"records_digest"`
	PublishedBy   string         `json:"published_by"`
	PublishedAt   string         `json:"published_at"`
}
