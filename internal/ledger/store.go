package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStaleState       = errors.New("stale state: entry changed since it was read")
	ErrAlreadyQueued    = errors.New("submission already has a moderation queue entry")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// TimeLayout is fixed-width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Store is the durable state behind the pipeline. Reads outside WithTx see
// committed data only; every mutation goes through a Tx so that an entry
// update and its audit record commit or roll back together.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetSubmission(ctx context.Context, submissionID string) (SubmissionRecord, error)
	// ListSubmissions returns newest first.
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]SubmissionRecord, error)

	ListValidations(ctx context.Context, submissionID string) ([]ValidationRecord, error)
	GetContradiction(ctx context.Context, contradictionID string) (ContradictionRecord, error)
	ListContradictions(ctx context.Context, submissionID string) ([]ContradictionRecord, error)

	GetQueueEntry(ctx context.Context, queueID string) (QueueRecord, error)
	GetQueueEntryBySubmission(ctx context.Context, submissionID string) (QueueRecord, error)
	ListQueueEntries(ctx context.Context, filter QueueFilter) ([]QueueRecord, error)
	CountQueueEntries(ctx context.Context) ([]QueueCount, error)

	GetPolicy(ctx context.Context, key string) (PolicyRecord, error)
	ListPolicies(ctx context.Context) ([]PolicyRecord, error)

	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)

	GetPublication(ctx context.Context, publicationID string) (PublicationRecord, error)
	GetOutbox(ctx context.Context, notificationID string) (OutboxRecord, error)
	ListOutboxDue(ctx context.Context, now string, limit int) ([]OutboxRecord, error)
	PutOutbox(ctx context.Context, rec OutboxRecord) error

	LookupObservation(ctx context.Context, indicatorCode string, date string) (ObservationRecord, error)
}

type Tx interface {
	PutSubmission(rec SubmissionRecord) error
	UpdateSubmissionStatus(submissionID string, status string, updatedAt string) error

	PutValidation(rec ValidationRecord) error
	PutContradiction(rec ContradictionRecord) error
	UpdateContradictionResolution(contradictionID string, resolution string, resolvedBy string, resolvedAt string) error

	CreateQueueEntry(rec QueueRecord) error
	GetQueueEntry(queueID string) (QueueRecord, error)
	// UpdateQueueEntry writes rec only if the stored entry still has
	// expectedStatus and expectedVersion; otherwise it returns ErrStaleState.
	UpdateQueueEntry(rec QueueRecord, expectedStatus string, expectedVersion int) error

	GetPolicy(key string) (PolicyRecord, error)
	PutPolicy(rec PolicyRecord) error

	AppendAudit(rec AuditRecord) error

	PutPublication(rec PublicationRecord) error
	PutOutbox(rec OutboxRecord) error
}

type SubmissionRecord struct {
	SubmissionID      string
	ContractID        string
	SubmittedBy       string
	Title             string
	Description       string
	SourceDescription string
	Status            string
	DataJSON          []byte
	CreatedAt         string
	UpdatedAt         string
}

type ValidationRecord struct {
	ValidationID string
	SubmissionID string
	ContractID   string
	Passed       bool
	Score        int
	BodyJSON     []byte
	BodyDigest   string
	CreatedAt    string
}

type ContradictionRecord struct {
	ContradictionID string
	SubmissionID    string
	ValidationID    string
	IndicatorCode   string
	Period          string
	ExistingValue   float64
	SubmittedValue  float64
	ExistingSource  string
	RecordIndex     int
	Resolution      string // pending | accepted | rejected
	ResolvedBy      *string
	ResolvedAt      *string
	CreatedAt       string
}

type QueueRecord struct {
	QueueID          string
	SubmissionID     string
	ContractID       string
	Status           string
	Lane             string
	EvidenceCoverage int
	EvidencePackID   *string
	ValidationID     *string
	ReviewedBy       *string
	ReviewedAt       *string
	ReviewNotes      *string
	QASignoffBy      *string
	QASignoffAt      *string
	QANotes          *string
	RejectionReason  *string
	PublishedBy      *string
	PublishedAt      *string
	Version          int
	CreatedAt        string
	UpdatedAt        string
}

type SubmissionFilter struct {
	SubmittedBy string
	Status      string
	Limit       int
	Offset      int
}

type QueueFilter struct {
	Status string
	Lane   string
	Limit  int
	Offset int
}

type QueueCount struct {
	Status string
	Lane   string
	Count  int
}

type PolicyRecord struct {
	PolicyKey string
	ValueJSON []byte
	UpdatedBy *string
	UpdatedAt string
}

type AuditRecord struct {
	EntryID       string
	ActorID       string
	Action        string
	Category      string
	TargetType    string
	TargetID      string
	PreviousJSON  []byte
	NewJSON       []byte
	PayloadDigest string
	CreatedAt     string
}

type AuditFilter struct {
	Category   string
	ActorID    string
	TargetType string
	TargetID   string
	Limit      int
	Offset     int
}

type PublicationRecord struct {
	PublicationID string
	QueueID       string
	SubmissionID  string
	ContractID    string
	Lane          string
	RecordCount   int
	RecordsDigest string
	PublishedBy   string
	CreatedAt     string
}

type OutboxRecord struct {
	NotificationID string
	PublicationID  string
	Topic          string
	MessageJSON    []byte
	Status         string // pending | sent
	AttemptCount   int
	NextAttemptAt  string
	LastError      *string
	SentAt         *string
	CreatedAt      string
	UpdatedAt      string
}

// ObservationRecord is one authoritative time-series point. Date is a
// calendar date (YYYY-MM-DD).
type ObservationRecord struct {
	IndicatorCode string
	Date          string
	Value         float64
	SourceID      string
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// NormalizeLimit clamps list limits to [1, MaxListLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
