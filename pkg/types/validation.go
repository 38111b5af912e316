package types

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type IssueType string

const (
	IssueDuplicate IssueType = "duplicate"
	IssueGap       IssueType = "gap"
	IssueOutlier   IssueType = "outlier"
)

type Resolution string

const (
	ResolutionPending  Resolution = "pending"
	ResolutionAccepted Resolution = "accepted"
	ResolutionRejected Resolution = "rejected"
)

type ValidationError struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

type ContinuityIssue struct {
	Type            IssueType `json:"type"`
	Description     string    `json:"description"`
	AffectedRecords []int     `json:"affected_records"`
}

type Contradiction struct {
	ContradictionID string     `json:"contradiction_id,omitempty"`
	IndicatorCode   string     `json:"indicator_code"`
	Period          string     `json:"period"`
	ExistingValue   float64    `json:"existing_value"`
	SubmittedValue  float64    `json:"submitted_value"`
	ExistingSource  string     `json:"existing_source"`
	RecordIndex     int        `json:"record_index"`
	Resolution      Resolution `json:"resolution"`
}

type SchemaResult struct {
	Passed bool              `json:"passed"`
	Errors []ValidationError `json:"errors"`
}

type ContinuityResult struct {
	Passed bool              `json:"passed"`
	Issues []ContinuityIssue `json:"issues"`
}

// ContradictionResult is Layer 3. Inconclusive is set when the reference
// store could not be consulted; Passed then follows the configured mode.
type ContradictionResult struct {
	Passed         bool            `json:"passed"`
	Inconclusive   bool            `json:"inconclusive,omitempty"`
	Error          string          `json:"error,omitempty"`
	Contradictions []Contradiction `json:"contradictions"`
}

type OverallResult struct {
	Passed bool `json:"passed"`
	Score  int  `json:"score"`
}

type ValidationResult struct {
	ValidationID  string              `json:"validation_id,omitempty"`
	SubmissionID  string              `json:"submission_id,omitempty"`
	ContractID    string              `json:"contract_id,omitempty"`
	Schema        SchemaResult        `json:"layer1"`
	Continuity    ContinuityResult    `json:"layer2"`
	Contradiction ContradictionResult `json:"layer3"`
	Overall       OverallResult       `json:"overall"`
	ValidatedAt   string              `json:"validated_at,omitempty"`
}
