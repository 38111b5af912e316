package validation

import "github.com/davidahmann/partnergate/pkg/types"

// Deductions per finding.
const (
	PenaltySchemaError   = 10
	PenaltySchemaWarning = 2
	PenaltyDuplicate     = 15
	PenaltyGap           = 5
	PenaltyOutlier       = 3
	PenaltyContradiction = 20
)

// Tally is the finding count that drives the score.
type Tally struct {
	Errors         int
	Warnings       int
	Duplicates     int
	Gaps           int
	Outliers       int
	Contradictions int
}

func TallyOf(schema types.SchemaResult, continuity types.ContinuityResult, contra types.ContradictionResult) Tally {
	t := Tally{
		Errors:         countSeverity(schema.Errors, types.SeverityError),
		Warnings:       countSeverity(schema.Errors, types.SeverityWarning),
		Contradictions: len(contra.Contradictions),
	}
	for _, issue := range continuity.Issues {
		switch issue.Type {
		case types.IssueDuplicate:
			t.Duplicates++
		case types.IssueGap:
			t.Gaps++
		case types.IssueOutlier:
			t.Outliers++
		}
	}
	return t
}

// Score is 100 minus the weighted findings, clamped to [0, 100].
func Score(t Tally) int {
	score := 100 -
		PenaltySchemaError*t.Errors -
		PenaltySchemaWarning*t.Warnings -
		PenaltyDuplicate*t.Duplicates -
		PenaltyGap*t.Gaps -
		PenaltyOutlier*t.Outliers -
		PenaltyContradiction*t.Contradictions
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
