package moderation

import (
	"encoding/json"
	"fmt"

	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/pkg/types"
)

func toEntry(rec ledger.QueueRecord) types.QueueEntry {
	return types.QueueEntry{
		QueueID:          rec.QueueID,
		SubmissionID:     rec.SubmissionID,
		ContractID:       rec.ContractID,
		Status:           types.QueueStatus(rec.Status),
		Lane:             types.PublishingLane(rec.Lane),
		EvidenceCoverage: rec.EvidenceCoverage,
		EvidencePackID:   deref(rec.EvidencePackID),
		ValidationID:     deref(rec.ValidationID),
		ReviewedBy:       deref(rec.ReviewedBy),
		ReviewedAt:       deref(rec.ReviewedAt),
		ReviewNotes:      deref(rec.ReviewNotes),
		QASignoffBy:      deref(rec.QASignoffBy),
		QASignoffAt:      deref(rec.QASignoffAt),
		QANotes:          deref(rec.QANotes),
		RejectionReason:  deref(rec.RejectionReason),
		PublishedBy:      deref(rec.PublishedBy),
		PublishedAt:      deref(rec.PublishedAt),
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func toSubmission(rec ledger.SubmissionRecord) (types.PartnerSubmission, error) {
	sub := types.PartnerSubmission{
		SubmissionID:      rec.SubmissionID,
		ContractID:        rec.ContractID,
		SubmittedBy:       rec.SubmittedBy,
		Title:             rec.Title,
		Description:       rec.Description,
		SourceDescription: rec.SourceDescription,
		Status:            types.SubmissionStatus(rec.Status),
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	if err := json.Unmarshal(rec.DataJSON, &sub.Data); err != nil {
		return types.PartnerSubmission{}, fmt.Errorf("decode submission %s: %w", rec.SubmissionID, err)
	}
	if sub.Data.Records == nil {
		sub.Data.Records = []types.Record{}
	}
	return sub, nil
}

func toValidation(rec ledger.ValidationRecord) (types.ValidationResult, error) {
	var res types.ValidationResult
	if err := json.Unmarshal(rec.BodyJSON, &res); err != nil {
		return types.ValidationResult{}, fmt.Errorf("decode validation %s: %w", rec.ValidationID, err)
	}
	return res, nil
}

func toContradiction(rec ledger.ContradictionRecord) types.Contradiction {
	return types.Contradiction{
		ContradictionID: rec.ContradictionID,
		IndicatorCode:   rec.IndicatorCode,
		Period:          rec.Period,
		ExistingValue:   rec.ExistingValue,
		SubmittedValue:  rec.SubmittedValue,
		ExistingSource:  rec.ExistingSource,
		RecordIndex:     rec.RecordIndex,
		Resolution:      types.Resolution(rec.Resolution),
	}
}

func toPublication(rec ledger.PublicationRecord) types.Publication {
	return types.Publication{
		PublicationID: rec.PublicationID,
		QueueID:       rec.QueueID,
		SubmissionID:  rec.SubmissionID,
		ContractID:    rec.ContractID,
		Lane:          types.PublishingLane(rec.Lane),
		RecordCount:   rec.RecordCount,
		RecordsDigest: rec.RecordsDigest,
		PublishedBy:   rec.PublishedBy,
		PublishedAt:   rec.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
