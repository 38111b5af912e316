package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/davidahmann/partnergate/internal/crypto"
	"github.com/davidahmann/partnergate/internal/governance"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/outbox"
	"github.com/davidahmann/partnergate/pkg/types"
)

// TopicPublicationCreated is the outbox topic for new publications.
const TopicPublicationCreated = "publication.created"

func checkDecision(d types.ReviewDecision) error {
	switch d.Status {
	case types.StatusApprovedRestricted, types.StatusApprovedPublicAggregate:
		lane, _ := LaneFor(d.Status)
		if d.Lane != "" && d.Lane != lane {
			return fmt.Errorf("%w: status %s implies lane %s, got %s", ErrInvalidDecision, d.Status, lane, d.Lane)
		}
	case types.StatusRejected:
		if strings.TrimSpace(d.RejectionReason) == "" {
			return ErrRejectionReasonRequired
		}
		fallthrough
	case types.StatusQuarantined:
		if d.Lane != "" && d.Lane != types.LaneNone {
			return fmt.Errorf("%w: %s carries no publishing lane", ErrInvalidDecision, d.Status)
		}
	default:
		return fmt.Errorf("%w: unsupported status %q", ErrInvalidDecision, d.Status)
	}
	return nil
}

// Review applies a reviewer decision to an entry in pending_review.
func (s *Service) Review(ctx context.Context, queueID string, decision types.ReviewDecision, reviewerID string) (types.QueueEntry, error) {
	const op = "review"
	if reviewerID == "" {
		return types.QueueEntry{}, s.refuse(op, queueID, ErrActorRequired)
	}
	if err := checkDecision(decision); err != nil {
		return types.QueueEntry{}, s.refuse(op, queueID, err)
	}
	before, err := s.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return types.QueueEntry{}, err
	}
	from := types.QueueStatus(before.Status)
	if from != types.StatusPendingReview || !CanTransition(from, decision.Status) {
		return types.QueueEntry{}, s.refuse(op, queueID, &TransitionError{From: from, To: decision.Status})
	}

	now := s.now()
	ts := ledger.FormatTime(now)
	after := before
	after.Status = string(decision.Status)
	if lane, ok := LaneFor(decision.Status); ok {
		after.Lane = string(lane)
	}
	after.ReviewedBy = &reviewerID
	after.ReviewedAt = &ts
	after.ReviewNotes = ptr(decision.Notes)
	if decision.Status == types.StatusRejected {
		after.RejectionReason = ptr(decision.RejectionReason)
	}
	after.Version++
	after.UpdatedAt = ts

	if err := s.commit(ctx, op, before, after, reviewerID, "review_submission", types.CategoryModeration, now, nil); err != nil {
		return types.QueueEntry{}, err
	}
	return toEntry(after), nil
}

// QASignoff records QA approval for lane A. From pending_review it also
// approves the entry for the public lane. Coverage must meet the threshold.
func (s *Service) QASignoff(ctx context.Context, queueID, qaUserID, notes string) (types.QueueEntry, error) {
	const op = "qa_signoff"
	if qaUserID == "" {
		return types.QueueEntry{}, s.refuse(op, queueID, ErrActorRequired)
	}
	before, err := s.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return types.QueueEntry{}, err
	}
	from := types.QueueStatus(before.Status)
	switch from {
	case types.StatusPendingReview:
	case types.StatusApprovedPublicAggregate:
		if before.QASignoffBy != nil {
			return types.QueueEntry{}, s.refuse(op, queueID, ErrAlreadySignedOff)
		}
	default:
		return types.QueueEntry{}, s.refuse(op, queueID, &TransitionError{From: from, To: types.StatusApprovedPublicAggregate})
	}

	threshold, err := s.policies.EvidenceCoverageThreshold(ctx)
	if err != nil {
		return types.QueueEntry{}, err
	}
	if before.EvidenceCoverage < threshold {
		return types.QueueEntry{}, s.refuse(op, queueID, &PolicyViolation{
			Policy:   governance.KeyEvidenceCoverageThreshold,
			Required: threshold,
			Actual:   before.EvidenceCoverage,
		})
	}

	now := s.now()
	ts := ledger.FormatTime(now)
	after := before
	after.Status = string(types.StatusApprovedPublicAggregate)
	after.Lane = string(types.LanePublic)
	after.QASignoffBy = &qaUserID
	after.QASignoffAt = &ts
	after.QANotes = ptr(notes)
	after.Version++
	after.UpdatedAt = ts

	if err := s.commit(ctx, op, before, after, qaUserID, "qa_signoff", types.CategoryModeration, now, nil); err != nil {
		return types.QueueEntry{}, err
	}
	return toEntry(after), nil
}

// Publish moves an approved entry to published and records the publication
// and its outbox notification in the same transaction.
func (s *Service) Publish(ctx context.Context, queueID, publisherID string) (types.Publication, error) {
	const op = "publish"
	if publisherID == "" {
		return types.Publication{}, s.refuse(op, queueID, ErrActorRequired)
	}
	before, err := s.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return types.Publication{}, err
	}
	from := types.QueueStatus(before.Status)
	if from != types.StatusApprovedRestricted && from != types.StatusApprovedPublicAggregate {
		return types.Publication{}, s.refuse(op, queueID, &TransitionError{From: from, To: types.StatusPublished})
	}
	if types.PublishingLane(before.Lane) == types.LanePublic && before.QASignoffBy == nil {
		return types.Publication{}, s.refuse(op, queueID, ErrMissingQASignoff)
	}

	sub, err := s.store.GetSubmission(ctx, before.SubmissionID)
	if err != nil {
		return types.Publication{}, err
	}
	var data types.SubmissionData
	if err := json.Unmarshal(sub.DataJSON, &data); err != nil {
		return types.Publication{}, fmt.Errorf("decode submission %s: %w", sub.SubmissionID, err)
	}
	digest, err := crypto.DigestJSON(data.Records)
	if err != nil {
		return types.Publication{}, fmt.Errorf("digest records: %w", err)
	}

	now := s.now()
	ts := ledger.FormatTime(now)
	pub := ledger.PublicationRecord{
		PublicationID: uuid.NewString(),
		QueueID:       before.QueueID,
		SubmissionID:  before.SubmissionID,
		ContractID:    before.ContractID,
		Lane:          before.Lane,
		RecordCount:   len(data.Records),
		RecordsDigest: digest,
		PublishedBy:   publisherID,
		CreatedAt:     ts,
	}
	message, err := json.Marshal(toPublication(pub))
	if err != nil {
		return types.Publication{}, fmt.Errorf("encode publication: %w", err)
	}
	notification := ledger.OutboxRecord{
		NotificationID: uuid.NewString(),
		PublicationID:  pub.PublicationID,
		Topic:          TopicPublicationCreated,
		MessageJSON:    message,
		Status:         outbox.StatusPending,
		NextAttemptAt:  ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}

	after := before
	after.Status = string(types.StatusPublished)
	after.PublishedBy = &publisherID
	after.PublishedAt = &ts
	after.Version++
	after.UpdatedAt = ts

	err = s.commit(ctx, op, before, after, publisherID, "publish_submission", types.CategoryPublication, now, func(tx ledger.Tx) error {
		if err := tx.PutPublication(pub); err != nil {
			return err
		}
		return tx.PutOutbox(notification)
	})
	if err != nil {
		return types.Publication{}, err
	}
	return toPublication(pub), nil
}

// UpdateEvidenceCoverage sets the coverage percentage on a live entry. If a
// recorded QA signoff no longer meets the threshold it is withdrawn.
func (s *Service) UpdateEvidenceCoverage(ctx context.Context, queueID string, coverage int, evidencePackID, actorID string) (types.QueueEntry, error) {
	const op = "update_evidence"
	if actorID == "" {
		return types.QueueEntry{}, s.refuse(op, queueID, ErrActorRequired)
	}
	if coverage < 0 || coverage > 100 {
		return types.QueueEntry{}, s.refuse(op, queueID, ErrInvalidCoverage)
	}
	before, err := s.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return types.QueueEntry{}, err
	}
	from := types.QueueStatus(before.Status)
	if IsTerminal(from) {
		return types.QueueEntry{}, s.refuse(op, queueID, fmt.Errorf("%w: entry is %s", ErrInvalidStateTransition, from))
	}

	after := before
	after.EvidenceCoverage = coverage
	if evidencePackID != "" {
		after.EvidencePackID = &evidencePackID
	}
	if before.QASignoffBy != nil {
		threshold, err := s.policies.EvidenceCoverageThreshold(ctx)
		if err != nil {
			return types.QueueEntry{}, err
		}
		if coverage < threshold {
			after.QASignoffBy, after.QASignoffAt, after.QANotes = nil, nil, nil
		}
	}

	now := s.now()
	after.Version++
	after.UpdatedAt = ledger.FormatTime(now)
	if err := s.commit(ctx, op, before, after, actorID, "update_evidence_coverage", types.CategoryModeration, now, nil); err != nil {
		return types.QueueEntry{}, err
	}
	return toEntry(after), nil
}

// Reject closes any non-terminal entry.
func (s *Service) Reject(ctx context.Context, queueID, actorID, reason string) (types.QueueEntry, error) {
	const op = "reject"
	if actorID == "" {
		return types.QueueEntry{}, s.refuse(op, queueID, ErrActorRequired)
	}
	if strings.TrimSpace(reason) == "" {
		return types.QueueEntry{}, s.refuse(op, queueID, ErrRejectionReasonRequired)
	}
	before, err := s.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return types.QueueEntry{}, err
	}
	from := types.QueueStatus(before.Status)
	if !CanTransition(from, types.StatusRejected) {
		return types.QueueEntry{}, s.refuse(op, queueID, &TransitionError{From: from, To: types.StatusRejected})
	}

	now := s.now()
	ts := ledger.FormatTime(now)
	after := before
	after.Status = string(types.StatusRejected)
	after.RejectionReason = &reason
	after.ReviewedBy = &actorID
	after.ReviewedAt = &ts
	after.Version++
	after.UpdatedAt = ts
	if err := s.commit(ctx, op, before, after, actorID, "reject_submission", types.CategoryModeration, now, nil); err != nil {
		return types.QueueEntry{}, err
	}
	return toEntry(after), nil
}
