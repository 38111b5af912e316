package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidahmann/partnergate/internal/audit"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/pkg/types"
)

func (s *Service) Entry(ctx context.Context, queueID string) (types.QueueEntry, error) {
	rec, err := s.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return types.QueueEntry{}, err
	}
	return toEntry(rec), nil
}

func (s *Service) Submission(ctx context.Context, submissionID string) (types.PartnerSubmission, error) {
	rec, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return types.PartnerSubmission{}, err
	}
	return toSubmission(rec)
}

// Submissions lists submissions newest first, filtered by submitter and
// mirrored status.
func (s *Service) Submissions(ctx context.Context, filter types.SubmissionFilter) ([]types.PartnerSubmission, error) {
	if filter.Status != "" && !ValidSubmissionStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown submission status %q", ErrInvalidFilter, filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidFilter)
	}
	recs, err := s.store.ListSubmissions(ctx, ledger.SubmissionFilter{
		SubmittedBy: filter.SubmittedBy,
		Status:      string(filter.Status),
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.PartnerSubmission, 0, len(recs))
	for _, rec := range recs {
		sub, err := toSubmission(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// Queue lists entries oldest first.
func (s *Service) Queue(ctx context.Context, filter types.QueueFilter) ([]types.QueueEntry, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}
	if filter.Lane != "" && !ValidLane(filter.Lane) {
		return nil, fmt.Errorf("%w: unknown lane %q", ErrInvalidFilter, filter.Lane)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidFilter)
	}
	recs, err := s.store.ListQueueEntries(ctx, ledger.QueueFilter{
		Status: string(filter.Status),
		Lane:   string(filter.Lane),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.QueueEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toEntry(rec))
	}
	return out, nil
}

// Stats counts entries by status and by lane. Every known status and lane
// is present, zero when unused.
func (s *Service) Stats(ctx context.Context) (types.ModerationStats, error) {
	counts, err := s.store.CountQueueEntries(ctx)
	if err != nil {
		return types.ModerationStats{}, err
	}
	stats := types.ModerationStats{
		ByStatus: make(map[types.QueueStatus]int, len(types.AllQueueStatuses)),
		ByLane:   make(map[types.PublishingLane]int, len(types.AllLanes)),
	}
	for _, st := range types.AllQueueStatuses {
		stats.ByStatus[st] = 0
	}
	for _, lane := range types.AllLanes {
		stats.ByLane[lane] = 0
	}
	for _, c := range counts {
		stats.ByStatus[types.QueueStatus(c.Status)] += c.Count
		stats.ByLane[types.PublishingLane(c.Lane)] += c.Count
	}
	return stats, nil
}

// RunValidation re-validates a stored submission and appends the run to its
// history. The workflow state is not changed.
func (s *Service) RunValidation(ctx context.Context, actorID, submissionID, contractID string) (types.ValidationResult, error) {
	if actorID == "" {
		return types.ValidationResult{}, ErrActorRequired
	}
	rec, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return types.ValidationResult{}, err
	}
	sub, err := toSubmission(rec)
	if err != nil {
		return types.ValidationResult{}, err
	}
	if contractID == "" {
		contractID = sub.ContractID
	}
	contract, err := s.contracts.Get(contractID)
	if err != nil {
		return types.ValidationResult{}, err
	}
	result, err := s.pipeline.Validate(ctx, sub.Data, contract)
	if err != nil {
		return types.ValidationResult{}, err
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if _, err := persistValidation(tx, submissionID, &result, now); err != nil {
			return err
		}
		return audit.Append(tx, audit.Event{
			ActorID:    actorID,
			Action:     "run_validation",
			Category:   types.CategoryDataManagement,
			TargetType: "submission",
			TargetID:   submissionID,
			New: map[string]any{
				"validation_id": result.ValidationID,
				"contract_id":   contract.ContractID,
				"passed":        result.Overall.Passed,
				"score":         result.Overall.Score,
			},
		}, now)
	})
	if err != nil {
		return types.ValidationResult{}, s.storeFailure("run_validation", err)
	}
	return result, nil
}

// ValidationHistory returns every run for a submission, oldest first.
func (s *Service) ValidationHistory(ctx context.Context, submissionID string) ([]types.ValidationResult, error) {
	if _, err := s.store.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	recs, err := s.store.ListValidations(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	out := make([]types.ValidationResult, 0, len(recs))
	for _, rec := range recs {
		res, err := toValidation(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Service) LatestValidation(ctx context.Context, submissionID string) (types.ValidationResult, error) {
	history, err := s.ValidationHistory(ctx, submissionID)
	if err != nil {
		return types.ValidationResult{}, err
	}
	if len(history) == 0 {
		return types.ValidationResult{}, ledger.ErrNotFound
	}
	return history[len(history)-1], nil
}

func (s *Service) Contradictions(ctx context.Context, submissionID string) ([]types.Contradiction, error) {
	recs, err := s.store.ListContradictions(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Contradiction, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toContradiction(rec))
	}
	return out, nil
}

// ResolveContradiction accepts or rejects a pending contradiction once.
func (s *Service) ResolveContradiction(ctx context.Context, contradictionID string, resolution types.Resolution, actorID string) (types.Contradiction, error) {
	if actorID == "" {
		return types.Contradiction{}, ErrActorRequired
	}
	if resolution != types.ResolutionAccepted && resolution != types.ResolutionRejected {
		return types.Contradiction{}, ErrInvalidResolution
	}
	rec, err := s.store.GetContradiction(ctx, contradictionID)
	if err != nil {
		return types.Contradiction{}, err
	}
	if rec.Resolution != string(types.ResolutionPending) {
		return types.Contradiction{}, ErrAlreadyResolved
	}

	now := s.now()
	ts := ledger.FormatTime(now)
	after := rec
	after.Resolution = string(resolution)
	after.ResolvedBy = &actorID
	after.ResolvedAt = &ts

	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.UpdateContradictionResolution(contradictionID, string(resolution), actorID, ts); err != nil {
			return err
		}
		return audit.Append(tx, audit.Event{
			ActorID:    actorID,
			Action:     "resolve_contradiction",
			Category:   types.CategoryDataManagement,
			TargetType: "contradiction",
			TargetID:   contradictionID,
			Previous:   map[string]any{"resolution": rec.Resolution},
			New:        map[string]any{"resolution": after.Resolution},
		}, now)
	})
	if errors.Is(err, ledger.ErrStaleState) {
		return types.Contradiction{}, ErrAlreadyResolved
	}
	if err != nil {
		return types.Contradiction{}, s.storeFailure("resolve_contradiction", err)
	}
	return toContradiction(after), nil
}
