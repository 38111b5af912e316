// Package moderation drives a submission from intake through validation,
// review, QA signoff and publication. Every state change is a conditional
// write paired with an audit entry in the same transaction.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/partnergate/internal/audit"
	"github.com/davidahmann/partnergate/internal/contracts"
	"github.com/davidahmann/partnergate/internal/crypto"
	"github.com/davidahmann/partnergate/internal/governance"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/metrics"
	"github.com/davidahmann/partnergate/internal/validation"
	"github.com/davidahmann/partnergate/pkg/types"
)

var ErrInvalidSubmission = errors.New("invalid submission")

const targetQueueEntry = "moderation_queue"

type Service struct {
	store     ledger.Store
	contracts contracts.Registry
	pipeline  *validation.Pipeline
	policies  *governance.Service
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store ledger.Store, registry contracts.Registry, pipeline *validation.Pipeline, policies *governance.Service, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		contracts: registry,
		pipeline:  pipeline,
		policies:  policies,
		log:       log,
		now:       time.Now,
	}
}

type SubmitRequest struct {
	ContractID        string          `json:"contract_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	SourceDescription string          `json:"source_description"`
	Data              json.RawMessage `json:"data"`
}

type WorkflowResult struct {
	SubmissionID     string                 `json:"submission_id"`
	QueueID          string                 `json:"queue_id"`
	Status           types.QueueStatus      `json:"status"`
	ValidationResult types.ValidationResult `json:"validation_result"`
}

type edge struct {
	from types.QueueStatus
	to   types.QueueStatus
}

// SubmitData records a new submission and starts its workflow atomically.
// Validation runs before any write, so an aborted validation leaves nothing behind.
func (s *Service) SubmitData(ctx context.Context, actorID string, req SubmitRequest) (WorkflowResult, error) {
	if actorID == "" {
		return WorkflowResult{}, ErrActorRequired
	}
	if strings.TrimSpace(req.ContractID) == "" || strings.TrimSpace(req.Title) == "" {
		return WorkflowResult{}, fmt.Errorf("%w: contract_id and title are required", ErrInvalidSubmission)
	}
	data, err := validation.DecodeSubmissionData(req.Data)
	if err != nil {
		return WorkflowResult{}, err
	}
	contract, err := s.contracts.Get(req.ContractID)
	if err != nil {
		return WorkflowResult{}, err
	}
	result, autoQuarantine, err := s.validate(ctx, data, contract)
	if err != nil {
		return WorkflowResult{}, err
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return WorkflowResult{}, fmt.Errorf("encode submission data: %w", err)
	}

	now := s.now()
	ts := ledger.FormatTime(now)
	sub := ledger.SubmissionRecord{
		SubmissionID:      uuid.NewString(),
		ContractID:        contract.ContractID,
		SubmittedBy:       actorID,
		Title:             req.Title,
		Description:       req.Description,
		SourceDescription: req.SourceDescription,
		Status:            string(types.SubmissionPending),
		DataJSON:          dataJSON,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}

	var entry ledger.QueueRecord
	var edges []edge
	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.PutSubmission(sub); err != nil {
			return err
		}
		if err := audit.Append(tx, audit.Event{
			ActorID:    actorID,
			Action:     "create_submission",
			Category:   types.CategoryDataManagement,
			TargetType: "submission",
			TargetID:   sub.SubmissionID,
			New: map[string]any{
				"contract_id":  sub.ContractID,
				"title":        sub.Title,
				"record_count": len(data.Records),
			},
		}, now); err != nil {
			return err
		}
		var err error
		entry, edges, err = s.startInTx(tx, actorID, sub.SubmissionID, contract.ContractID, &result, autoQuarantine, now)
		return err
	})
	if err != nil {
		return WorkflowResult{}, s.storeFailure("submit", err)
	}
	s.committed(entry.QueueID, actorID, edges)
	return WorkflowResult{
		SubmissionID:     sub.SubmissionID,
		QueueID:          entry.QueueID,
		Status:           types.QueueStatus(entry.Status),
		ValidationResult: result,
	}, nil
}

// StartWorkflow creates the queue entry for an existing submission, validates
// it and moves it to its initial state. A submission is queued at most once.
func (s *Service) StartWorkflow(ctx context.Context, actorID, submissionID, contractID string) (WorkflowResult, error) {
	if actorID == "" {
		return WorkflowResult{}, ErrActorRequired
	}
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return WorkflowResult{}, err
	}
	if contractID == "" {
		contractID = sub.ContractID
	}
	if _, err := s.store.GetQueueEntryBySubmission(ctx, submissionID); err == nil {
		return WorkflowResult{}, ledger.ErrAlreadyQueued
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return WorkflowResult{}, err
	}

	var data types.SubmissionData
	if err := json.Unmarshal(sub.DataJSON, &data); err != nil {
		return WorkflowResult{}, fmt.Errorf("decode submission %s: %w", submissionID, err)
	}
	contract, err := s.contracts.Get(contractID)
	if err != nil {
		return WorkflowResult{}, err
	}
	result, autoQuarantine, err := s.validate(ctx, data, contract)
	if err != nil {
		return WorkflowResult{}, err
	}

	now := s.now()
	var entry ledger.QueueRecord
	var edges []edge
	err = s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		entry, edges, err = s.startInTx(tx, actorID, submissionID, contract.ContractID, &result, autoQuarantine, now)
		return err
	})
	if err != nil {
		return WorkflowResult{}, s.storeFailure("start_workflow", err)
	}
	s.committed(entry.QueueID, actorID, edges)
	return WorkflowResult{
		SubmissionID:     submissionID,
		QueueID:          entry.QueueID,
		Status:           types.QueueStatus(entry.Status),
		ValidationResult: result,
	}, nil
}

func (s *Service) validate(ctx context.Context, data types.SubmissionData, contract types.DataContract) (types.ValidationResult, bool, error) {
	result, err := s.pipeline.Validate(ctx, data, contract)
	if err != nil {
		return types.ValidationResult{}, false, err
	}
	autoQuarantine, err := s.policies.AutoQuarantine(ctx)
	if err != nil {
		return types.ValidationResult{}, false, err
	}
	return result, autoQuarantine, nil
}

// startInTx walks received → validating → outcome, writing one audit entry per step.
func (s *Service) startInTx(tx ledger.Tx, actorID, submissionID, contractID string, result *types.ValidationResult, autoQuarantine bool, now time.Time) (ledger.QueueRecord, []edge, error) {
	ts := ledger.FormatTime(now)
	received := ledger.QueueRecord{
		QueueID:      uuid.NewString(),
		SubmissionID: submissionID,
		ContractID:   contractID,
		Status:       string(types.StatusReceived),
		Lane:         string(types.LaneNone),
		Version:      1,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := tx.CreateQueueEntry(received); err != nil {
		return ledger.QueueRecord{}, nil, err
	}
	if err := audit.Append(tx, audit.Event{
		ActorID:    actorID,
		Action:     "create_queue_entry",
		Category:   types.CategoryModeration,
		TargetType: targetQueueEntry,
		TargetID:   received.QueueID,
		New:        toEntry(received),
	}, now); err != nil {
		return ledger.QueueRecord{}, nil, err
	}

	validating := received
	validating.Status = string(types.StatusValidating)
	validating.Version++
	if err := s.apply(tx, received, validating, actorID, "start_validation", types.CategoryModeration, now); err != nil {
		return ledger.QueueRecord{}, nil, err
	}

	validationID, err := persistValidation(tx, submissionID, result, now)
	if err != nil {
		return ledger.QueueRecord{}, nil, err
	}

	outcome := InitialOutcome(result.Overall.Passed, autoQuarantine)
	final := validating
	final.Status = string(outcome)
	final.ValidationID = &validationID
	final.Version++
	if err := s.apply(tx, validating, final, actorID, "validation_completed", types.CategoryModeration, now); err != nil {
		return ledger.QueueRecord{}, nil, err
	}

	return final, []edge{
		{types.StatusReceived, types.StatusValidating},
		{types.StatusValidating, outcome},
	}, nil
}

// persistValidation assigns ids, stores the canonical result body and one
// row per contradiction.
func persistValidation(tx ledger.Tx, submissionID string, result *types.ValidationResult, now time.Time) (string, error) {
	ts := ledger.FormatTime(now)
	result.ValidationID = uuid.NewString()
	result.SubmissionID = submissionID
	for i := range result.Contradiction.Contradictions {
		result.Contradiction.Contradictions[i].ContradictionID = uuid.NewString()
	}

	body, err := crypto.CanonicalizeJSON(result)
	if err != nil {
		return "", fmt.Errorf("canonicalize validation: %w", err)
	}
	if err := tx.PutValidation(ledger.ValidationRecord{
		ValidationID: result.ValidationID,
		SubmissionID: submissionID,
		ContractID:   result.ContractID,
		Passed:       result.Overall.Passed,
		Score:        result.Overall.Score,
		BodyJSON:     body,
		BodyDigest:   crypto.DigestWithPrefix(body),
		CreatedAt:    ts,
	}); err != nil {
		return "", err
	}
	for _, c := range result.Contradiction.Contradictions {
		if err := tx.PutContradiction(ledger.ContradictionRecord{
			ContradictionID: c.ContradictionID,
			SubmissionID:    submissionID,
			ValidationID:    result.ValidationID,
			IndicatorCode:   c.IndicatorCode,
			Period:          c.Period,
			ExistingValue:   c.ExistingValue,
			SubmittedValue:  c.SubmittedValue,
			ExistingSource:  c.ExistingSource,
			RecordIndex:     c.RecordIndex,
			Resolution:      string(types.ResolutionPending),
			CreatedAt:       ts,
		}); err != nil {
			return "", err
		}
	}
	return result.ValidationID, nil
}

// apply performs one conditional entry update, mirrors the submission status
// and appends the audit entry.
func (s *Service) apply(tx ledger.Tx, before, after ledger.QueueRecord, actorID, action string, category types.AuditCategory, now time.Time) error {
	after.UpdatedAt = ledger.FormatTime(now)
	if err := tx.UpdateQueueEntry(after, before.Status, before.Version); err != nil {
		return err
	}
	if before.Status != after.Status {
		status := SubmissionStatusFor(types.QueueStatus(after.Status))
		if err := tx.UpdateSubmissionStatus(after.SubmissionID, string(status), after.UpdatedAt); err != nil {
			return err
		}
	}
	return audit.Append(tx, audit.Event{
		ActorID:    actorID,
		Action:     action,
		Category:   category,
		TargetType: targetQueueEntry,
		TargetID:   after.QueueID,
		Previous:   toEntry(before),
		New:        toEntry(after),
	}, now)
}

// commit runs apply plus any extra writes in one transaction.
func (s *Service) commit(ctx context.Context, op string, before, after ledger.QueueRecord, actorID, action string, category types.AuditCategory, now time.Time, extra func(ledger.Tx) error) error {
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := s.apply(tx, before, after, actorID, action, category, now); err != nil {
			return err
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		return s.storeFailure(op, err)
	}
	var edges []edge
	if before.Status != after.Status {
		edges = append(edges, edge{types.QueueStatus(before.Status), types.QueueStatus(after.Status)})
	}
	s.committed(after.QueueID, actorID, edges)
	return nil
}

func (s *Service) committed(queueID, actorID string, edges []edge) {
	for _, e := range edges {
		metrics.Transitions.WithLabelValues(string(e.from), string(e.to)).Inc()
		s.log.Info("moderation transition",
			zap.String("queue_id", queueID),
			zap.String("from", string(e.from)),
			zap.String("to", string(e.to)),
			zap.String("actor", actorID),
		)
	}
}

// refuse records a guard failure. The entry is never touched.
func (s *Service) refuse(op, queueID string, err error) error {
	metrics.GuardFailures.WithLabelValues(op, guardKind(err)).Inc()
	s.log.Warn("moderation guard refused operation",
		zap.String("operation", op),
		zap.String("queue_id", queueID),
		zap.Error(err),
	)
	return err
}

func (s *Service) storeFailure(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrStaleState):
		metrics.GuardFailures.WithLabelValues(op, "stale").Inc()
		s.log.Warn("concurrent update lost", zap.String("operation", op), zap.Error(err))
	case errors.Is(err, ledger.ErrStoreUnavailable):
		s.log.Error("store unavailable", zap.String("operation", op), zap.Error(err))
	}
	return err
}
