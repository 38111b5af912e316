package ledger

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestInMemoryStore_SubmissionAndQueue(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.PutSubmission(SubmissionRecord{SubmissionID: "sub-1", ContractID: "c1", Status: "pending", DataJSON: []byte(`{}`), CreatedAt: "t0", UpdatedAt: "t0"}); err != nil {
			return err
		}
		return tx.CreateQueueEntry(QueueRecord{QueueID: "q1", SubmissionID: "sub-1", ContractID: "c1", Status: "received", Lane: "none", Version: 1, CreatedAt: "t0", UpdatedAt: "t0"})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	if got, err := s.GetSubmission(ctx, "sub-1"); err != nil || got.ContractID != "c1" {
		t.Fatalf("get submission mismatch: err=%v got=%+v", err, got)
	}
	if got, err := s.GetQueueEntryBySubmission(ctx, "sub-1"); err != nil || got.QueueID != "q1" {
		t.Fatalf("get queue by submission mismatch: err=%v got=%+v", err, got)
	}
	if _, err := s.GetQueueEntry(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = s.WithTx(ctx, func(tx Tx) error {
		return tx.CreateQueueEntry(QueueRecord{QueueID: "q2", SubmissionID: "sub-1", Status: "received", Version: 1})
	})
	if !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
}

func TestInMemoryStore_UpdateQueueEntryOptimistic(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := QueueRecord{QueueID: "q1", SubmissionID: "sub-1", Status: "pending_review", Lane: "none", Version: 3, CreatedAt: "t0", UpdatedAt: "t0"}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.CreateQueueEntry(base) }); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := base
	next.Status = "approved_restricted"
	next.Lane = "lane_b_restricted"
	next.Version = 4
	next.ReviewedBy = strPtr("rev-1")

	if err := s.WithTx(ctx, func(tx Tx) error { return tx.UpdateQueueEntry(next, "received", 3) }); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected stale status, got %v", err)
	}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.UpdateQueueEntry(next, "pending_review", 2) }); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected stale version, got %v", err)
	}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.UpdateQueueEntry(next, "pending_review", 3) }); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetQueueEntry(ctx, "q1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "approved_restricted" || got.Version != 4 || got.ReviewedBy == nil || *got.ReviewedBy != "rev-1" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestInMemoryStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if err := s.WithTx(ctx, func(tx Tx) error {
		return tx.PutPolicy(PolicyRecord{PolicyKey: "k", ValueJSON: []byte(`{"value":1}`), UpdatedAt: "t0"})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.PutSubmission(SubmissionRecord{SubmissionID: "sub-x", Status: "pending"}); err != nil {
			return err
		}
		if err := tx.PutPolicy(PolicyRecord{PolicyKey: "k", ValueJSON: []byte(`{"value":2}`), UpdatedAt: "t1"}); err != nil {
			return err
		}
		if err := tx.AppendAudit(AuditRecord{EntryID: "a1", Action: "update_policy"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.GetSubmission(ctx, "sub-x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("submission should be rolled back: %v", err)
	}
	if got, err := s.GetPolicy(ctx, "k"); err != nil || string(got.ValueJSON) != `{"value":1}` {
		t.Fatalf("policy should be restored: err=%v got=%s", err, got.ValueJSON)
	}
	if entries, _ := s.ListAudit(ctx, AuditFilter{}); len(entries) != 0 {
		t.Fatalf("audit should be empty, got %d", len(entries))
	}
}

func TestInMemoryStore_ListsAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	err := s.WithTx(ctx, func(tx Tx) error {
		for i, st := range []string{"pending_review", "pending_review", "quarantined"} {
			rec := QueueRecord{
				QueueID:      string(rune('a' + i)),
				SubmissionID: "sub-" + string(rune('a'+i)),
				Status:       st,
				Lane:         "none",
				Version:      1,
				CreatedAt:    "t" + string(rune('0'+i)),
			}
			if err := tx.CreateQueueEntry(rec); err != nil {
				return err
			}
		}
		if err := tx.AppendAudit(AuditRecord{EntryID: "e1", ActorID: "u1", Category: "moderation", TargetType: "queue_entry", TargetID: "a"}); err != nil {
			return err
		}
		return tx.AppendAudit(AuditRecord{EntryID: "e2", ActorID: "u2", Category: "configuration", TargetType: "policy", TargetID: "k"})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	pending, err := s.ListQueueEntries(ctx, QueueFilter{Status: "pending_review"})
	if err != nil || len(pending) != 2 || pending[0].QueueID != "a" {
		t.Fatalf("list pending mismatch: err=%v got=%+v", err, pending)
	}
	paged, _ := s.ListQueueEntries(ctx, QueueFilter{Limit: 1, Offset: 2})
	if len(paged) != 1 || paged[0].QueueID != "c" {
		t.Fatalf("paging mismatch: %+v", paged)
	}

	counts, err := s.CountQueueEntries(ctx)
	if err != nil || len(counts) != 2 {
		t.Fatalf("count mismatch: err=%v got=%+v", err, counts)
	}
	if counts[0].Status != "pending_review" || counts[0].Count != 2 {
		t.Fatalf("unexpected first count: %+v", counts[0])
	}

	audit, _ := s.ListAudit(ctx, AuditFilter{})
	if len(audit) != 2 || audit[0].EntryID != "e2" {
		t.Fatalf("audit should be newest first: %+v", audit)
	}
	audit, _ = s.ListAudit(ctx, AuditFilter{Category: "moderation"})
	if len(audit) != 1 || audit[0].EntryID != "e1" {
		t.Fatalf("audit filter mismatch: %+v", audit)
	}
}

func TestInMemoryStore_OutboxAndObservations(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if err := s.PutOutbox(ctx, OutboxRecord{NotificationID: "n1", Status: "pending", NextAttemptAt: "2026-01-01T00:00:00Z", CreatedAt: "t0"}); err != nil {
		t.Fatalf("put outbox: %v", err)
	}
	if err := s.PutOutbox(ctx, OutboxRecord{NotificationID: "n2", Status: "sent", NextAttemptAt: "2026-01-01T00:00:00Z", CreatedAt: "t1"}); err != nil {
		t.Fatalf("put outbox: %v", err)
	}
	due, err := s.ListOutboxDue(ctx, "2026-01-02T00:00:00Z", 10)
	if err != nil || len(due) != 1 || due[0].NotificationID != "n1" {
		t.Fatalf("due mismatch: err=%v got=%+v", err, due)
	}
	if due, _ := s.ListOutboxDue(ctx, "2025-12-31T00:00:00Z", 10); len(due) != 0 {
		t.Fatalf("nothing should be due yet: %+v", due)
	}
	if got, err := s.GetOutbox(ctx, "n2"); err != nil || got.Status != "sent" {
		t.Fatalf("get outbox mismatch: err=%v got=%+v", err, got)
	}
	if _, err := s.GetOutbox(ctx, "n3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.PutObservation(ctx, ObservationRecord{IndicatorCode: "FX_RATE", Date: "2024-01-01", Value: 530, SourceID: "cby"}); err != nil {
		t.Fatalf("put observation: %v", err)
	}
	if got, err := s.LookupObservation(ctx, "FX_RATE", "2024-01-01"); err != nil || got.Value != 530 {
		t.Fatalf("lookup mismatch: err=%v got=%+v", err, got)
	}
	if _, err := s.LookupObservation(ctx, "FX_RATE", "2024-01-02"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_ContradictionResolution(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.PutContradiction(ContradictionRecord{ContradictionID: "c1", SubmissionID: "sub-1", Resolution: "pending", CreatedAt: "t0"})
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateContradictionResolution("c1", "accepted", "admin", "t1")
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := s.GetContradiction(ctx, "c1")
	if err != nil || got.Resolution != "accepted" || got.ResolvedBy == nil || *got.ResolvedBy != "admin" {
		t.Fatalf("resolution mismatch: err=%v got=%+v", err, got)
	}
	if err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateContradictionResolution("nope", "accepted", "admin", "t1")
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.WithTx(ctx, func(tx Tx) error {
		return tx.UpdateContradictionResolution("c1", "rejected", "other", "t2")
	}); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState on second resolve, got %v", err)
	}
}

func TestInMemoryStore_ListSubmissionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	seed := []SubmissionRecord{
		{SubmissionID: "sub-1", SubmittedBy: "partner-1", Status: "under_review", CreatedAt: "t1"},
		{SubmissionID: "sub-2", SubmittedBy: "partner-2", Status: "needs_revision", CreatedAt: "t2"},
		{SubmissionID: "sub-3", SubmittedBy: "partner-1", Status: "approved", CreatedAt: "t3"},
	}
	err := s.WithTx(ctx, func(tx Tx) error {
		for _, rec := range seed {
			if err := tx.PutSubmission(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	mine, err := s.ListSubmissions(ctx, SubmissionFilter{SubmittedBy: "partner-1"})
	if err != nil || len(mine) != 2 || mine[0].SubmissionID != "sub-3" || mine[1].SubmissionID != "sub-1" {
		t.Fatalf("list by submitter mismatch: err=%v got=%+v", err, mine)
	}
	revise, err := s.ListSubmissions(ctx, SubmissionFilter{Status: "needs_revision"})
	if err != nil || len(revise) != 1 || revise[0].SubmissionID != "sub-2" {
		t.Fatalf("list by status mismatch: err=%v got=%+v", err, revise)
	}
	paged, err := s.ListSubmissions(ctx, SubmissionFilter{Limit: 1, Offset: 1})
	if err != nil || len(paged) != 1 || paged[0].SubmissionID != "sub-2" {
		t.Fatalf("paged mismatch: err=%v got=%+v", err, paged)
	}
}
