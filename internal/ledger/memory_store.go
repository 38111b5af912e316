package ledger

import (
	"context"
	"sort"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	submissions    map[string]SubmissionRecord
	validations    map[string]ValidationRecord
	contradictions map[string]ContradictionRecord
	queue          map[string]QueueRecord
	queueBySub     map[string]string
	policies       map[string]PolicyRecord
	audit          []AuditRecord
	publications   map[string]PublicationRecord
	outbox         map[string]OutboxRecord
	observations   map[string]ObservationRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		submissions:    make(map[string]SubmissionRecord),
		validations:    make(map[string]ValidationRecord),
		contradictions: make(map[string]ContradictionRecord),
		queue:          make(map[string]QueueRecord),
		queueBySub:     make(map[string]string),
		policies:       make(map[string]PolicyRecord),
		publications:   make(map[string]PublicationRecord),
		outbox:         make(map[string]OutboxRecord),
		observations:   make(map[string]ObservationRecord),
	}
}

// WithTx runs fn under the store lock. Writes made through the Tx are
// journaled and reverted if fn returns an error.
func (s *InMemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	s    *InMemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (s *InMemoryStore) GetSubmission(_ context.Context, submissionID string) (SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.submissions[submissionID]
	if !ok {
		return SubmissionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ListSubmissions(_ context.Context, filter SubmissionFilter) ([]SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []SubmissionRecord{}
	for _, rec := range s.submissions {
		if filter.SubmittedBy != "" && rec.SubmittedBy != filter.SubmittedBy {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].SubmissionID > all[j].SubmissionID
	})
	return page(all, filter.Limit, filter.Offset), nil
}

func (s *InMemoryStore) ListValidations(_ context.Context, submissionID string) ([]ValidationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ValidationRecord{}
	for _, rec := range s.validations {
		if rec.SubmissionID == submissionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ValidationID < out[j].ValidationID
	})
	return out, nil
}

func (s *InMemoryStore) GetContradiction(_ context.Context, contradictionID string) (ContradictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.contradictions[contradictionID]
	if !ok {
		return ContradictionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ListContradictions(_ context.Context, submissionID string) ([]ContradictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ContradictionRecord{}
	for _, rec := range s.contradictions {
		if rec.SubmissionID == submissionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].RecordIndex < out[j].RecordIndex
	})
	return out, nil
}

func (s *InMemoryStore) GetQueueEntry(_ context.Context, queueID string) (QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.queue[queueID]
	if !ok {
		return QueueRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) GetQueueEntryBySubmission(_ context.Context, submissionID string) (QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.queueBySub[submissionID]
	if !ok {
		return QueueRecord{}, ErrNotFound
	}
	return s.queue[id], nil
}

func (s *InMemoryStore) ListQueueEntries(_ context.Context, filter QueueFilter) ([]QueueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := []QueueRecord{}
	for _, rec := range s.queue {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Lane != "" && rec.Lane != filter.Lane {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt < all[j].CreatedAt
		}
		return all[i].QueueID < all[j].QueueID
	})
	return page(all, filter.Limit, filter.Offset), nil
}

func (s *InMemoryStore) CountQueueEntries(_ context.Context) ([]QueueCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[[2]string]int{}
	for _, rec := range s.queue {
		counts[[2]string{rec.Status, rec.Lane}]++
	}
	out := make([]QueueCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, QueueCount{Status: k[0], Lane: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].Lane < out[j].Lane
	})
	return out, nil
}

func (s *InMemoryStore) GetPolicy(_ context.Context, key string) (PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.policies[key]
	if !ok {
		return PolicyRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ListPolicies(_ context.Context) ([]PolicyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PolicyRecord, 0, len(s.policies))
	for _, rec := range s.policies {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyKey < out[j].PolicyKey })
	return out, nil
}

// ListAudit returns matching entries newest first.
func (s *InMemoryStore) ListAudit(_ context.Context, filter AuditFilter) ([]AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []AuditRecord{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		rec := s.audit[i]
		if filter.Category != "" && rec.Category != filter.Category {
			continue
		}
		if filter.ActorID != "" && rec.ActorID != filter.ActorID {
			continue
		}
		if filter.TargetType != "" && rec.TargetType != filter.TargetType {
			continue
		}
		if filter.TargetID != "" && rec.TargetID != filter.TargetID {
			continue
		}
		out = append(out, rec)
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *InMemoryStore) GetPublication(_ context.Context, publicationID string) (PublicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.publications[publicationID]
	if !ok {
		return PublicationRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) GetOutbox(_ context.Context, notificationID string) (OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outbox[notificationID]
	if !ok {
		return OutboxRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) ListOutboxDue(_ context.Context, now string, limit int) ([]OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []OutboxRecord{}
	for _, rec := range s.outbox {
		if rec.Status != "pending" {
			continue
		}
		if rec.NextAttemptAt > now {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) PutOutbox(_ context.Context, rec OutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[rec.NotificationID] = rec
	return nil
}

func (s *InMemoryStore) LookupObservation(_ context.Context, indicatorCode string, date string) (ObservationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.observations[observationKey(indicatorCode, date)]
	if !ok {
		return ObservationRecord{}, ErrNotFound
	}
	return rec, nil
}

// PutObservation loads an authoritative time-series point.
func (s *InMemoryStore) PutObservation(_ context.Context, rec ObservationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[observationKey(rec.IndicatorCode, rec.Date)] = rec
	return nil
}

func observationKey(indicatorCode, date string) string {
	return indicatorCode + "\x00" + date
}

func page[T any](items []T, limit, offset int) []T {
	limit = NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (t *memTx) PutSubmission(rec SubmissionRecord) error {
	prev, existed := t.s.submissions[rec.SubmissionID]
	t.s.submissions[rec.SubmissionID] = rec
	t.undo = append(t.undo, func() {
		if existed {
			t.s.submissions[rec.SubmissionID] = prev
		} else {
			delete(t.s.submissions, rec.SubmissionID)
		}
	})
	return nil
}

func (t *memTx) UpdateSubmissionStatus(submissionID string, status string, updatedAt string) error {
	prev, ok := t.s.submissions[submissionID]
	if !ok {
		return ErrNotFound
	}
	next := prev
	next.Status = status
	next.UpdatedAt = updatedAt
	t.s.submissions[submissionID] = next
	t.undo = append(t.undo, func() { t.s.submissions[submissionID] = prev })
	return nil
}

func (t *memTx) PutValidation(rec ValidationRecord) error {
	if _, ok := t.s.validations[rec.ValidationID]; ok {
		return nil
	}
	t.s.validations[rec.ValidationID] = rec
	t.undo = append(t.undo, func() { delete(t.s.validations, rec.ValidationID) })
	return nil
}

func (t *memTx) PutContradiction(rec ContradictionRecord) error {
	if _, ok := t.s.contradictions[rec.ContradictionID]; ok {
		return nil
	}
	t.s.contradictions[rec.ContradictionID] = rec
	t.undo = append(t.undo, func() { delete(t.s.contradictions, rec.ContradictionID) })
	return nil
}

func (t *memTx) UpdateContradictionResolution(contradictionID string, resolution string, resolvedBy string, resolvedAt string) error {
	prev, ok := t.s.contradictions[contradictionID]
	if !ok {
		return ErrNotFound
	}
	if prev.Resolution != "pending" {
		return ErrStaleState
	}
	next := prev
	next.Resolution = resolution
	next.ResolvedBy = &resolvedBy
	next.ResolvedAt = &resolvedAt
	t.s.contradictions[contradictionID] = next
	t.undo = append(t.undo, func() { t.s.contradictions[contradictionID] = prev })
	return nil
}

func (t *memTx) CreateQueueEntry(rec QueueRecord) error {
	if _, ok := t.s.queueBySub[rec.SubmissionID]; ok {
		return ErrAlreadyQueued
	}
	if _, ok := t.s.queue[rec.QueueID]; ok {
		return ErrAlreadyQueued
	}
	t.s.queue[rec.QueueID] = rec
	t.s.queueBySub[rec.SubmissionID] = rec.QueueID
	t.undo = append(t.undo, func() {
		delete(t.s.queue, rec.QueueID)
		delete(t.s.queueBySub, rec.SubmissionID)
	})
	return nil
}

func (t *memTx) GetQueueEntry(queueID string) (QueueRecord, error) {
	rec, ok := t.s.queue[queueID]
	if !ok {
		return QueueRecord{}, ErrNotFound
	}
	return rec, nil
}

func (t *memTx) UpdateQueueEntry(rec QueueRecord, expectedStatus string, expectedVersion int) error {
	prev, ok := t.s.queue[rec.QueueID]
	if !ok {
		return ErrNotFound
	}
	if prev.Status != expectedStatus || prev.Version != expectedVersion {
		return ErrStaleState
	}
	rec.SubmissionID = prev.SubmissionID
	rec.CreatedAt = prev.CreatedAt
	t.s.queue[rec.QueueID] = rec
	t.undo = append(t.undo, func() { t.s.queue[rec.QueueID] = prev })
	return nil
}

func (t *memTx) GetPolicy(key string) (PolicyRecord, error) {
	rec, ok := t.s.policies[key]
	if !ok {
		return PolicyRecord{}, ErrNotFound
	}
	return rec, nil
}

func (t *memTx) PutPolicy(rec PolicyRecord) error {
	prev, existed := t.s.policies[rec.PolicyKey]
	t.s.policies[rec.PolicyKey] = rec
	t.undo = append(t.undo, func() {
		if existed {
			t.s.policies[rec.PolicyKey] = prev
		} else {
			delete(t.s.policies, rec.PolicyKey)
		}
	})
	return nil
}

func (t *memTx) AppendAudit(rec AuditRecord) error {
	n := len(t.s.audit)
	t.s.audit = append(t.s.audit, rec)
	t.undo = append(t.undo, func() { t.s.audit = t.s.audit[:n] })
	return nil
}

func (t *memTx) PutPublication(rec PublicationRecord) error {
	if _, ok := t.s.publications[rec.PublicationID]; ok {
		return nil
	}
	t.s.publications[rec.PublicationID] = rec
	t.undo = append(t.undo, func() { delete(t.s.publications, rec.PublicationID) })
	return nil
}

func (t *memTx) PutOutbox(rec OutboxRecord) error {
	prev, existed := t.s.outbox[rec.NotificationID]
	t.s.outbox[rec.NotificationID] = rec
	t.undo = append(t.undo, func() {
		if existed {
			t.s.outbox[rec.NotificationID] = prev
		} else {
			delete(t.s.outbox, rec.NotificationID)
		}
	})
	return nil
}
