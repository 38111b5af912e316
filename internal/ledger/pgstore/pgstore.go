package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/davidahmann/partnergate/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return ledger.Wrap("begin", err)
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return ledger.Wrap("commit", tx.Commit())
}

const submissionSelect = `SELECT submission_id, contract_id, submitted_by, title, description, source_description, status, data_json::text, created_at::text, updated_at::text FROM submissions`

func scanSubmission(row interface{ Scan(...any) error }) (ledger.SubmissionRecord, error) {
	var rec ledger.SubmissionRecord
	var data string
	if err := row.Scan(&rec.SubmissionID, &rec.ContractID, &rec.SubmittedBy, &rec.Title, &rec.Description, &rec.SourceDescription, &rec.Status, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.SubmissionRecord{}, err
	}
	rec.DataJSON = []byte(data)
	return rec, nil
}

func (s *Store) GetSubmission(ctx context.Context, submissionID string) (ledger.SubmissionRecord, error) {
	rec, err := scanSubmission(s.db.QueryRowContext(ctx, submissionSelect+` WHERE submission_id = $1`, submissionID))
	return rec, ledger.Wrap("get submission", err)
}

func (s *Store) ListSubmissions(ctx context.Context, filter ledger.SubmissionFilter) ([]ledger.SubmissionRecord, error) {
	where := []string{}
	args := []any{}
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		where = append(where, fmt.Sprintf("submitted_by = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := submissionSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, ledger.NormalizeLimit(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at DESC, submission_id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.Wrap("list submissions", err)
	}
	defer rows.Close()

	out := []ledger.SubmissionRecord{}
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, ledger.Wrap("scan submission", err)
		}
		out = append(out, rec)
	}
	return out, ledger.Wrap("list submissions", rows.Err())
}

func (s *Store) ListValidations(ctx context.Context, submissionID string) ([]ledger.ValidationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT validation_id, submission_id, contract_id, passed, score, body_json::text, body_digest, created_at::text
FROM validations WHERE submission_id = $1 ORDER BY created_at ASC, validation_id ASC`, submissionID)
	if err != nil {
		return nil, ledger.Wrap("list validations", err)
	}
	defer rows.Close()

	out := []ledger.ValidationRecord{}
	for rows.Next() {
		var rec ledger.ValidationRecord
		var body string
		if err := rows.Scan(&rec.ValidationID, &rec.SubmissionID, &rec.ContractID, &rec.Passed, &rec.Score, &body, &rec.BodyDigest, &rec.CreatedAt); err != nil {
			return nil, ledger.Wrap("scan validation", err)
		}
		rec.BodyJSON = []byte(body)
		out = append(out, rec)
	}
	return out, ledger.Wrap("list validations", rows.Err())
}

const contradictionSelect = `SELECT contradiction_id, submission_id, validation_id, indicator_code, period, existing_value, submitted_value, existing_source, record_index, resolution, resolved_by, resolved_at::text, created_at::text FROM contradictions`

func scanContradiction(row interface{ Scan(...any) error }) (ledger.ContradictionRecord, error) {
	var rec ledger.ContradictionRecord
	err := row.Scan(&rec.ContradictionID, &rec.SubmissionID, &rec.ValidationID, &rec.IndicatorCode, &rec.Period, &rec.ExistingValue, &rec.SubmittedValue, &rec.ExistingSource, &rec.RecordIndex, &rec.Resolution, &rec.ResolvedBy, &rec.ResolvedAt, &rec.CreatedAt)
	return rec, err
}

func (s *Store) GetContradiction(ctx context.Context, contradictionID string) (ledger.ContradictionRecord, error) {
	rec, err := scanContradiction(s.db.QueryRowContext(ctx, contradictionSelect+` WHERE contradiction_id = $1`, contradictionID))
	return rec, ledger.Wrap("get contradiction", err)
}

func (s *Store) ListContradictions(ctx context.Context, submissionID string) ([]ledger.ContradictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, contradictionSelect+` WHERE submission_id = $1 ORDER BY created_at ASC, record_index ASC`, submissionID)
	if err != nil {
		return nil, ledger.Wrap("list contradictions", err)
	}
	defer rows.Close()

	out := []ledger.ContradictionRecord{}
	for rows.Next() {
		rec, err := scanContradiction(rows)
		if err != nil {
			return nil, ledger.Wrap("scan contradiction", err)
		}
		out = append(out, rec)
	}
	return out, ledger.Wrap("list contradictions", rows.Err())
}

const queueSelect = `SELECT queue_id, submission_id, contract_id, status, publishing_lane, evidence_coverage, evidence_pack_id, validation_id,
  reviewed_by, reviewed_at::text, review_notes, qa_signoff_by, qa_signoff_at::text, qa_notes, rejection_reason,
  published_by, published_at::text, version, created_at::text, updated_at::text
FROM moderation_queue`

func scanQueue(row interface{ Scan(...any) error }) (ledger.QueueRecord, error) {
	var rec ledger.QueueRecord
	err := row.Scan(
		&rec.QueueID,
		&rec.SubmissionID,
		&rec.ContractID,
		&rec.Status,
		&rec.Lane,
		&rec.EvidenceCoverage,
		&rec.EvidencePackID,
		&rec.ValidationID,
		&rec.ReviewedBy,
		&rec.ReviewedAt,
		&rec.ReviewNotes,
		&rec.QASignoffBy,
		&rec.QASignoffAt,
		&rec.QANotes,
		&rec.RejectionReason,
		&rec.PublishedBy,
		&rec.PublishedAt,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}

func (s *Store) GetQueueEntry(ctx context.Context, queueID string) (ledger.QueueRecord, error) {
	rec, err := scanQueue(s.db.QueryRowContext(ctx, queueSelect+` WHERE queue_id = $1`, queueID))
	return rec, ledger.Wrap("get queue entry", err)
}

func (s *Store) GetQueueEntryBySubmission(ctx context.Context, submissionID string) (ledger.QueueRecord, error) {
	rec, err := scanQueue(s.db.QueryRowContext(ctx, queueSelect+` WHERE submission_id = $1`, submissionID))
	return rec, ledger.Wrap("get queue entry", err)
}

func (s *Store) ListQueueEntries(ctx context.Context, filter ledger.QueueFilter) ([]ledger.QueueRecord, error) {
	where := []string{}
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Lane != "" {
		args = append(args, filter.Lane)
		where = append(where, fmt.Sprintf("publishing_lane = $%d", len(args)))
	}
	query := queueSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, ledger.NormalizeLimit(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at ASC, queue_id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.Wrap("list queue", err)
	}
	defer rows.Close()

	out := []ledger.QueueRecord{}
	for rows.Next() {
		rec, err := scanQueue(rows)
		if err != nil {
			return nil, ledger.Wrap("scan queue entry", err)
		}
		out = append(out, rec)
	}
	return out, ledger.Wrap("list queue", rows.Err())
}

func (s *Store) CountQueueEntries(ctx context.Context) ([]ledger.QueueCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, publishing_lane, COUNT(*) FROM moderation_queue GROUP BY status, publishing_lane ORDER BY status, publishing_lane`)
	if err != nil {
		return nil, ledger.Wrap("count queue", err)
	}
	defer rows.Close()

	out := []ledger.QueueCount{}
	for rows.Next() {
		var c ledger.QueueCount
		if err := rows.Scan(&c.Status, &c.Lane, &c.Count); err != nil {
			return nil, ledger.Wrap("scan queue count", err)
		}
		out = append(out, c)
	}
	return out, ledger.Wrap("count queue", rows.Err())
}

const policySelect = `SELECT policy_key, value_json::text, updated_by, updated_at::text FROM governance_policies`

func scanPolicy(row interface{ Scan(...any) error }) (ledger.PolicyRecord, error) {
	var rec ledger.PolicyRecord
	var value string
	if err := row.Scan(&rec.PolicyKey, &value, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
		return ledger.PolicyRecord{}, err
	}
	rec.ValueJSON = []byte(value)
	return rec, nil
}

func (s *Store) GetPolicy(ctx context.Context, key string) (ledger.PolicyRecord, error) {
	rec, err := scanPolicy(s.db.QueryRowContext(ctx, policySelect+` WHERE policy_key = $1`, key))
	return rec, ledger.Wrap("get policy", err)
}

func (s *Store) ListPolicies(ctx context.Context) ([]ledger.PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx, policySelect+` ORDER BY policy_key`)
	if err != nil {
		return nil, ledger.Wrap("list policies", err)
	}
	defer rows.Close()

	out := []ledger.PolicyRecord{}
	for rows.Next() {
		rec, err := scanPolicy(rows)
		if err != nil {
			return nil, ledger.Wrap("scan policy", err)
		}
		out = append(out, rec)
	}
	return out, ledger.Wrap("list policies", rows.Err())
}

func (s *Store) ListAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	where := []string{}
	args := []any{}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("category", filter.Category)
	add("actor_id", filter.ActorID)
	add("target_type", filter.TargetType)
	add("target_id", filter.TargetID)

	query := `SELECT entry_id, actor_id, action, category, target_type, target_id, previous_json::text, new_json::text, payload_digest, created_at::text FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, ledger.NormalizeLimit(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ledger.Wrap("list audit", err)
	}
	defer rows.Close()

	out := []ledger.AuditRecord{}
	for rows.Next() {
		var rec ledger.AuditRecord
		var prev, next sql.NullString
		if err := rows.Scan(&rec.EntryID, &rec.ActorID, &rec.Action, &rec.Category, &rec.TargetType, &rec.TargetID, &prev, &next, &rec.PayloadDigest, &rec.CreatedAt); err != nil {
			return nil, ledger.Wrap("scan audit", err)
		}
		if prev.Valid {
			rec.PreviousJSON = []byte(prev.String)
		}
		if next.Valid {
			rec.NewJSON = []byte(next.String)
		}
		out = append(out, rec)
	}
	return out, ledger.Wrap("list audit", rows.Err())
}

func (s *Store) GetPublication(ctx context.Context, publicationID string) (ledger.PublicationRecord, error) {
	var rec ledger.PublicationRecord
	row := s.db.QueryRowContext(ctx, `SELECT publication_id, queue_id, submission_id, contract_id, publishing_lane, record_count, records_digest, published_by, created_at::text FROM publications WHERE publication_id = $1`, publicationID)
	if err := row.Scan(&rec.PublicationID, &rec.QueueID, &rec.SubmissionID, &rec.ContractID, &rec.Lane, &rec.RecordCount, &rec.RecordsDigest, &rec.PublishedBy, &rec.CreatedAt); err != nil {
		return ledger.PublicationRecord{}, ledger.Wrap("get publication", err)
	}
	return rec, nil
}

const outboxSelect = `SELECT notification_id, publication_id, topic, message_json::text, status, attempt_count, next_attempt_at::text, last_error, sent_at::text, created_at::text, updated_at::text
FROM publication_outbox`

func scanOutbox(row interface{ Scan(...any) error }) (ledger.OutboxRecord, error) {
	var rec ledger.OutboxRecord
	var msg string
	if err := row.Scan(&rec.NotificationID, &rec.PublicationID, &rec.Topic, &msg, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.OutboxRecord{}, err
	}
	rec.MessageJSON = []byte(msg)
	return rec, nil
}

func (s *Store) GetOutbox(ctx context.Context, notificationID string) (ledger.OutboxRecord, error) {
	rec, err := scanOutbox(s.db.QueryRowContext(ctx, outboxSelect+` WHERE notification_id = $1`, notificationID))
	if err != nil {
		return ledger.OutboxRecord{}, ledger.Wrap("get outbox", err)
	}
	return rec, nil
}

func (s *Store) ListOutboxDue(ctx context.Context, now string, limit int) ([]ledger.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, outboxSelect+`
WHERE status = 'pending' AND next_attempt_at <= $1::timestamptz
ORDER BY created_at ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, ledger.Wrap("list outbox", err)
	}
	defer rows.Close()

	out := []ledger.OutboxRecord{}
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, ledger.Wrap("scan outbox", err)
		}
		out = append(out, rec)
	}
	return out, ledger.Wrap("list outbox", rows.Err())
}

func (s *Store) PutOutbox(ctx context.Context, rec ledger.OutboxRecord) error {
	return s.WithTx(ctx, func(tx ledger.Tx) error { return tx.PutOutbox(rec) })
}

func (s *Store) LookupObservation(ctx context.Context, indicatorCode string, date string) (ledger.ObservationRecord, error) {
	var rec ledger.ObservationRecord
	row := s.db.QueryRowContext(ctx, `SELECT indicator_code, to_char(obs_date, 'YYYY-MM-DD'), value, source_id FROM time_series WHERE indicator_code = $1 AND obs_date = $2::date`, indicatorCode, date)
	if err := row.Scan(&rec.IndicatorCode, &rec.Date, &rec.Value, &rec.SourceID); err != nil {
		return ledger.ObservationRecord{}, ledger.Wrap("lookup observation", err)
	}
	return rec, nil
}

// PutObservation loads an authoritative time-series point.
func (s *Store) PutObservation(ctx context.Context, rec ledger.ObservationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO time_series(indicator_code, obs_date, value, source_id) VALUES($1,$2::date,$3,$4)
ON CONFLICT(indicator_code, obs_date) DO UPDATE SET value=excluded.value, source_id=excluded.source_id`,
		rec.IndicatorCode, rec.Date, rec.Value, rec.SourceID,
	)
	return ledger.Wrap("put observation", err)
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutSubmission(rec ledger.SubmissionRecord) error {
	if !json.Valid(rec.DataJSON) {
		return errors.New("invalid data_json")
	}
	_, err := t.tx.Exec(`INSERT INTO submissions(submission_id, contract_id, submitted_by, title, description, source_description, status, data_json, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::timestamptz,$10::timestamptz)
ON CONFLICT(submission_id) DO UPDATE SET
  title=excluded.title,
  description=excluded.description,
  source_description=excluded.source_description,
  status=excluded.status,
  data_json=excluded.data_json,
  updated_at=excluded.updated_at`,
		rec.SubmissionID, rec.ContractID, rec.SubmittedBy, rec.Title, rec.Description, rec.SourceDescription, rec.Status, string(rec.DataJSON), rec.CreatedAt, rec.UpdatedAt,
	)
	return ledger.Wrap("put submission", err)
}

func (t *Tx) UpdateSubmissionStatus(submissionID string, status string, updatedAt string) error {
	res, err := t.tx.Exec(`UPDATE submissions SET status = $1, updated_at = $2::timestamptz WHERE submission_id = $3`, status, updatedAt, submissionID)
	if err != nil {
		return ledger.Wrap("update submission status", err)
	}
	return requireAffected(res, "update submission status")
}

func (t *Tx) PutValidation(rec ledger.ValidationRecord) error {
	if !json.Valid(rec.BodyJSON) {
		return errors.New("invalid body_json")
	}
	_, err := t.tx.Exec(`INSERT INTO validations(validation_id, submission_id, contract_id, passed, score, body_json, body_digest, created_at)
VALUES($1,$2,$3,$4,$5,$6::jsonb,$7,$8::timestamptz) ON CONFLICT(validation_id) DO NOTHING`,
		rec.ValidationID, rec.SubmissionID, rec.ContractID, rec.Passed, rec.Score, string(rec.BodyJSON), rec.BodyDigest, rec.CreatedAt,
	)
	return ledger.Wrap("put validation", err)
}

func (t *Tx) PutContradiction(rec ledger.ContradictionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO contradictions(contradiction_id, submission_id, validation_id, indicator_code, period, existing_value, submitted_value, existing_source, record_index, resolution, resolved_by, resolved_at, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::timestamptz,$13::timestamptz) ON CONFLICT(contradiction_id) DO NOTHING`,
		rec.ContradictionID, rec.SubmissionID, rec.ValidationID, rec.IndicatorCode, rec.Period, rec.ExistingValue, rec.SubmittedValue, rec.ExistingSource, rec.RecordIndex, rec.Resolution, rec.ResolvedBy, rec.ResolvedAt, rec.CreatedAt,
	)
	return ledger.Wrap("put contradiction", err)
}

func (t *Tx) UpdateContradictionResolution(contradictionID string, resolution string, resolvedBy string, resolvedAt string) error {
	res, err := t.tx.Exec(`UPDATE contradictions SET resolution = $1, resolved_by = $2, resolved_at = $3::timestamptz WHERE contradiction_id = $4 AND resolution = 'pending'`, resolution, resolvedBy, resolvedAt, contradictionID)
	if err != nil {
		return ledger.Wrap("resolve contradiction", err)
	}
	if err := requireAffected(res, "resolve contradiction"); !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	var exists int
	if err := t.tx.QueryRow(`SELECT 1 FROM contradictions WHERE contradiction_id = $1`, contradictionID).Scan(&exists); err != nil {
		return ledger.Wrap("resolve contradiction", err)
	}
	return ledger.ErrStaleState
}

func (t *Tx) CreateQueueEntry(rec ledger.QueueRecord) error {
	_, err := t.tx.Exec(`INSERT INTO moderation_queue(queue_id, submission_id, contract_id, status, publishing_lane, evidence_coverage, evidence_pack_id, validation_id,
  reviewed_by, reviewed_at, review_notes, qa_signoff_by, qa_signoff_at, qa_notes, rejection_reason, published_by, published_at, version, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::timestamptz,$11,$12,$13::timestamptz,$14,$15,$16,$17::timestamptz,$18,$19::timestamptz,$20::timestamptz)`,
		rec.QueueID,
		rec.SubmissionID,
		rec.ContractID,
		rec.Status,
		rec.Lane,
		rec.EvidenceCoverage,
		rec.EvidencePackID,
		rec.ValidationID,
		rec.ReviewedBy,
		rec.ReviewedAt,
		rec.ReviewNotes,
		rec.QASignoffBy,
		rec.QASignoffAt,
		rec.QANotes,
		rec.RejectionReason,
		rec.PublishedBy,
		rec.PublishedAt,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ledger.ErrAlreadyQueued
	}
	return ledger.Wrap("create queue entry", err)
}

func (t *Tx) GetQueueEntry(queueID string) (ledger.QueueRecord, error) {
	rec, err := scanQueue(t.tx.QueryRow(queueSelect+` WHERE queue_id = $1 FOR UPDATE`, queueID))
	return rec, ledger.Wrap("get queue entry", err)
}

func (t *Tx) UpdateQueueEntry(rec ledger.QueueRecord, expectedStatus string, expectedVersion int) error {
	res, err := t.tx.Exec(`UPDATE moderation_queue SET
  status = $1,
  publishing_lane = $2,
  evidence_coverage = $3,
  evidence_pack_id = $4,
  validation_id = $5,
  reviewed_by = $6,
  reviewed_at = $7::timestamptz,
  review_notes = $8,
  qa_signoff_by = $9,
  qa_signoff_at = $10::timestamptz,
  qa_notes = $11,
  rejection_reason = $12,
  published_by = $13,
  published_at = $14::timestamptz,
  version = $15,
  updated_at = $16::timestamptz
WHERE queue_id = $17 AND status = $18 AND version = $19`,
		rec.Status,
		rec.Lane,
		rec.EvidenceCoverage,
		rec.EvidencePackID,
		rec.ValidationID,
		rec.ReviewedBy,
		rec.ReviewedAt,
		rec.ReviewNotes,
		rec.QASignoffBy,
		rec.QASignoffAt,
		rec.QANotes,
		rec.RejectionReason,
		rec.PublishedBy,
		rec.PublishedAt,
		rec.Version,
		rec.UpdatedAt,
		rec.QueueID,
		expectedStatus,
		expectedVersion,
	)
	if err != nil {
		return ledger.Wrap("update queue entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.Wrap("update queue entry", err)
	}
	if affected > 0 {
		return nil
	}
	var exists int
	if err := t.tx.QueryRow(`SELECT 1 FROM moderation_queue WHERE queue_id = $1`, rec.QueueID).Scan(&exists); err != nil {
		return ledger.Wrap("update queue entry", err)
	}
	return ledger.ErrStaleState
}

func (t *Tx) GetPolicy(key string) (ledger.PolicyRecord, error) {
	rec, err := scanPolicy(t.tx.QueryRow(policySelect+` WHERE policy_key = $1`, key))
	return rec, ledger.Wrap("get policy", err)
}

func (t *Tx) PutPolicy(rec ledger.PolicyRecord) error {
	if !json.Valid(rec.ValueJSON) {
		return errors.New("invalid value_json")
	}
	_, err := t.tx.Exec(`INSERT INTO governance_policies(policy_key, value_json, updated_by, updated_at) VALUES($1,$2::jsonb,$3,$4::timestamptz)
ON CONFLICT(policy_key) DO UPDATE SET value_json=excluded.value_json, updated_by=excluded.updated_by, updated_at=excluded.updated_at`,
		rec.PolicyKey, string(rec.ValueJSON), rec.UpdatedBy, rec.UpdatedAt,
	)
	return ledger.Wrap("put policy", err)
}

func (t *Tx) AppendAudit(rec ledger.AuditRecord) error {
	_, err := t.tx.Exec(`INSERT INTO audit_log(entry_id, actor_id, action, category, target_type, target_id, previous_json, new_json, payload_digest, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,$9,$10::timestamptz)`,
		rec.EntryID, rec.ActorID, rec.Action, rec.Category, rec.TargetType, rec.TargetID, nullableJSON(rec.PreviousJSON), nullableJSON(rec.NewJSON), rec.PayloadDigest, rec.CreatedAt,
	)
	return ledger.Wrap("append audit", err)
}

func (t *Tx) PutPublication(rec ledger.PublicationRecord) error {
	_, err := t.tx.Exec(`INSERT INTO publications(publication_id, queue_id, submission_id, contract_id, publishing_lane, record_count, records_digest, published_by, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9::timestamptz) ON CONFLICT(publication_id) DO NOTHING`,
		rec.PublicationID, rec.QueueID, rec.SubmissionID, rec.ContractID, rec.Lane, rec.RecordCount, rec.RecordsDigest, rec.PublishedBy, rec.CreatedAt,
	)
	return ledger.Wrap("put publication", err)
}

func (t *Tx) PutOutbox(rec ledger.OutboxRecord) error {
	if !json.Valid(rec.MessageJSON) {
		return errors.New("invalid message_json")
	}
	_, err := t.tx.Exec(`INSERT INTO publication_outbox(notification_id, publication_id, topic, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES($1,$2,$3,$4::jsonb,$5,$6,$7::timestamptz,$8,$9::timestamptz,$10::timestamptz,$11::timestamptz)
ON CONFLICT(notification_id) DO UPDATE SET
  status=excluded.status,
  attempt_count=excluded.attempt_count,
  next_attempt_at=excluded.next_attempt_at,
  last_error=excluded.last_error,
  sent_at=excluded.sent_at,
  updated_at=excluded.updated_at`,
		rec.NotificationID, rec.PublicationID, rec.Topic, string(rec.MessageJSON), rec.Status, rec.AttemptCount, rec.NextAttemptAt, rec.LastError, rec.SentAt, rec.CreatedAt, rec.UpdatedAt,
	)
	return ledger.Wrap("put outbox", err)
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.Wrap(op, err)
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
