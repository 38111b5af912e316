package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/partnergate/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return ledger.Wrap("begin", err)
	}
	if _, err := tx.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = tx.Rollback()
		return ledger.Wrap("pragma", err)
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return ledger.Wrap("commit", tx.Commit())
}

const submissionColumns = `submission_id, contract_id, submitted_by, title, description, source_description, status, data_json, created_at, updated_at`

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
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE submission_id = ?`, submissionID)
	rec, err := scanSubmission(row)
	return rec, ledger.Wrap("get submission", err)
}

func (s *Store) ListSubmissions(ctx context.Context, filter ledger.SubmissionFilter) ([]ledger.SubmissionRecord, error) {
	where := []string{}
	args := []any{}
	if filter.SubmittedBy != "" {
		where = append(where, "submitted_by = ?")
		args = append(args, filter.SubmittedBy)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, submission_id DESC LIMIT ? OFFSET ?`
	args = append(args, ledger.NormalizeLimit(filter.Limit), max(filter.Offset, 0))

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

const validationColumns = `validation_id, submission_id, contract_id, passed, score, body_json, body_digest, created_at`

func (s *Store) ListValidations(ctx context.Context, submissionID string) ([]ledger.ValidationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+validationColumns+` FROM validations WHERE submission_id = ? ORDER BY created_at ASC, validation_id ASC`, submissionID)
	if err != nil {
		return nil, ledger.Wrap("list validations", err)
	}
	defer rows.Close()

	out := []ledger.ValidationRecord{}
	for rows.Next() {
		var rec ledger.ValidationRecord
		var passed int
		var body string
		if err := rows.Scan(&rec.ValidationID, &rec.SubmissionID, &rec.ContractID, &passed, &rec.Score, &body, &rec.BodyDigest, &rec.CreatedAt); err != nil {
			return nil, ledger.Wrap("scan validation", err)
		}
		rec.Passed = passed != 0
		rec.BodyJSON = []byte(body)
		out = append(out, rec)
	}
	return out, ledger.Wrap("list validations", rows.Err())
}

const contradictionColumns = `contradiction_id, submission_id, validation_id, indicator_code, period, existing_value, submitted_value, existing_source, record_index, resolution, resolved_by, resolved_at, created_at`

func scanContradiction(row interface{ Scan(...any) error }) (ledger.ContradictionRecord, error) {
	var rec ledger.ContradictionRecord
	err := row.Scan(&rec.ContradictionID, &rec.SubmissionID, &rec.ValidationID, &rec.IndicatorCode, &rec.Period, &rec.ExistingValue, &rec.SubmittedValue, &rec.ExistingSource, &rec.RecordIndex, &rec.Resolution, &rec.ResolvedBy, &rec.ResolvedAt, &rec.CreatedAt)
	return rec, err
}

func (s *Store) GetContradiction(ctx context.Context, contradictionID string) (ledger.ContradictionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contradictionColumns+` FROM contradictions WHERE contradiction_id = ?`, contradictionID)
	rec, err := scanContradiction(row)
	return rec, ledger.Wrap("get contradiction", err)
}

func (s *Store) ListContradictions(ctx context.Context, submissionID string) ([]ledger.ContradictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contradictionColumns+` FROM contradictions WHERE submission_id = ? ORDER BY created_at ASC, record_index ASC`, submissionID)
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

const queueColumns = `queue_id, submission_id, contract_id, status, publishing_lane, evidence_coverage, evidence_pack_id, validation_id, reviewed_by, reviewed_at, review_notes, qa_signoff_by, qa_signoff_at, qa_notes, rejection_reason, published_by, published_at, version, created_at, updated_at`

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
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM moderation_queue WHERE queue_id = ?`, queueID)
	rec, err := scanQueue(row)
	return rec, ledger.Wrap("get queue entry", err)
}

func (s *Store) GetQueueEntryBySubmission(ctx context.Context, submissionID string) (ledger.QueueRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM moderation_queue WHERE submission_id = ?`, submissionID)
	rec, err := scanQueue(row)
	return rec, ledger.Wrap("get queue entry", err)
}

func (s *Store) ListQueueEntries(ctx context.Context, filter ledger.QueueFilter) ([]ledger.QueueRecord, error) {
	where := []string{}
	args := []any{}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Lane != "" {
		where = append(where, "publishing_lane = ?")
		args = append(args, filter.Lane)
	}
	query := `SELECT ` + queueColumns + ` FROM moderation_queue`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, queue_id ASC LIMIT ? OFFSET ?`
	args = append(args, ledger.NormalizeLimit(filter.Limit), max(filter.Offset, 0))

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

func (s *Store) GetPolicy(ctx context.Context, key string) (ledger.PolicyRecord, error) {
	var rec ledger.PolicyRecord
	var value string
	row := s.db.QueryRowContext(ctx, `SELECT policy_key, value_json, updated_by, updated_at FROM governance_policies WHERE policy_key = ?`, key)
	if err := row.Scan(&rec.PolicyKey, &value, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
		return ledger.PolicyRecord{}, ledger.Wrap("get policy", err)
	}
	rec.ValueJSON = []byte(value)
	return rec, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]ledger.PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT policy_key, value_json, updated_by, updated_at FROM governance_policies ORDER BY policy_key`)
	if err != nil {
		return nil, ledger.Wrap("list policies", err)
	}
	defer rows.Close()

	out := []ledger.PolicyRecord{}
	for rows.Next() {
		var rec ledger.PolicyRecord
		var value string
		if err := rows.Scan(&rec.PolicyKey, &value, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
			return nil, ledger.Wrap("scan policy", err)
		}
		rec.ValueJSON = []byte(value)
		out = append(out, rec)
	}
	return out, ledger.Wrap("list policies", rows.Err())
}

func (s *Store) ListAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	where := []string{}
	args := []any{}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.TargetType != "" {
		where = append(where, "target_type = ?")
		args = append(args, filter.TargetType)
	}
	if filter.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	query := `SELECT entry_id, actor_id, action, category, target_type, target_id, previous_json, new_json, payload_digest, created_at FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	args = append(args, ledger.NormalizeLimit(filter.Limit), max(filter.Offset, 0))

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
	row := s.db.QueryRowContext(ctx, `SELECT publication_id, queue_id, submission_id, contract_id, publishing_lane, record_count, records_digest, published_by, created_at FROM publications WHERE publication_id = ?`, publicationID)
	if err := row.Scan(&rec.PublicationID, &rec.QueueID, &rec.SubmissionID, &rec.ContractID, &rec.Lane, &rec.RecordCount, &rec.RecordsDigest, &rec.PublishedBy, &rec.CreatedAt); err != nil {
		return ledger.PublicationRecord{}, ledger.Wrap("get publication", err)
	}
	return rec, nil
}

const outboxSelect = `SELECT notification_id, publication_id, topic, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
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
	rec, err := scanOutbox(s.db.QueryRowContext(ctx, outboxSelect+` WHERE notification_id = ?`, notificationID))
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
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY created_at ASC
LIMIT ?`, now, limit)
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
	row := s.db.QueryRowContext(ctx, `SELECT indicator_code, obs_date, value, source_id FROM time_series WHERE indicator_code = ? AND obs_date = ?`, indicatorCode, date)
	if err := row.Scan(&rec.IndicatorCode, &rec.Date, &rec.Value, &rec.SourceID); err != nil {
		return ledger.ObservationRecord{}, ledger.Wrap("lookup observation", err)
	}
	return rec, nil
}

// PutObservation loads an authoritative time-series point.
func (s *Store) PutObservation(ctx context.Context, rec ledger.ObservationRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO time_series(indicator_code, obs_date, value, source_id) VALUES(?,?,?,?)
ON CONFLICT(indicator_code, obs_date) DO UPDATE SET value=excluded.value, source_id=excluded.source_id`,
		rec.IndicatorCode, rec.Date, rec.Value, rec.SourceID,
	)
	return ledger.Wrap("put observation", err)
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutSubmission(rec ledger.SubmissionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO submissions(`+submissionColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)
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
	res, err := t.tx.Exec(`UPDATE submissions SET status = ?, updated_at = ? WHERE submission_id = ?`, status, updatedAt, submissionID)
	if err != nil {
		return ledger.Wrap("update submission status", err)
	}
	return requireAffected(res, "update submission status")
}

func (t *Tx) PutValidation(rec ledger.ValidationRecord) error {
	_, err := t.tx.Exec(`INSERT INTO validations(`+validationColumns+`) VALUES(?,?,?,?,?,?,?,?) ON CONFLICT(validation_id) DO NOTHING`,
		rec.ValidationID, rec.SubmissionID, rec.ContractID, boolToInt(rec.Passed), rec.Score, string(rec.BodyJSON), rec.BodyDigest, rec.CreatedAt,
	)
	return ledger.Wrap("put validation", err)
}

func (t *Tx) PutContradiction(rec ledger.ContradictionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO contradictions(`+contradictionColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT(contradiction_id) DO NOTHING`,
		rec.ContradictionID, rec.SubmissionID, rec.ValidationID, rec.IndicatorCode, rec.Period, rec.ExistingValue, rec.SubmittedValue, rec.ExistingSource, rec.RecordIndex, rec.Resolution, rec.ResolvedBy, rec.ResolvedAt, rec.CreatedAt,
	)
	return ledger.Wrap("put contradiction", err)
}

func (t *Tx) UpdateContradictionResolution(contradictionID string, resolution string, resolvedBy string, resolvedAt string) error {
	res, err := t.tx.Exec(`UPDATE contradictions SET resolution = ?, resolved_by = ?, resolved_at = ? WHERE contradiction_id = ? AND resolution = 'pending'`, resolution, resolvedBy, resolvedAt, contradictionID)
	if err != nil {
		return ledger.Wrap("resolve contradiction", err)
	}
	if err := requireAffected(res, "resolve contradiction"); !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	var exists int
	if err := t.tx.QueryRow(`SELECT 1 FROM contradictions WHERE contradiction_id = ?`, contradictionID).Scan(&exists); err != nil {
		return ledger.Wrap("resolve contradiction", err)
	}
	return ledger.ErrStaleState
}

func (t *Tx) CreateQueueEntry(rec ledger.QueueRecord) error {
	var exists int
	err := t.tx.QueryRow(`SELECT 1 FROM moderation_queue WHERE submission_id = ? OR queue_id = ?`, rec.SubmissionID, rec.QueueID).Scan(&exists)
	switch {
	case err == nil:
		return ledger.ErrAlreadyQueued
	case !errors.Is(err, sql.ErrNoRows):
		return ledger.Wrap("check queue entry", err)
	}
	_, err = t.tx.Exec(`INSERT INTO moderation_queue(`+queueColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, queueArgs(rec)...)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ledger.ErrAlreadyQueued
	}
	return ledger.Wrap("create queue entry", err)
}

func (t *Tx) GetQueueEntry(queueID string) (ledger.QueueRecord, error) {
	row := t.tx.QueryRow(`SELECT `+queueColumns+` FROM moderation_queue WHERE queue_id = ?`, queueID)
	rec, err := scanQueue(row)
	return rec, ledger.Wrap("get queue entry", err)
}

func (t *Tx) UpdateQueueEntry(rec ledger.QueueRecord, expectedStatus string, expectedVersion int) error {
	res, err := t.tx.Exec(`UPDATE moderation_queue SET
  status = ?,
  publishing_lane = ?,
  evidence_coverage = ?,
  evidence_pack_id = ?,
  validation_id = ?,
  reviewed_by = ?,
  reviewed_at = ?,
  review_notes = ?,
  qa_signoff_by = ?,
  qa_signoff_at = ?,
  qa_notes = ?,
  rejection_reason = ?,
  published_by = ?,
  published_at = ?,
  version = ?,
  updated_at = ?
WHERE queue_id = ? AND status = ? AND version = ?`,
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
	if _, err := t.GetQueueEntry(rec.QueueID); err != nil {
		return err
	}
	return ledger.ErrStaleState
}

func (t *Tx) GetPolicy(key string) (ledger.PolicyRecord, error) {
	var rec ledger.PolicyRecord
	var value string
	row := t.tx.QueryRow(`SELECT policy_key, value_json, updated_by, updated_at FROM governance_policies WHERE policy_key = ?`, key)
	if err := row.Scan(&rec.PolicyKey, &value, &rec.UpdatedBy, &rec.UpdatedAt); err != nil {
		return ledger.PolicyRecord{}, ledger.Wrap("get policy", err)
	}
	rec.ValueJSON = []byte(value)
	return rec, nil
}

func (t *Tx) PutPolicy(rec ledger.PolicyRecord) error {
	_, err := t.tx.Exec(`INSERT INTO governance_policies(policy_key, value_json, updated_by, updated_at) VALUES(?,?,?,?)
ON CONFLICT(policy_key) DO UPDATE SET value_json=excluded.value_json, updated_by=excluded.updated_by, updated_at=excluded.updated_at`,
		rec.PolicyKey, string(rec.ValueJSON), rec.UpdatedBy, rec.UpdatedAt,
	)
	return ledger.Wrap("put policy", err)
}

func (t *Tx) AppendAudit(rec ledger.AuditRecord) error {
	_, err := t.tx.Exec(`INSERT INTO audit_log(entry_id, seq, actor_id, action, category, target_type, target_id, previous_json, new_json, payload_digest, created_at)
VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log), ?,?,?,?,?,?,?,?,?)`,
		rec.EntryID, rec.ActorID, rec.Action, rec.Category, rec.TargetType, rec.TargetID, nullableJSON(rec.PreviousJSON), nullableJSON(rec.NewJSON), rec.PayloadDigest, rec.CreatedAt,
	)
	return ledger.Wrap("append audit", err)
}

func (t *Tx) PutPublication(rec ledger.PublicationRecord) error {
	_, err := t.tx.Exec(`INSERT INTO publications(publication_id, queue_id, submission_id, contract_id, publishing_lane, record_count, records_digest, published_by, created_at)
VALUES(?,?,?,?,?,?,?,?,?) ON CONFLICT(publication_id) DO NOTHING`,
		rec.PublicationID, rec.QueueID, rec.SubmissionID, rec.ContractID, rec.Lane, rec.RecordCount, rec.RecordsDigest, rec.PublishedBy, rec.CreatedAt,
	)
	return ledger.Wrap("put publication", err)
}

func (t *Tx) PutOutbox(rec ledger.OutboxRecord) error {
	_, err := t.tx.Exec(`INSERT INTO publication_outbox(notification_id, publication_id, topic, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
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

func queueArgs(rec ledger.QueueRecord) []any {
	return []any{
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
	}
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
