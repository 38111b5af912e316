// Package audit builds append-only audit entries. Each entry carries a
// digest over its canonical payload so tampering shows up on re-check.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/partnergate/internal/crypto"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/pkg/types"
)

type Event struct {
	ActorID    string
	Action     string
	Category   types.AuditCategory
	TargetType string
	TargetID   string
	Previous   any
	New        any
}

// NewRecord canonicalizes both payloads and computes the entry digest.
func NewRecord(ev Event, now time.Time) (ledger.AuditRecord, error) {
	if ev.ActorID == "" || ev.Action == "" {
		return ledger.AuditRecord{}, fmt.Errorf("audit: actor and action are required")
	}
	category := ev.Category
	if category == "" {
		category = types.CategoryOther
	}

	prev, err := payload(ev.Previous)
	if err != nil {
		return ledger.AuditRecord{}, fmt.Errorf("audit: previous value: %w", err)
	}
	next, err := payload(ev.New)
	if err != nil {
		return ledger.AuditRecord{}, fmt.Errorf("audit: new value: %w", err)
	}

	rec := ledger.AuditRecord{
		EntryID:      uuid.NewString(),
		ActorID:      ev.ActorID,
		Action:       ev.Action,
		Category:     string(category),
		TargetType:   ev.TargetType,
		TargetID:     ev.TargetID,
		PreviousJSON: prev,
		NewJSON:      next,
		CreatedAt:    ledger.FormatTime(now),
	}
	rec.PayloadDigest, err = Digest(rec)
	if err != nil {
		return ledger.AuditRecord{}, err
	}
	return rec, nil
}

// Append builds the record and writes it inside tx.
func Append(tx ledger.Tx, ev Event, now time.Time) error {
	rec, err := NewRecord(ev, now)
	if err != nil {
		return err
	}
	return tx.AppendAudit(rec)
}

// Digest covers actor, action, category, target and both payloads.
func Digest(rec ledger.AuditRecord) (string, error) {
	body := map[string]any{
		"actor_id":    rec.ActorID,
		"action":      rec.Action,
		"category":    rec.Category,
		"target_type": rec.TargetType,
		"target_id":   rec.TargetID,
		"previous":    rawOrNil(rec.PreviousJSON),
		"new":         rawOrNil(rec.NewJSON),
	}
	digest, err := crypto.DigestJSON(body)
	if err != nil {
		return "", fmt.Errorf("audit: digest: %w", err)
	}
	return digest, nil
}

// Verify reports whether the stored digest still matches the entry.
func Verify(rec ledger.AuditRecord) bool {
	digest, err := Digest(rec)
	return err == nil && digest == rec.PayloadDigest
}

func ToEntry(rec ledger.AuditRecord) types.AuditLogEntry {
	return types.AuditLogEntry{
		EntryID:       rec.EntryID,
		ActorID:       rec.ActorID,
		Action:        rec.Action,
		Category:      types.AuditCategory(rec.Category),
		TargetType:    rec.TargetType,
		TargetID:      rec.TargetID,
		PreviousValue: rawOrNil(rec.PreviousJSON),
		NewValue:      rawOrNil(rec.NewJSON),
		PayloadDigest: rec.PayloadDigest,
		CreatedAt:     rec.CreatedAt,
	}
}

func ToFilter(f types.AuditFilter) ledger.AuditFilter {
	return ledger.AuditFilter{
		Category:   string(f.Category),
		ActorID:    f.ActorID,
		TargetType: f.TargetType,
		TargetID:   f.TargetID,
		Limit:      f.Limit,
		Offset:     f.Offset,
	}
}

// Reader is the slice of ledger.Store that Query needs.
type Reader interface {
	ListAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditRecord, error)
}

// Query lists entries newest first. Entries whose digest no longer matches
// their payload are returned with Tampered set.
func Query(ctx context.Context, store Reader, f types.AuditFilter) ([]types.AuditLogEntry, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("audit: limit and offset must be non-negative")
	}
	recs, err := store.ListAudit(ctx, ToFilter(f))
	if err != nil {
		return nil, err
	}
	out := make([]types.AuditLogEntry, 0, len(recs))
	for _, rec := range recs {
		entry := ToEntry(rec)
		entry.Tampered = !Verify(rec)
		out = append(out, entry)
	}
	return out, nil
}

func payload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok && len(raw) == 0 {
		return nil, nil
	}
	return crypto.CanonicalizeJSON(v)
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
