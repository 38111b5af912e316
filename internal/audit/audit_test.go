package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/pkg/types"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewRecordCanonicalizesPayloads(t *testing.T) {
	rec, err := NewRecord(Event{
		ActorID:    "reviewer-1",
		Action:     "review_submission",
		Category:   types.CategoryModeration,
		TargetType: "moderation_queue",
		TargetID:   "q-1",
		Previous:   map[string]any{"status": "pending_review", "version": 2},
		New:        json.RawMessage(`{ "version": 3, "status": "approved_restricted" }`),
	}, fixedNow)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.EntryID)
	assert.Equal(t, `{"status":"pending_review","version":2}`, string(rec.PreviousJSON))
	assert.Equal(t, `{"status":"approved_restricted","version":3}`, string(rec.NewJSON))
	assert.Equal(t, "2024-03-01T12:00:00.000000Z", rec.CreatedAt)
	assert.Contains(t, rec.PayloadDigest, "sha256:")
	assert.True(t, Verify(rec))

	tampered := rec
	tampered.NewJSON = []byte(`{"status":"published","version":3}`)
	assert.False(t, Verify(tampered))
}

func TestNewRecordDefaultsAndErrors(t *testing.T) {
	rec, err := NewRecord(Event{ActorID: "a", Action: "x"}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, string(types.CategoryOther), rec.Category)
	assert.Nil(t, rec.PreviousJSON)
	assert.Nil(t, rec.NewJSON)

	_, err = NewRecord(Event{Action: "x"}, fixedNow)
	require.Error(t, err)

	_, err = NewRecord(Event{ActorID: "a", Action: "x", New: make(chan int)}, fixedNow)
	require.Error(t, err)
}

func TestDigestIsStableAcrossIDs(t *testing.T) {
	ev := Event{ActorID: "a", Action: "update_policy", TargetType: "policy", TargetID: "k", New: map[string]any{"value": 90}}
	first, err := NewRecord(ev, fixedNow)
	require.NoError(t, err)
	second, err := NewRecord(ev, fixedNow.Add(time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, first.EntryID, second.EntryID)
	assert.Equal(t, first.PayloadDigest, second.PayloadDigest)
}

func TestAppendAndToEntry(t *testing.T) {
	store := ledger.NewInMemoryStore()
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		return Append(tx, Event{
			ActorID:    "admin",
			Action:     "update_policy",
			Category:   types.CategoryConfiguration,
			TargetType: "governance_policy",
			TargetID:   "evidence_coverage_threshold",
			Previous:   map[string]any{"value": 95},
			New:        map[string]any{"value": 90},
		}, fixedNow)
	})
	require.NoError(t, err)

	recs, err := store.ListAudit(context.Background(), ToFilter(types.AuditFilter{Category: types.CategoryConfiguration}))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	entry := ToEntry(recs[0])
	assert.Equal(t, types.CategoryConfiguration, entry.Category)
	assert.JSONEq(t, `{"value":95}`, string(entry.PreviousValue))
	assert.JSONEq(t, `{"value":90}`, string(entry.NewValue))
	assert.Equal(t, recs[0].PayloadDigest, entry.PayloadDigest)
}

type staticReader []ledger.AuditRecord

func (r staticReader) ListAudit(context.Context, ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	return r, nil
}

func TestQueryFlagsTamperedEntries(t *testing.T) {
	good, err := NewRecord(Event{ActorID: "qa-1", Action: "qa_signoff", TargetID: "q1", New: map[string]any{"status": "approved_public_aggregate"}}, fixedNow)
	require.NoError(t, err)
	bad := good
	bad.EntryID = "other"
	bad.NewJSON = []byte(`{"status":"published"}`)

	entries, err := Query(context.Background(), staticReader{good, bad}, types.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Tampered)
	assert.True(t, entries[1].Tampered)

	_, err = Query(context.Background(), staticReader{}, types.AuditFilter{Limit: -1})
	require.Error(t, err)
}
