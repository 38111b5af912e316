// Package governance reads and updates tunable policy values. Reads fall
// back to documented defaults; updates always write an audit entry.
package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/davidahmann/partnergate/internal/audit"
	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/pkg/types"
)

const (
	KeyEvidenceCoverageThreshold   = "evidence_coverage_threshold"
	KeyContradictionAutoQuarantine = "contradiction_auto_quarantine"

	DefaultEvidenceCoverageThreshold   = 95
	DefaultContradictionAutoQuarantine = true
)

var ErrInvalidPolicy = errors.New("invalid policy value")

type thresholdValue struct {
	Value *int `json:"value"`
}

type toggleValue struct {
	Enabled *bool `json:"enabled"`
}

var defaults = map[string]json.RawMessage{
	KeyEvidenceCoverageThreshold:   json.RawMessage(fmt.Sprintf(`{"value":%d}`, DefaultEvidenceCoverageThreshold)),
	KeyContradictionAutoQuarantine: json.RawMessage(fmt.Sprintf(`{"enabled":%t}`, DefaultContradictionAutoQuarantine)),
}

type Service struct {
	store ledger.Store
	log   *zap.Logger
	now   func() time.Time
}

func New(store ledger.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// EvidenceCoverageThreshold returns the QA signoff threshold in percent.
func (s *Service) EvidenceCoverageThreshold(ctx context.Context) (int, error) {
	raw, err := s.read(ctx, KeyEvidenceCoverageThreshold)
	if err != nil || raw == nil {
		return DefaultEvidenceCoverageThreshold, err
	}
	v, err := parseThreshold(raw)
	if err != nil {
		s.log.Warn("malformed policy, using default",
			zap.String("key", KeyEvidenceCoverageThreshold), zap.Error(err))
		return DefaultEvidenceCoverageThreshold, nil
	}
	return v, nil
}

// AutoQuarantine reports whether failed validations go to quarantine.
func (s *Service) AutoQuarantine(ctx context.Context) (bool, error) {
	raw, err := s.read(ctx, KeyContradictionAutoQuarantine)
	if err != nil || raw == nil {
		return DefaultContradictionAutoQuarantine, err
	}
	v, err := parseToggle(raw)
	if err != nil {
		s.log.Warn("malformed policy, using default",
			zap.String("key", KeyContradictionAutoQuarantine), zap.Error(err))
		return DefaultContradictionAutoQuarantine, nil
	}
	return v, nil
}

// Get returns the stored policy, or the default for a known key.
func (s *Service) Get(ctx context.Context, key string) (types.GovernancePolicy, error) {
	rec, err := s.store.GetPolicy(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		if def, ok := defaults[key]; ok {
			return types.GovernancePolicy{Key: key, Value: def}, nil
		}
		return types.GovernancePolicy{}, err
	}
	if err != nil {
		return types.GovernancePolicy{}, err
	}
	return toPolicy(rec), nil
}

// List returns stored policies plus defaults for unset known keys.
func (s *Service) List(ctx context.Context) ([]types.GovernancePolicy, error) {
	recs, err := s.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recs))
	out := make([]types.GovernancePolicy, 0, len(recs)+len(defaults))
	for _, rec := range recs {
		seen[rec.PolicyKey] = true
		out = append(out, toPolicy(rec))
	}
	for key, def := range defaults {
		if !seen[key] {
			out = append(out, types.GovernancePolicy{Key: key, Value: def})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Update writes value and records previous and new values in one transaction.
func (s *Service) Update(ctx context.Context, actorID, key string, value json.RawMessage) (types.GovernancePolicy, error) {
	if key == "" {
		return types.GovernancePolicy{}, fmt.Errorf("%w: key is required", ErrInvalidPolicy)
	}
	if err := checkValue(key, value); err != nil {
		return types.GovernancePolicy{}, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return types.GovernancePolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	now := s.now().UTC()
	by := actorID
	rec := ledger.PolicyRecord{
		PolicyKey: key,
		ValueJSON: compact.Bytes(),
		UpdatedBy: &by,
		UpdatedAt: ledger.FormatTime(now),
	}

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var previous any
		prev, err := tx.GetPolicy(key)
		switch {
		case err == nil:
			previous = json.RawMessage(prev.ValueJSON)
		case errors.Is(err, ledger.ErrNotFound):
			if def, ok := defaults[key]; ok {
				previous = def
			}
		default:
			return err
		}
		if err := tx.PutPolicy(rec); err != nil {
			return err
		}
		return audit.Append(tx, audit.Event{
			ActorID:    actorID,
			Action:     "update_policy",
			Category:   types.CategoryConfiguration,
			TargetType: "governance_policy",
			TargetID:   key,
			Previous:   previous,
			New:        json.RawMessage(rec.ValueJSON),
		}, now)
	})
	if err != nil {
		return types.GovernancePolicy{}, err
	}
	s.log.Info("policy updated", zap.String("key", key), zap.String("actor", actorID))
	return toPolicy(rec), nil
}

func (s *Service) read(ctx context.Context, key string) (json.RawMessage, error) {
	rec, err := s.store.GetPolicy(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.ValueJSON, nil
}

func checkValue(key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: value is not valid JSON", ErrInvalidPolicy)
	}
	var err error
	switch key {
	case KeyEvidenceCoverageThreshold:
		_, err = parseThreshold(value)
	case KeyContradictionAutoQuarantine:
		_, err = parseToggle(value)
	}
	return err
}

func parseThreshold(raw json.RawMessage) (int, error) {
	var v thresholdValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if v.Value == nil {
		return 0, fmt.Errorf("%w: missing \"value\"", ErrInvalidPolicy)
	}
	if *v.Value < 0 || *v.Value > 100 {
		return 0, fmt.Errorf("%w: threshold %d outside 0..100", ErrInvalidPolicy, *v.Value)
	}
	return *v.Value, nil
}

func parseToggle(raw json.RawMessage) (bool, error) {
	var v toggleValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if v.Enabled == nil {
		return false, fmt.Errorf("%w: missing \"enabled\"", ErrInvalidPolicy)
	}
	return *v.Enabled, nil
}

func toPolicy(rec ledger.PolicyRecord) types.GovernancePolicy {
	p := types.GovernancePolicy{
		Key:       rec.PolicyKey,
		Value:     json.RawMessage(rec.ValueJSON),
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.UpdatedBy != nil {
		p.UpdatedBy = *rec.UpdatedBy
	}
	return p
}
