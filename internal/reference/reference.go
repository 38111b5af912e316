// Package reference reads the authoritative time series that partner
// submissions are cross-checked against. It is read-only.
package reference

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidahmann/partnergate/internal/ledger"
)

// ErrUnavailable marks a lookup that could not reach the reference data.
var ErrUnavailable = errors.New("reference store unavailable")

type Observation struct {
	IndicatorCode string  `json:"indicator_code"`
	Date          string  `json:"date"`
	Value         float64 `json:"value"`
	SourceID      string  `json:"source_id"`
}

// Store looks up one observation by indicator and calendar date
// (YYYY-MM-DD). A missing observation is (zero, false, nil), not an error.
type Store interface {
	Lookup(ctx context.Context, indicatorCode, date string) (Observation, bool, error)
}

type observationReader interface {
	LookupObservation(ctx context.Context, indicatorCode string, date string) (ledger.ObservationRecord, error)
}

// LedgerStore serves lookups from the ledger's time_series table.
type LedgerStore struct {
	reader observationReader
}

func NewLedgerStore(reader observationReader) *LedgerStore {
	return &LedgerStore{reader: reader}
}

func (s *LedgerStore) Lookup(ctx context.Context, indicatorCode, date string) (Observation, bool, error) {
	rec, err := s.reader.LookupObservation(ctx, indicatorCode, date)
	if errors.Is(err, ledger.ErrNotFound) {
		return Observation{}, false, nil
	}
	if err != nil {
		return Observation{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Observation{
		IndicatorCode: rec.IndicatorCode,
		Date:          rec.Date,
		Value:         rec.Value,
		SourceID:      rec.SourceID,
	}, true, nil
}
