package validation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/partnergate/internal/metrics"
	"github.com/davidahmann/partnergate/internal/reference"
	"github.com/davidahmann/partnergate/pkg/types"
)

// ContradictionTolerance is the relative difference above which a submitted
// value disagrees with the reference observation.
const ContradictionTolerance = 0.05

// ErrReferenceUnavailable aborts a validation when the mode is UnavailableAbort.
var ErrReferenceUnavailable = errors.New("reference data unavailable")

type UnavailableMode string

const (
	UnavailableFailClosed UnavailableMode = "fail_closed"
	UnavailableFailOpen   UnavailableMode = "fail_open"
	UnavailableAbort      UnavailableMode = "abort"
)

func ParseUnavailableMode(s string) (UnavailableMode, error) {
	switch UnavailableMode(s) {
	case "":
		return UnavailableFailClosed, nil
	case UnavailableFailClosed, UnavailableFailOpen, UnavailableAbort:
		return UnavailableMode(s), nil
	default:
		return "", fmt.Errorf("unknown unavailable mode %q", s)
	}
}

// Disagrees reports whether submitted is outside tolerance of existing.
// A zero reference value disagrees with any non-zero submission.
func Disagrees(existing, submitted float64) bool {
	if existing == 0 {
		return submitted != 0
	}
	return math.Abs(existing-submitted)/math.Abs(existing) > ContradictionTolerance
}

type lookupSlot struct {
	view  recordView
	obs   reference.Observation
	found bool
	err   error
}

// CheckContradictions runs Layer 3. Lookups run concurrently up to limit
// and results keep record order.
func CheckContradictions(ctx context.Context, ref reference.Store, records []types.Record, mode UnavailableMode, limit int) (types.ContradictionResult, error) {
	var slots []*lookupSlot
	for _, v := range resolve(records) {
		if v.indicator == "" || !v.hasDate || !v.hasValue {
			continue
		}
		slots = append(slots, &lookupSlot{view: v})
	}

	if ref == nil && len(slots) > 0 {
		return unavailable(nil, mode, errors.New("no reference store configured"))
	}

	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, slot := range slots {
		g.Go(func() error {
			slot.obs, slot.found, slot.err = ref.Lookup(ctx, slot.view.indicator, calendarDay(slot.view.date))
			return nil
		})
	}
	_ = g.Wait()

	contradictions := make([]types.Contradiction, 0)
	var firstErr error
	for _, slot := range slots {
		switch {
		case slot.err != nil:
			metrics.ReferenceLookups.WithLabelValues("error").Inc()
			if firstErr == nil {
				firstErr = slot.err
			}
		case !slot.found:
			metrics.ReferenceLookups.WithLabelValues("miss").Inc()
		default:
			metrics.ReferenceLookups.WithLabelValues("hit").Inc()
			if Disagrees(slot.obs.Value, slot.view.value) {
				contradictions = append(contradictions, types.Contradiction{
					IndicatorCode:  slot.view.indicator,
					Period:         slot.view.rawDate,
					ExistingValue:  slot.obs.Value,
					SubmittedValue: slot.view.value,
					ExistingSource: slot.obs.SourceID,
					RecordIndex:    slot.view.index,
					Resolution:     types.ResolutionPending,
				})
			}
		}
	}

	if firstErr != nil {
		return unavailable(contradictions, mode, firstErr)
	}
	return types.ContradictionResult{
		Passed:         len(contradictions) == 0,
		Contradictions: contradictions,
	}, nil
}

func unavailable(found []types.Contradiction, mode UnavailableMode, cause error) (types.ContradictionResult, error) {
	if found == nil {
		found = make([]types.Contradiction, 0)
	}
	switch mode {
	case UnavailableAbort:
		return types.ContradictionResult{}, fmt.Errorf("%w: %v", ErrReferenceUnavailable, cause)
	case UnavailableFailOpen:
		return types.ContradictionResult{
			Passed:         len(found) == 0,
			Inconclusive:   true,
			Error:          cause.Error(),
			Contradictions: found,
		}, nil
	default:
		return types.ContradictionResult{
			Passed:         false,
			Inconclusive:   true,
			Error:          cause.Error(),
			Contradictions: found,
		}, nil
	}
}
