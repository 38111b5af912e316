package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	cb "github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type ResilientOptions struct {
	// MaxElapsed bounds the total retry time for one lookup.
	MaxElapsed time.Duration
	// BreakerFailures is the consecutive-failure count that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Resilient retries transient lookup failures with exponential backoff and
// stops calling the underlying store while its circuit breaker is open.
type Resilient struct {
	next    Store
	breaker *cb.CircuitBreaker
	opts    ResilientOptions
	log     *zap.Logger
}

func NewResilient(next Store, opts ResilientOptions, log *zap.Logger) *Resilient {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 2 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	settings := cb.Settings{
		Name:        "ReferenceStoreCB",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to cb.State) {
			log.Warn("Circuit breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Resilient{
		next:    next,
		breaker: cb.NewCircuitBreaker(settings),
		opts:    opts,
		log:     log,
	}
}

type lookupResult struct {
	obs   Observation
	found bool
}

func (r *Resilient) Lookup(ctx context.Context, indicatorCode, date string) (Observation, bool, error) {
	var res lookupResult
	operation := func() error {
		out, err := r.breaker.Execute(func() (interface{}, error) {
			obs, found, err := r.next.Lookup(ctx, indicatorCode, date)
			if err != nil {
				return nil, err
			}
			return lookupResult{obs: obs, found: found}, nil
		})
		if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		res = out.(lookupResult)
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 50 * time.Millisecond
	expBackoff.MaxElapsedTime = r.opts.MaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		r.log.Warn("reference lookup failed", zap.String("indicator_code", indicatorCode), zap.String("date", date), zap.Error(err))
		if errors.Is(err, ErrUnavailable) {
			return Observation{}, false, err
		}
		return Observation{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.obs, res.found, nil
}

// State reports the breaker state for health checks.
func (r *Resilient) State() string {
	return r.breaker.State().String()
}
