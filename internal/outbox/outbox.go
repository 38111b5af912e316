package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/davidahmann/partnergate/internal/ledger"
	"github.com/davidahmann/partnergate/internal/metrics"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

const (
	retryInitial = 5 * time.Second
	retryMax     = 5 * time.Minute
)

// Sink delivers one publication notification downstream.
type Sink interface {
	Deliver(ctx context.Context, topic string, message []byte) error
}

// ProcessDue delivers pending notifications whose next attempt is due and
// records the outcome on each row. Failed deliveries are rescheduled with
// exponential backoff; undecodable payloads are closed out with LastError set.
func ProcessDue(ctx context.Context, store ledger.Store, sink Sink, now time.Time, limit int) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("missing store")
	}
	if sink == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	stamp := ledger.FormatTime(now)
	due, err := store.ListOutboxDue(ctx, stamp, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if rec.Status != StatusPending {
			continue
		}

		if !json.Valid(rec.MessageJSON) {
			msg := "invalid message_json"
			rec.LastError = &msg
			markSent(&rec, stamp)
			if err := store.PutOutbox(ctx, rec); err != nil {
				return processed, err
			}
			metrics.OutboxDeliveries.WithLabelValues("dropped").Inc()
			processed++
			continue
		}

		if err := sink.Deliver(ctx, rec.Topic, rec.MessageJSON); err != nil {
			rec.NextAttemptAt = ledger.FormatTime(now.Add(nextAttempt(rec.AttemptCount)))
			rec.AttemptCount++
			msg := err.Error()
			rec.LastError = &msg
			rec.UpdatedAt = stamp
			if err := store.PutOutbox(ctx, rec); err != nil {
				return processed, err
			}
			metrics.OutboxDeliveries.WithLabelValues("retry").Inc()
			processed++
			continue
		}

		markSent(&rec, stamp)
		if err := store.PutOutbox(ctx, rec); err != nil {
			return processed, err
		}
		metrics.OutboxDeliveries.WithLabelValues("sent").Inc()
		processed++
	}
	return processed, nil
}

func markSent(rec *ledger.OutboxRecord, stamp string) {
	rec.Status = StatusSent
	sentAt := stamp
	rec.SentAt = &sentAt
	rec.UpdatedAt = stamp
}

// nextAttempt returns 5s, 10s, 20s, ... capped at 5m.
func nextAttempt(attemptCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.MaxInterval = retryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < attemptCount && d < retryMax; i++ {
		d = b.NextBackOff()
	}
	if d > retryMax {
		return retryMax
	}
	return d
}

// RunWorker polls and delivers due notifications until ctx is cancelled.
func RunWorker(ctx context.Context, store ledger.Store, sink Sink, pollInterval time.Duration, log *zap.Logger) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := ProcessDue(ctx, store, sink, now, 25)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("outbox pass failed", zap.Error(err), zap.Int("processed", n))
				continue
			}
			if n > 0 {
				log.Debug("outbox pass", zap.Int("processed", n))
			}
		}
	}
}

// WebhookSink POSTs each notification body to a fixed URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (w *WebhookSink) Deliver(ctx context.Context, topic string, message []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Partnergate-Topic", topic)

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes notifications to the log. Used when no webhook is configured.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Deliver(_ context.Context, topic string, message []byte) error {
	if s.Log != nil {
		s.Log.Info("publication notification", zap.String("topic", topic), zap.ByteString("message", message))
	}
	return nil
}
