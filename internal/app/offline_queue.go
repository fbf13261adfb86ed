package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

const offlineKeyPrefix = "offline_quiz_"

// AttemptQueue holds payloads that could not be delivered.
type AttemptQueue interface {
	Enqueue(ctx context.Context, payload domain.SubmissionPayload) (string, error)
}

// QueuedAttempt is a payload waiting in the offline queue.
type QueuedAttempt struct {
	Key      string                   `json:"key"`
	QueuedAt time.Time                `json:"queuedAt"`
	Payload  domain.SubmissionPayload `json:"payload"`
}

// FlushReport summarizes one replay of the offline queue.
type FlushReport struct {
	Delivered int `json:"delivered"`
	Rejected  int `json:"rejected"`
	Remaining int `json:"remaining"`
}

// OfflineQueue stores undelivered attempts in a KeyValueStore until they can be replayed.
type OfflineQueue struct {
	store KeyValueStore
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewOfflineQueue(store KeyValueStore, log logrus.FieldLogger) *OfflineQueue {
	if log == nil {
		log = nopLogger()
	}
	return &OfflineQueue{store: store, log: log, now: time.Now}
}

// Enqueue stores payload and returns its queue key. Keys sort in enqueue order.
func (q *OfflineQueue) Enqueue(ctx context.Context, payload domain.SubmissionPayload) (string, error) {
	now := q.now().UTC()
	entry := QueuedAttempt{
		Key:      fmt.Sprintf("%s%020d-%s", offlineKeyPrefix, now.UnixNano(), uuid.NewString()),
		QueuedAt: now,
		Payload:  payload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode queued attempt: %w", err)
	}
	if err := q.store.Set(ctx, entry.Key, data); err != nil {
		return "", fmt.Errorf("enqueue attempt: %w", err)
	}
	return entry.Key, nil
}

// Pending lists queued attempts, oldest first. Undecodable entries are dropped.
func (q *OfflineQueue) Pending(ctx context.Context) ([]QueuedAttempt, error) {
	keys, err := q.store.Keys(ctx, offlineKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list queued attempts: %w", err)
	}
	sort.Strings(keys)

	pending := make([]QueuedAttempt, 0, len(keys))
	for _, key := range keys {
		data, ok, err := q.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read queued attempt: %w", err)
		}
		if !ok {
			continue
		}
		var entry QueuedAttempt
		if err := json.Unmarshal(data, &entry); err != nil {
			q.log.WithField("key", key).WithError(err).Warn("dropping undecodable queued attempt")
			_ = q.store.Remove(ctx, key)
			continue
		}
		entry.Key = key
		pending = append(pending, entry)
	}
	return pending, nil
}

// Flush replays queued attempts to sink. It stops at the first unreachable or
// transient failure and leaves the remaining entries queued.
func (q *OfflineQueue) Flush(ctx context.Context, sink AttemptSink) (FlushReport, error) {
	pending, err := q.Pending(ctx)
	if err != nil {
		return FlushReport{}, err
	}

	report := FlushReport{Remaining: len(pending)}
	for _, entry := range pending {
		log := q.log.WithFields(logrus.Fields{"key": entry.Key, "attempt": entry.Payload.AttemptID})
		err := sink.Submit(ctx, entry.Payload)
		switch {
		case err == nil:
			report.Delivered++
			log.Info("queued attempt delivered")
		case errors.Is(err, domain.ErrDeliveryRejected):
			report.Rejected++
			log.WithError(err).Warn("queued attempt rejected, discarding")
		case errors.Is(err, domain.ErrDeliveryUnreachable):
			log.Debug("attempt sink still unreachable")
			return report, nil
		default:
			return report, fmt.Errorf("flush attempt %s: %w", entry.Payload.AttemptID, err)
		}
		if err := q.store.Remove(ctx, entry.Key); err != nil {
			return report, fmt.Errorf("remove queued attempt: %w", err)
		}
		report.Remaining--
	}
	return report, nil
}
