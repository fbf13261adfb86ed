package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func enqueueN(t *testing.T, q *app.OfflineQueue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		if _, err := q.Enqueue(context.Background(), domain.SubmissionPayload{AttemptID: id, SubjectID: "math"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestOfflineQueuePendingInOrder(t *testing.T) {
	store := memory.NewKVStore()
	q := app.NewOfflineQueue(store, nil)
	ids := enqueueN(t, q, 3)

	pending, err := q.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	for i, entry := range pending {
		if entry.Payload.AttemptID != ids[i] {
			t.Fatalf("position %d: expected %s got %s", i, ids[i], entry.Payload.AttemptID)
		}
		if !strings.HasPrefix(entry.Key, "offline_quiz_") {
			t.Fatalf("unexpected key %s", entry.Key)
		}
	}
}

func TestOfflineQueueDropsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	_ = store.Set(ctx, "offline_quiz_00000000000000000001-x", []byte("{broken"))
	q := app.NewOfflineQueue(store, nil)
	enqueueN(t, q, 1)

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected only the valid entry, got %d", len(pending))
	}
	if _, ok, _ := store.Get(ctx, "offline_quiz_00000000000000000001-x"); ok {
		t.Fatalf("expected broken entry removed")
	}
}

func TestOfflineQueueFlush(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers everything", func(t *testing.T) {
		q := app.NewOfflineQueue(memory.NewKVStore(), nil)
		enqueueN(t, q, 3)
		sink := memory.NewAttemptSink()

		report, err := q.Flush(ctx, sink)
		if err != nil {
			t.Fatalf("flush: %v", err)
		}
		if report.Delivered != 3 || report.Remaining != 0 {
			t.Fatalf("unexpected report %+v", report)
		}
		if got := sink.Delivered(); len(got) != 3 || got[0].AttemptID != "a" {
			t.Fatalf("expected oldest first, got %+v", got)
		}
		pending, _ := q.Pending(ctx)
		if len(pending) != 0 {
			t.Fatalf("expected queue drained")
		}
	})

	t.Run("stops when unreachable", func(t *testing.T) {
		q := app.NewOfflineQueue(memory.NewKVStore(), nil)
		enqueueN(t, q, 3)
		sink := memory.NewAttemptSink()
		sink.FailWith(func(call int) error {
			if call >= 2 {
				return domain.ErrDeliveryUnreachable
			}
			return nil
		})

		report, err := q.Flush(ctx, sink)
		if err != nil {
			t.Fatalf("unreachable sink should not be an error: %v", err)
		}
		if report.Delivered != 1 || report.Remaining != 2 || sink.Calls() != 2 {
			t.Fatalf("unexpected report %+v calls=%d", report, sink.Calls())
		}
	})

	t.Run("discards rejected", func(t *testing.T) {
		q := app.NewOfflineQueue(memory.NewKVStore(), nil)
		enqueueN(t, q, 2)
		sink := memory.NewAttemptSink()
		sink.FailWith(func(call int) error {
			if call == 1 {
				return domain.ErrDeliveryRejected
			}
			return nil
		})

		report, err := q.Flush(ctx, sink)
		if err != nil {
			t.Fatalf("flush: %v", err)
		}
		if report.Rejected != 1 || report.Delivered != 1 || report.Remaining != 0 {
			t.Fatalf("unexpected report %+v", report)
		}
	})

	t.Run("returns transient errors", func(t *testing.T) {
		q := app.NewOfflineQueue(memory.NewKVStore(), nil)
		enqueueN(t, q, 2)
		sink := memory.NewAttemptSink()
		boom := errors.New("boom")
		sink.FailWith(func(int) error { return boom })

		report, err := q.Flush(ctx, sink)
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if report.Remaining != 2 {
			t.Fatalf("expected entries kept, got %+v", report)
		}
	})
}
