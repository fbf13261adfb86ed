package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

const (
	checkpointVersion   = 1
	checkpointKeyPrefix = "quiz_session_"
)

// CheckpointStore persists attempt snapshots keyed by subject.
type CheckpointStore interface {
	Write(ctx context.Context, subjectID string, record domain.AttemptRecord) error
	Read(ctx context.Context, subjectID string) (domain.Checkpoint, bool, error)
	Clear(ctx context.Context, subjectID string) error
}

// Checkpoints is a CheckpointStore encoding snapshots as versioned JSON in a KeyValueStore.
type Checkpoints struct {
	store KeyValueStore
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewCheckpoints(store KeyValueStore, log logrus.FieldLogger) *Checkpoints {
	if log == nil {
		log = nopLogger()
	}
	return &Checkpoints{store: store, log: log, now: time.Now}
}

// Write overwrites any previous snapshot for the subject.
func (c *Checkpoints) Write(ctx context.Context, subjectID string, record domain.AttemptRecord) error {
	cp := domain.Checkpoint{
		Version:       checkpointVersion,
		SavedAt:       c.now().UTC(),
		AttemptRecord: record,
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := c.store.Set(ctx, checkpointKey(subjectID), data); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Read returns the stored snapshot. Undecodable, foreign-version or
// inconsistent snapshots are reported as absent.
func (c *Checkpoints) Read(ctx context.Context, subjectID string) (domain.Checkpoint, bool, error) {
	data, ok, err := c.store.Get(ctx, checkpointKey(subjectID))
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	if !ok {
		return domain.Checkpoint{}, false, nil
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		c.log.WithField("subject", subjectID).WithError(err).Warn("ignoring undecodable checkpoint")
		return domain.Checkpoint{}, false, nil
	}
	if cp.Version != checkpointVersion || cp.SubjectID != subjectID || len(cp.Questions) == 0 {
		c.log.WithFields(logrus.Fields{
			"subject": subjectID,
			"version": cp.Version,
		}).Warn("ignoring incompatible checkpoint")
		return domain.Checkpoint{}, false, nil
	}
	if cp.Answers == nil {
		cp.Answers = make(map[string]string)
	}
	if cp.QuestionTimes == nil {
		cp.QuestionTimes = make(map[string]int)
	}
	return cp, true, nil
}

func (c *Checkpoints) Clear(ctx context.Context, subjectID string) error {
	if err := c.store.Remove(ctx, checkpointKey(subjectID)); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

func checkpointKey(subjectID string) string {
	return checkpointKeyPrefix + subjectID
}
