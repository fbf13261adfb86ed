package app

import (
	"context"
	"sync"
	"time"
)

// TickerFunc creates a ticker firing every d. The returned func stops it.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// RealTicker is the TickerFunc backed by time.Ticker.
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// timerHandle owns the countdown and checkpoint tickers of one InProgress stretch.
type timerHandle struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (h *timerHandle) stop() {
	h.once.Do(h.cancel)
}

// startTimersLocked launches the tick loop. Callers hold s.mu.
func (s *Session) startTimersLocked() {
	if s.timers != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	h := &timerHandle{cancel: cancel}
	s.timers = h

	var tickC <-chan time.Time
	stopTick := func() {}
	if s.record.TimerEnabled {
		tickC, stopTick = s.newTicker(s.cfg.TickInterval)
	}
	checkpointC, stopCheckpoint := s.newTicker(s.cfg.CheckpointInterval)

	go func() {
		defer stopTick()
		defer stopCheckpoint()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tickC:
				s.tickFrom(h)
			case <-checkpointC:
				s.checkpointFrom(ctx, h)
			}
		}
	}()
}

// stopTimersLocked cancels the running tick loop, if any. Callers hold s.mu.
func (s *Session) stopTimersLocked() {
	if s.timers == nil {
		return
	}
	s.timers.stop()
	s.timers = nil
}

func (s *Session) tickFrom(h *timerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers != h {
		return
	}
	_ = s.tickLocked()
}

func (s *Session) checkpointFrom(ctx context.Context, h *timerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers != h || s.state != StateInProgress {
		return
	}
	if err := s.writeCheckpointLocked(ctx); err != nil {
		s.log.WithError(err).Warn("periodic checkpoint failed")
	}
}
