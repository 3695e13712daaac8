package progress

import (
	"time"

	"go.uber.org/zap"
)

const defaultLogInterval = 5 * time.Second

// LogSink reports progress through a zap logger, rate-limited so large runs
// do not flood the log. The final snapshot is always reported.
type LogSink struct {
	logger   *zap.Logger
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{
		logger:   logger,
		interval: defaultLogInterval,
		now:      time.Now,
	}
}

// Observe logs the snapshot when the rate limit allows or the run is done.
func (s *LogSink) Observe(snap Snapshot) {
	now := s.now()
	if !snap.Done() && now.Sub(s.last) < s.interval {
		return
	}
	s.last = now
	s.logger.Info("fetch progress",
		zap.String("run_id", snap.RunID.String()),
		zap.String("group", snap.Group),
		zap.Int64("processed", snap.Processed),
		zap.Int64("total", snap.Total),
	)
}
