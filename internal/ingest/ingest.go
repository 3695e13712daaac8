// Package ingest orchestrates one run: select the group, record its status
// row, then pull headers either via XOVER or the concurrent HEAD pipeline.
package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/nntp2sql/internal/config"
	"github.com/example/nntp2sql/internal/nntp"
	"github.com/example/nntp2sql/internal/pipeline"
	"github.com/example/nntp2sql/internal/progress"
	"github.com/example/nntp2sql/internal/store"
)

// Runner owns the resources of a single ingestion run.
type Runner struct {
	cfg    config.Config
	sink   *store.Sink
	sinks  []progress.Sink
	logger *zap.Logger
	runID  uuid.UUID
}

// NewRunner wires a runner against an already-opened sink.
func NewRunner(cfg config.Config, sink *store.Sink, progressSinks []progress.Sink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		sink:   sink,
		sinks:  progressSinks,
		logger: logger,
		runID:  uuid.New(),
	}
}

// Run executes the ingestion. Connection, greeting, and group selection
// failures abort the run; individual article failures are logged and
// skipped.
func (r *Runner) Run(ctx context.Context) error {
	group := r.cfg.Fetch.Group
	logger := r.logger.With(
		zap.String("run_id", r.runID.String()),
		zap.String("group", group),
	)

	sess := nntp.NewSession(r.sessionConfig(), logger)
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Debug("session close failed", zap.Error(cerr))
		}
	}()

	status, err := sess.SelectGroup(group)
	if err != nil {
		return err
	}
	logger.Info("group selected",
		zap.Int64("count", status.Count),
		zap.Int64("first", status.First),
		zap.Int64("last", status.Last),
	)

	if err := r.sink.WriteGroup(ctx, store.Group{
		Name:  group,
		Count: status.Count,
		First: status.First,
		Last:  status.Last,
	}); err != nil {
		logger.Warn("group row write failed", zap.Error(err))
	}

	if status.Count == 0 {
		logger.Warn("group is empty, nothing to fetch")
		return nil
	}

	first, last := narrowRange(status.First, status.Last, r.cfg.Fetch.Limit)
	tracker := progress.NewTracker(r.runID, group, last-first+1, r.sinks...)

	if r.cfg.Fetch.HeadersOnly {
		if err := r.runXover(ctx, sess, logger, tracker, first, last); err != nil {
			return err
		}
	} else {
		r.runPipeline(ctx, logger, tracker, first, last)
	}

	snap := tracker.Snapshot()
	logger.Info("ingestion finished",
		zap.Int64("processed", snap.Processed),
		zap.Int64("total", snap.Total),
	)
	return nil
}

// runXover pulls the whole range as overview lines over the primary session.
func (r *Runner) runXover(
	ctx context.Context,
	sess *nntp.Session,
	logger *zap.Logger,
	tracker *progress.Tracker,
	first, last int64,
) error {
	body, err := sess.Xover(first, last)
	if errors.Is(err, nntp.ErrRejected) {
		logger.Warn("XOVER returned no data")
		return nil
	}
	if err != nil {
		return err
	}

	group := r.cfg.Fetch.Group
	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		article := nntp.ParseOverview(line)
		if err := r.sink.WriteArticle(ctx, group, article); err != nil {
			logger.Warn("article write failed",
				zap.Int64("artnum", article.Number),
				zap.Error(err),
			)
			continue
		}
		tracker.Incr()
	}
	return nil
}

// runPipeline fans the range out to HEAD workers, each on its own session.
func (r *Runner) runPipeline(
	ctx context.Context,
	logger *zap.Logger,
	tracker *progress.Tracker,
	first, last int64,
) {
	group := r.cfg.Fetch.Group
	factory := func(ctx context.Context) (pipeline.HeaderFetcher, error) {
		sess := nntp.NewSession(r.sessionConfig(), logger)
		if err := sess.Connect(ctx); err != nil {
			return nil, err
		}
		if _, err := sess.SelectGroup(group); err != nil {
			if cerr := sess.Close(); cerr != nil {
				logger.Debug("session close failed", zap.Error(cerr))
			}
			return nil, err
		}
		return sess, nil
	}

	pool := pipeline.NewPool(
		pipeline.Config{
			Group:   group,
			Workers: r.cfg.Fetch.Workers,
			Retries: r.cfg.Fetch.Retries,
		},
		factory,
		r.sink,
		tracker,
		logger,
	)
	pool.Run(ctx, first, last)
}

func (r *Runner) sessionConfig() nntp.SessionConfig {
	srv := r.cfg.Server
	opts := nntp.ConnOptions{
		DialTimeout: srv.DialTimeout(),
		IOTimeout:   srv.IOTimeout(),
	}
	if srv.TLS || srv.StartTLS {
		opts.TLSConfig = &tls.Config{ServerName: srv.Host, MinVersion: tls.VersionTLS12}
	}
	return nntp.SessionConfig{
		Host:         srv.Host,
		Port:         srv.Port,
		TLSOnConnect: srv.TLS,
		StartTLS:     srv.StartTLS,
		Username:     srv.Username,
		Password:     srv.Password,
		ConnOptions:  opts,
	}
}

// narrowRange trims the fetch window to the newest limit articles when a
// positive limit is smaller than the group span.
func narrowRange(first, last int64, limit int) (int64, int64) {
	if limit <= 0 {
		return first, last
	}
	span := last - first + 1
	if int64(limit) >= span {
		return first, last
	}
	return last - int64(limit) + 1, last
}
