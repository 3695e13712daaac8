package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/nntp2sql/internal/nntp"
	"github.com/example/nntp2sql/internal/progress"
)

// HeaderFetcher is the per-worker session surface the pool drives. A
// Session satisfies it once its group is selected.
type HeaderFetcher interface {
	Head(artnum int64) (string, error)
	Close() error
}

// SessionFactory establishes a ready-to-fetch session for one worker:
// connected, authenticated, and group-selected.
type SessionFactory func(ctx context.Context) (HeaderFetcher, error)

// ArticleWriter is the sink surface the pipeline writes through.
type ArticleWriter interface {
	WriteArticle(ctx context.Context, group string, a nntp.Article) error
}

// Config controls pool behavior. Workers is additionally capped to the
// number of items in the run.
type Config struct {
	Group   string
	Workers int
	Retries int
}

// Pool fans article numbers out to a fixed set of workers.
type Pool struct {
	cfg     Config
	dial    SessionFactory
	sink    ArticleWriter
	tracker *progress.Tracker
	logger  *zap.Logger
}

// NewPool constructs a Pool.
func NewPool(
	cfg Config,
	dial SessionFactory,
	sink ArticleWriter,
	tracker *progress.Tracker,
	logger *zap.Logger,
) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Pool{
		cfg:     cfg,
		dial:    dial,
		sink:    sink,
		tracker: tracker,
		logger:  logger,
	}
}

// Run drains the article range [first, last] and blocks until every worker
// has finished. Workers that fail to establish a session contribute no
// throughput; items they would have handled remain available to the rest.
func (p *Pool) Run(ctx context.Context, first, last int64) {
	queue := NewQueue(first, last)
	workers := p.cfg.Workers
	if total := queue.Len(); workers > total {
		workers = total
	}
	if workers < 1 {
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id, queue)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int, queue *Queue) {
	logger := p.logger.With(zap.Int("worker", id))
	fetcher, err := p.dial(ctx)
	if err != nil {
		logger.Warn("session establish failed, worker exiting", zap.Error(err))
		return
	}
	defer func() {
		if cerr := fetcher.Close(); cerr != nil {
			logger.Debug("session close failed", zap.Error(cerr))
		}
	}()

	for ctx.Err() == nil {
		artnum, ok := queue.Pop()
		if !ok {
			return
		}
		p.processItem(ctx, logger, fetcher, artnum)
	}
}

// processItem fetches one header block with the bounded retry budget and
// writes it through the sink. An item that exhausts its budget is dropped;
// it is never rescheduled.
func (p *Pool) processItem(ctx context.Context, logger *zap.Logger, fetcher HeaderFetcher, artnum int64) {
	var block string
	var err error
	for attempt := 0; attempt <= p.cfg.Retries; attempt++ {
		block, err = fetcher.Head(artnum)
		if err == nil {
			break
		}
	}
	if err != nil {
		logger.Warn("dropping article after exhausted retries",
			zap.Int64("artnum", artnum),
			zap.Int("attempts", p.cfg.Retries+1),
			zap.Error(err),
		)
		return
	}

	article := nntp.ParseHeaderBlock(block)
	article.Number = artnum
	if err := p.sink.WriteArticle(ctx, p.cfg.Group, article); err != nil {
		logger.Warn("article write failed",
			zap.Int64("artnum", artnum),
			zap.Error(err),
		)
		return
	}
	p.tracker.Incr()
}
