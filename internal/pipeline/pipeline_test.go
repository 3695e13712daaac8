package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nntp2sql/internal/nntp"
	"github.com/example/nntp2sql/internal/progress"
)

// stubFetcher serves HEAD blocks from a function, failing the first
// failuresPerItem attempts for every article number.
type stubFetcher struct {
	mu              sync.Mutex
	attempts        map[int64]int
	failuresPerItem int
	closed          atomic.Bool
}

func newStubFetcher(failuresPerItem int) *stubFetcher {
	return &stubFetcher{
		attempts:        make(map[int64]int),
		failuresPerItem: failuresPerItem,
	}
}

func (f *stubFetcher) Head(artnum int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[artnum]++
	if f.attempts[artnum] <= f.failuresPerItem {
		return "", errors.New("temporary server hiccup")
	}
	return fmt.Sprintf("Subject: article %d\nFrom: a@b", artnum), nil
}

func (f *stubFetcher) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *stubFetcher) attemptsFor(artnum int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[artnum]
}

// collectingWriter records written articles keyed by (group, artnum).
type collectingWriter struct {
	mu       sync.Mutex
	articles map[string]nntp.Article
	err      error
}

func newCollectingWriter() *collectingWriter {
	return &collectingWriter{articles: make(map[string]nntp.Article)}
}

func (w *collectingWriter) WriteArticle(_ context.Context, group string, a nntp.Article) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.articles[fmt.Sprintf("%s/%d", group, a.Number)] = a
	return nil
}

func (w *collectingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.articles)
}

func newTestTracker(total int64) *progress.Tracker {
	return progress.NewTracker(uuid.New(), "alt.test", total)
}

func TestPoolProcessesWholeRange(t *testing.T) {
	t.Parallel()

	const first, last = 101, 300
	fetchers := make([]*stubFetcher, 0, 8)
	var mu sync.Mutex
	factory := func(context.Context) (HeaderFetcher, error) {
		mu.Lock()
		defer mu.Unlock()
		f := newStubFetcher(0)
		fetchers = append(fetchers, f)
		return f, nil
	}

	writer := newCollectingWriter()
	tracker := newTestTracker(last - first + 1)
	pool := NewPool(
		Config{Group: "alt.test", Workers: 8, Retries: 0},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(t.Context(), first, last)

	assert.Equal(t, 200, writer.count())
	snap := tracker.Snapshot()
	assert.Equal(t, int64(200), snap.Processed)
	assert.True(t, snap.Done())

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(fetchers), 8)
	for _, f := range fetchers {
		assert.True(t, f.closed.Load(), "every worker session must be closed")
	}
}

// TestPoolRetriesWithinBudget verifies an item that fails fewer times than
// the budget allows still lands in the store.
func TestPoolRetriesWithinBudget(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(2)
	factory := func(context.Context) (HeaderFetcher, error) { return fetcher, nil }
	writer := newCollectingWriter()
	tracker := newTestTracker(1)

	pool := NewPool(
		Config{Group: "alt.test", Workers: 1, Retries: 2},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(t.Context(), 5, 5)

	assert.Equal(t, 1, writer.count())
	assert.Equal(t, 3, fetcher.attemptsFor(5), "two failures plus the success")
}

// TestPoolDropsExhaustedItems verifies an item is abandoned after
// retries+1 attempts and does not block the rest of the range.
func TestPoolDropsExhaustedItems(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher(100)
	factory := func(context.Context) (HeaderFetcher, error) { return fetcher, nil }
	writer := newCollectingWriter()
	tracker := newTestTracker(3)

	pool := NewPool(
		Config{Group: "alt.test", Workers: 1, Retries: 2},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(t.Context(), 1, 3)

	assert.Zero(t, writer.count())
	assert.Equal(t, int64(0), tracker.Snapshot().Processed)
	for n := int64(1); n <= 3; n++ {
		assert.Equal(t, 3, fetcher.attemptsFor(n))
	}
}

// TestPoolSurvivesFailedWorkers verifies workers whose session cannot be
// established exit quietly while the rest drain the queue.
func TestPoolSurvivesFailedWorkers(t *testing.T) {
	t.Parallel()

	var dials atomic.Int64
	factory := func(context.Context) (HeaderFetcher, error) {
		if dials.Add(1)%2 == 0 {
			return nil, errors.New("connection refused")
		}
		return newStubFetcher(0), nil
	}
	writer := newCollectingWriter()
	tracker := newTestTracker(50)

	pool := NewPool(
		Config{Group: "alt.test", Workers: 4, Retries: 0},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(t.Context(), 1, 50)

	assert.Equal(t, 50, writer.count())
}

func TestPoolAllWorkersFail(t *testing.T) {
	t.Parallel()

	factory := func(context.Context) (HeaderFetcher, error) {
		return nil, errors.New("connection refused")
	}
	writer := newCollectingWriter()
	tracker := newTestTracker(10)

	pool := NewPool(
		Config{Group: "alt.test", Workers: 4, Retries: 0},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(t.Context(), 1, 10)

	assert.Zero(t, writer.count())
	assert.Equal(t, int64(0), tracker.Snapshot().Processed)
}

// TestPoolWriteFailureSkipsProgress verifies a failed store write is not
// counted as processed.
func TestPoolWriteFailureSkipsProgress(t *testing.T) {
	t.Parallel()

	factory := func(context.Context) (HeaderFetcher, error) {
		return newStubFetcher(0), nil
	}
	writer := newCollectingWriter()
	writer.err = errors.New("constraint violation")
	tracker := newTestTracker(5)

	pool := NewPool(
		Config{Group: "alt.test", Workers: 2, Retries: 0},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(t.Context(), 1, 5)

	assert.Equal(t, int64(0), tracker.Snapshot().Processed)
}

func TestPoolCancelledContextStopsEarly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	factory := func(context.Context) (HeaderFetcher, error) {
		return newStubFetcher(0), nil
	}
	writer := newCollectingWriter()
	tracker := newTestTracker(1000)

	pool := NewPool(
		Config{Group: "alt.test", Workers: 2, Retries: 0},
		factory,
		writer,
		tracker,
		nil,
	)
	pool.Run(ctx, 1, 1000)

	require.Zero(t, writer.count())
}
