package ingest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nntp2sql/internal/config"
	"github.com/example/nntp2sql/internal/errcode"
	"github.com/example/nntp2sql/internal/store"
)

// fakeNewsServer accepts any number of sessions and answers GROUP, XOVER,
// and HEAD for one newsgroup whose articles are numbered [first, last].
type fakeNewsServer struct {
	group string
	first int64
	last  int64
}

func (s *fakeNewsServer) listen(t *testing.T) (string, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})

	go func() {
		for {
			conn, aerr := ln.Accept()
			if aerr != nil {
				return
			}
			go s.serve(conn)
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func (s *fakeNewsServer) serve(conn net.Conn) {
	defer conn.Close()
	write := func(text string) bool {
		_, err := conn.Write([]byte(text + "\r\n"))
		return err == nil
	}
	if !write("200 fake news server ready") {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "GROUP "):
			name := strings.TrimPrefix(line, "GROUP ")
			if name != s.group {
				if !write("411 no such newsgroup") {
					return
				}
				continue
			}
			count := s.last - s.first + 1
			if !write(fmt.Sprintf("211 %d %d %d %s", count, s.first, s.last, s.group)) {
				return
			}
		case strings.HasPrefix(line, "XOVER "):
			if !write("224 overview follows") {
				return
			}
			var lo, hi int64
			if _, serr := fmt.Sscanf(strings.TrimPrefix(line, "XOVER "), "%d-%d", &lo, &hi); serr != nil {
				return
			}
			for n := lo; n <= hi; n++ {
				if !write(s.overviewLine(n)) {
					return
				}
			}
			if !write(".") {
				return
			}
		case strings.HasPrefix(line, "HEAD "):
			var n int64
			if _, serr := fmt.Sscanf(strings.TrimPrefix(line, "HEAD "), "%d", &n); serr != nil {
				return
			}
			if n < s.first || n > s.last {
				if !write("423 no such article number") {
					return
				}
				continue
			}
			if !write(fmt.Sprintf("221 %d <m%d@fake> head follows", n, n)) {
				return
			}
			if !write(fmt.Sprintf("Subject: article %d", n)) {
				return
			}
			if !write(fmt.Sprintf("From: poster%d@example.org", n)) {
				return
			}
			if !write(fmt.Sprintf("Message-ID: <m%d@fake>", n)) {
				return
			}
			if !write(".") {
				return
			}
		case line == "QUIT":
			_ = write("205 goodbye")
			return
		default:
			if !write("500 command not recognized") {
				return
			}
		}
	}
}

func (s *fakeNewsServer) overviewLine(n int64) string {
	return fmt.Sprintf("%d\tarticle %d\tposter%d@example.org\tSat, 01 Feb 2026 00:00:00 GMT\t<m%d@fake>\t\t100\t5",
		n, n, n, n)
}

func testConfig(host, port, group string) config.Config {
	cfg := config.Config{
		Server: config.ServerConfig{
			Host:               host,
			Port:               port,
			DialTimeoutSeconds: 2,
			IOTimeoutSeconds:   2,
		},
		Fetch: config.FetchConfig{
			Group:   group,
			Workers: 4,
			Retries: 1,
		},
		DB: config.DBConfig{Driver: "sqlite", DSN: ":memory:", Upsert: true},
	}
	return cfg
}

func TestRunHeadPipeline(t *testing.T) {
	t.Parallel()

	server := &fakeNewsServer{group: "alt.test", first: 1, last: 30}
	host, port := server.listen(t)

	backend := store.NewMemory()
	sink := store.NewSink(backend, true, nil)
	runner := NewRunner(testConfig(host, port, "alt.test"), sink, nil, nil)

	require.NoError(t, runner.Run(t.Context()))

	g, ok := backend.Group("alt.test")
	require.True(t, ok)
	assert.Equal(t, int64(30), g.Count)
	assert.Equal(t, int64(1), g.First)
	assert.Equal(t, int64(30), g.Last)

	articles := backend.Articles()
	require.Len(t, articles, 30)
	a := articles[store.ArticleKey{Group: "alt.test", Artnum: 17}]
	assert.Equal(t, "article 17", a.Subject)
	assert.Equal(t, "poster17@example.org", a.Author)
	assert.Equal(t, "<m17@fake>", a.MessageID)
}

func TestRunHeadersOnlyUsesXover(t *testing.T) {
	t.Parallel()

	server := &fakeNewsServer{group: "alt.test", first: 1, last: 50}
	host, port := server.listen(t)

	backend := store.NewMemory()
	sink := store.NewSink(backend, true, nil)
	cfg := testConfig(host, port, "alt.test")
	cfg.Fetch.HeadersOnly = true
	runner := NewRunner(cfg, sink, nil, nil)

	require.NoError(t, runner.Run(t.Context()))

	articles := backend.Articles()
	require.Len(t, articles, 50)
	a := articles[store.ArticleKey{Group: "alt.test", Artnum: 3}]
	assert.Equal(t, "article 3", a.Subject)
	assert.Equal(t, int64(100), a.Bytes)
	assert.Equal(t, int64(5), a.Lines)
}

// TestRunLimitNarrowsToNewest verifies the fetch window keeps the newest
// limit articles.
func TestRunLimitNarrowsToNewest(t *testing.T) {
	t.Parallel()

	server := &fakeNewsServer{group: "alt.test", first: 1, last: 50}
	host, port := server.listen(t)

	backend := store.NewMemory()
	sink := store.NewSink(backend, true, nil)
	cfg := testConfig(host, port, "alt.test")
	cfg.Fetch.HeadersOnly = true
	cfg.Fetch.Limit = 10
	runner := NewRunner(cfg, sink, nil, nil)

	require.NoError(t, runner.Run(t.Context()))

	articles := backend.Articles()
	require.Len(t, articles, 10)
	for n := int64(41); n <= 50; n++ {
		_, ok := articles[store.ArticleKey{Group: "alt.test", Artnum: n}]
		assert.True(t, ok, "article %d should be in the limited window", n)
	}
}

func TestRunUnknownGroupFails(t *testing.T) {
	t.Parallel()

	server := &fakeNewsServer{group: "alt.test", first: 1, last: 5}
	host, port := server.listen(t)

	sink := store.NewSink(store.NewMemory(), true, nil)
	runner := NewRunner(testConfig(host, port, "no.such.group"), sink, nil, nil)

	err := runner.Run(t.Context())
	require.Error(t, err)
	assert.Equal(t, int(errcode.Command), errcode.ExitCode(err))
}

func TestRunConnectFailureFails(t *testing.T) {
	t.Parallel()

	// A listener that is closed immediately leaves a port nobody answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	sink := store.NewSink(store.NewMemory(), true, nil)
	runner := NewRunner(testConfig(host, port, "alt.test"), sink, nil, nil)

	err = runner.Run(t.Context())
	require.Error(t, err)
}

func TestNarrowRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		first, last int64
		limit       int
		wantFirst   int64
		wantLast    int64
	}{
		{name: "no limit", first: 1, last: 100, limit: 0, wantFirst: 1, wantLast: 100},
		{name: "limit smaller than span", first: 1, last: 100, limit: 10, wantFirst: 91, wantLast: 100},
		{name: "limit equals span", first: 1, last: 10, limit: 10, wantFirst: 1, wantLast: 10},
		{name: "limit larger than span", first: 5, last: 8, limit: 100, wantFirst: 5, wantLast: 8},
		{name: "single article limit", first: 1, last: 100, limit: 1, wantFirst: 100, wantLast: 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			first, last := narrowRange(tc.first, tc.last, tc.limit)
			assert.Equal(t, tc.wantFirst, first)
			assert.Equal(t, tc.wantLast, last)
		})
	}
}

func TestRunEmptyGroupWritesGroupRowOnly(t *testing.T) {
	t.Parallel()

	server := &fakeNewsServer{group: "alt.empty", first: 1, last: 0}
	host, port := server.listen(t)

	backend := store.NewMemory()
	sink := store.NewSink(backend, true, nil)
	runner := NewRunner(testConfig(host, port, "alt.empty"), sink, nil, nil)

	require.NoError(t, runner.Run(t.Context()))

	_, ok := backend.Group("alt.empty")
	assert.True(t, ok)
	assert.Empty(t, backend.Articles())
}
