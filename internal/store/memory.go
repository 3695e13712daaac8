package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/nntp2sql/internal/nntp"
)

// ArticleKey is the natural key identifying an article row.
type ArticleKey struct {
	Group  string
	Artnum int64
}

// Memory is a map-backed Backend. It enforces the same (group, artnum)
// uniqueness invariant as the SQL backends and is used by pipeline and sink
// tests.
type Memory struct {
	mu       sync.Mutex
	groups   map[string]Group
	articles map[ArticleKey]nntp.Article
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		groups:   make(map[string]Group),
		articles: make(map[ArticleKey]nntp.Article),
	}
}

// Setup is a no-op; the maps are ready on construction.
func (m *Memory) Setup(context.Context) error {
	return nil
}

func (m *Memory) UpdateGroup(_ context.Context, g Group) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[g.Name]; !ok {
		return 0, nil
	}
	m.groups[g.Name] = g
	return 1, nil
}

func (m *Memory) InsertGroup(_ context.Context, g Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[g.Name]; ok {
		return fmt.Errorf("group %q violates unique constraint", g.Name)
	}
	m.groups[g.Name] = g
	return nil
}

func (m *Memory) UpdateArticle(_ context.Context, group string, a nntp.Article) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ArticleKey{Group: group, Artnum: a.Number}
	if _, ok := m.articles[key]; !ok {
		return 0, nil
	}
	m.articles[key] = a
	return 1, nil
}

func (m *Memory) InsertArticle(_ context.Context, group string, a nntp.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ArticleKey{Group: group, Artnum: a.Number}
	if _, ok := m.articles[key]; ok {
		return fmt.Errorf("article (%s, %d) violates unique constraint", group, a.Number)
	}
	m.articles[key] = a
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Group returns the stored group row, if present.
func (m *Memory) Group(name string) (Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[name]
	return g, ok
}

// Articles returns a snapshot of all stored article rows.
func (m *Memory) Articles() map[ArticleKey]nntp.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ArticleKey]nntp.Article, len(m.articles))
	for k, v := range m.articles {
		out[k] = v
	}
	return out
}
