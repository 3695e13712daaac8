package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/example/nntp2sql/internal/errcode"
	"github.com/example/nntp2sql/internal/nntp"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE,
		article_count INTEGER,
		first INTEGER,
		last INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artnum INTEGER,
		subject TEXT,
		author TEXT,
		date TEXT,
		message_id TEXT,
		refs TEXT,
		bytes INTEGER,
		line_count INTEGER,
		group_name TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_group_artnum
		ON articles(group_name, artnum)`,
}

// SQLite is the file-backed backend.
type SQLite struct {
	db    *sql.DB
	stmts statements
}

// OpenSQLite opens (creating if absent) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errcode.New(errcode.DBConnect, fmt.Errorf("open sqlite %s: %w", path, err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errcode.New(errcode.DBConnect, fmt.Errorf("ping sqlite %s: %w", path, err))
	}
	// One connection: sqlite serializes writers anyway, and the sink lock
	// already serializes callers.
	db.SetMaxOpenConns(1)
	return NewSQLiteWithDB(db), nil
}

// NewSQLiteWithDB wraps an existing connection (primarily for testing with
// an in-memory database).
func NewSQLiteWithDB(db *sql.DB) *SQLite {
	return &SQLite{db: db, stmts: statements{ph: sq.Question}}
}

// Setup creates the tables and the unique (group_name, artnum) index.
func (b *SQLite) Setup(ctx context.Context) error {
	for _, ddl := range sqliteSchema {
		if _, err := b.db.ExecContext(ctx, ddl); err != nil {
			return errcode.New(errcode.DBSchema, fmt.Errorf("sqlite schema: %w", err))
		}
	}
	return nil
}

func (b *SQLite) UpdateGroup(ctx context.Context, g Group) (int64, error) {
	query, args, err := b.stmts.updateGroup(g)
	if err != nil {
		return 0, errcode.New(errcode.DBPrepare, err)
	}
	return b.exec(ctx, query, args)
}

func (b *SQLite) InsertGroup(ctx context.Context, g Group) error {
	query, args, err := b.stmts.insertGroup(g)
	if err != nil {
		return errcode.New(errcode.DBPrepare, err)
	}
	_, err = b.exec(ctx, query, args)
	return err
}

func (b *SQLite) UpdateArticle(ctx context.Context, group string, a nntp.Article) (int64, error) {
	query, args, err := b.stmts.updateArticle(group, a)
	if err != nil {
		return 0, errcode.New(errcode.DBPrepare, err)
	}
	return b.exec(ctx, query, args)
}

func (b *SQLite) InsertArticle(ctx context.Context, group string, a nntp.Article) error {
	query, args, err := b.stmts.insertArticle(group, a)
	if err != nil {
		return errcode.New(errcode.DBPrepare, err)
	}
	_, err = b.exec(ctx, query, args)
	return err
}

func (b *SQLite) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (b *SQLite) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
