package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/nntp2sql/internal/errcode"
	"github.com/example/nntp2sql/internal/nntp"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS groups (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE,
		article_count BIGINT,
		first BIGINT,
		last BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		artnum BIGINT,
		subject TEXT,
		author TEXT,
		date TEXT,
		message_id TEXT,
		refs TEXT,
		bytes BIGINT,
		line_count BIGINT,
		group_name TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_group_artnum
		ON articles(group_name, artnum)`,
}

type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres is the pgx-backed backend.
type Postgres struct {
	pool  pgxExecutor
	stmts statements
}

// OpenPostgres connects a pgx pool for the given DSN and verifies it with a
// ping.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errcode.New(errcode.DBConnect, fmt.Errorf("parse postgres dsn: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errcode.New(errcode.DBConnect, fmt.Errorf("connect postgres: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errcode.New(errcode.DBConnect, fmt.Errorf("ping postgres: %w", err))
	}
	return NewPostgresWithPool(pool), nil
}

// NewPostgresWithPool constructs a backend from an existing pool (primarily
// for testing).
func NewPostgresWithPool(pool pgxExecutor) *Postgres {
	return &Postgres{pool: pool, stmts: statements{ph: sq.Dollar}}
}

// Setup creates the tables and the unique (group_name, artnum) index.
func (b *Postgres) Setup(ctx context.Context) error {
	for _, ddl := range postgresSchema {
		if _, err := b.pool.Exec(ctx, ddl); err != nil {
			return errcode.New(errcode.DBSchema, fmt.Errorf("postgres schema: %w", err))
		}
	}
	return nil
}

func (b *Postgres) UpdateGroup(ctx context.Context, g Group) (int64, error) {
	query, args, err := b.stmts.updateGroup(g)
	if err != nil {
		return 0, errcode.New(errcode.DBPrepare, err)
	}
	return b.exec(ctx, query, args)
}

func (b *Postgres) InsertGroup(ctx context.Context, g Group) error {
	query, args, err := b.stmts.insertGroup(g)
	if err != nil {
		return errcode.New(errcode.DBPrepare, err)
	}
	_, err = b.exec(ctx, query, args)
	return err
}

func (b *Postgres) UpdateArticle(ctx context.Context, group string, a nntp.Article) (int64, error) {
	query, args, err := b.stmts.updateArticle(group, a)
	if err != nil {
		return 0, errcode.New(errcode.DBPrepare, err)
	}
	return b.exec(ctx, query, args)
}

func (b *Postgres) InsertArticle(ctx context.Context, group string, a nntp.Article) error {
	query, args, err := b.stmts.insertArticle(group, a)
	if err != nil {
		return errcode.New(errcode.DBPrepare, err)
	}
	_, err = b.exec(ctx, query, args)
	return err
}

func (b *Postgres) Close() error {
	b.pool.Close()
	return nil
}

func (b *Postgres) exec(ctx context.Context, query string, args []any) (int64, error) {
	tag, err := b.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return tag.RowsAffected(), nil
}
