package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/example/nntp2sql/internal/nntp"
)

// statements builds the four sink statements for a backend's placeholder
// format. Both SQL backends share the same table shapes, so only the
// placeholders differ.
type statements struct {
	ph sq.PlaceholderFormat
}

func (s statements) updateGroup(g Group) (string, []any, error) {
	return sq.Update("groups").
		Set("article_count", g.Count).
		Set("first", g.First).
		Set("last", g.Last).
		Where(sq.Eq{"name": g.Name}).
		PlaceholderFormat(s.ph).
		ToSql()
}

func (s statements) insertGroup(g Group) (string, []any, error) {
	return sq.Insert("groups").
		Columns("name", "article_count", "first", "last").
		Values(g.Name, g.Count, g.First, g.Last).
		PlaceholderFormat(s.ph).
		ToSql()
}

func (s statements) updateArticle(group string, a nntp.Article) (string, []any, error) {
	return sq.Update("articles").
		Set("subject", a.Subject).
		Set("author", a.Author).
		Set("date", a.Date).
		Set("message_id", a.MessageID).
		Set("refs", a.References).
		Set("bytes", a.Bytes).
		Set("line_count", a.Lines).
		Where(sq.Eq{"group_name": group, "artnum": a.Number}).
		PlaceholderFormat(s.ph).
		ToSql()
}

func (s statements) insertArticle(group string, a nntp.Article) (string, []any, error) {
	return sq.Insert("articles").
		Columns(
			"artnum", "subject", "author", "date",
			"message_id", "refs", "bytes", "line_count", "group_name",
		).
		Values(
			a.Number, a.Subject, a.Author, a.Date,
			a.MessageID, a.References, a.Bytes, a.Lines, group,
		).
		PlaceholderFormat(s.ph).
		ToSql()
}
