package wikidb

import (
	"context"
	"database/sql"
	"errors"

	"clawverse.ai/internal/wiki"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOne(ctx context.Context, q querier, slug string) (wiki.Article, error) {
	out, err := loadMany(ctx, q, `a.slug = ?`, slug)
	if err != nil {
		return wiki.Article{}, err
	}
	if len(out) == 0 {
		return wiki.Article{}, wiki.NotFound(slug)
	}
	return out[0], nil
}

// loadMany reads the articles matching where, newest first, with their history and
// comments. Each result set is drained before the next query because the pool holds
// a single connection.
func loadMany(ctx context.Context, q querier, where string, args ...any) ([]wiki.Article, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.slug, a.title, a.content, a.category, a.author_id, a.created_ms,
			COALESCE(a.last_editor_id, ''), a.last_edit_ms, a.views
		FROM articles a WHERE `+where+`
		ORDER BY a.created_ms DESC, a.slug ASC`, args...)
	if err != nil {
		return nil, err
	}
	out := []wiki.Article{}
	index := map[string]int{}
	for rows.Next() {
		var a wiki.Article
		var created int64
		var lastEdit sql.NullInt64
		if err := rows.Scan(&a.Slug, &a.Title, &a.Content, &a.Category, &a.AuthorID, &created,
			&a.LastEditorID, &lastEdit, &a.Views); err != nil {
			_ = rows.Close()
			return nil, err
		}
		a.CreatedAt = fromMS(created)
		if lastEdit.Valid {
			t := fromMS(lastEdit.Int64)
			a.LastEditAt = &t
		}
		a.History = []wiki.Edit{}
		a.Comments = []wiki.Comment{}
		index[a.Slug] = len(out)
		out = append(out, a)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	sub := `(SELECT a.slug FROM articles a WHERE ` + where + `)`
	rows, err = q.QueryContext(ctx,
		`SELECT slug, editor_id, ts_ms, summary FROM edits WHERE slug IN `+sub+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var slug string
		var e wiki.Edit
		var ts int64
		if err := rows.Scan(&slug, &e.EditorID, &ts, &e.Summary); err != nil {
			_ = rows.Close()
			return nil, err
		}
		e.Timestamp = fromMS(ts)
		if i, ok := index[slug]; ok {
			out[i].History = append(out[i].History, e)
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT slug, id, author_id, content, ts_ms FROM comments WHERE slug IN `+sub+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var slug string
		var c wiki.Comment
		var ts int64
		if err := rows.Scan(&slug, &c.ID, &c.AuthorID, &c.Content, &ts); err != nil {
			_ = rows.Close()
			return nil, err
		}
		c.Timestamp = fromMS(ts)
		if i, ok := index[slug]; ok {
			out[i].Comments = append(out[i].Comments, c)
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return out, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}
