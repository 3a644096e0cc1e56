// Package wikidb stores the knowledge base in a single SQLite file.
package wikidb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"clawverse.ai/internal/wiki"
)

type Store struct {
	db   *sql.DB
	now  wiki.Clock
	sink wiki.ActivitySink
	log  *zap.Logger
}

type Option func(*Store)

func WithClock(c wiki.Clock) Option { return func(s *Store) { s.now = c } }

func WithActivitySink(sink wiki.ActivitySink) Option {
	return func(s *Store) { s.sink = sink }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log.Named("wikidb")
		}
	}
}

// Open opens (or creates) the database at path. ":memory:" is accepted for tests.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, now: wiki.SystemClock}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			slug TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'Uncategorized',
			author_id TEXT NOT NULL,
			created_ms INTEGER NOT NULL,
			last_editor_id TEXT,
			last_edit_ms INTEGER,
			views INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL,
			editor_id TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			summary TEXT NOT NULL,
			FOREIGN KEY (slug) REFERENCES articles(slug) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_slug ON edits(slug, id);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_editor ON edits(editor_id);`,
		`CREATE TABLE IF NOT EXISTS comments (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			slug TEXT NOT NULL,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			FOREIGN KEY (slug) REFERENCES articles(slug) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_slug ON comments(slug, seq);`,
		`CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			article_slug TEXT NOT NULL,
			article_title TEXT NOT NULL,
			details TEXT
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, in wiki.NewArticle) (wiki.Article, error) {
	in, err := wiki.NormalizeNew(in)
	if err != nil {
		return wiki.Article{}, err
	}
	var ev wiki.ActivityEvent
	var out wiki.Article
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE slug = ?`, in.Slug).Scan(&exists)
		if err == nil {
			return wiki.Duplicate(in.Slug)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO articles(slug, title, content, category, author_id, created_ms, views) VALUES (?, ?, ?, ?, ?, ?, 0)`,
			in.Slug, in.Title, in.Content, in.Category, in.AuthorID, now.UnixMilli()); err != nil {
			return err
		}
		ev, err = s.logTx(ctx, tx, wiki.ActivityEvent{Type: wiki.ActivityCreate, AgentID: in.AuthorID, ArticleSlug: in.Slug, ArticleTitle: in.Title})
		if err != nil {
			return err
		}
		out, err = loadOne(ctx, tx, in.Slug)
		return err
	})
	if err != nil {
		return wiki.Article{}, err
	}
	s.emit(ev)
	return out, nil
}

func (s *Store) Reseed(ctx context.Context, in wiki.NewArticle) (wiki.Article, error) {
	in, err := wiki.NormalizeNew(in)
	if err != nil {
		return wiki.Article{}, err
	}
	var out wiki.Article
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO articles(slug, title, content, category, author_id, created_ms, views) VALUES (?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT(slug) DO UPDATE SET title = excluded.title, content = excluded.content,
				category = excluded.category, author_id = excluded.author_id`,
			in.Slug, in.Title, in.Content, in.Category, in.AuthorID, s.now().UnixMilli()); err != nil {
			return err
		}
		var err error
		out, err = loadOne(ctx, tx, in.Slug)
		return err
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, slug, content, editorID string) (wiki.Article, error) {
	if err := wiki.ValidateUpdate(slug, content, editorID); err != nil {
		return wiki.Article{}, err
	}
	var ev wiki.ActivityEvent
	var out wiki.Article
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		res, err := tx.ExecContext(ctx,
			`UPDATE articles SET content = ?, last_editor_id = ?, last_edit_ms = ? WHERE slug = ?`,
			content, editorID, now.UnixMilli(), slug)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return wiki.NotFound(slug)
		}
		edit := wiki.NewEdit(editorID, now)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edits(slug, editor_id, ts_ms, summary) VALUES (?, ?, ?, ?)`,
			slug, edit.EditorID, edit.Timestamp.UnixMilli(), edit.Summary); err != nil {
			return err
		}
		out, err = loadOne(ctx, tx, slug)
		if err != nil {
			return err
		}
		ev, err = s.logTx(ctx, tx, wiki.ActivityEvent{Type: wiki.ActivityEdit, AgentID: editorID, ArticleSlug: slug, ArticleTitle: out.Title})
		return err
	})
	if err != nil {
		return wiki.Article{}, err
	}
	s.emit(ev)
	return out, nil
}

func (s *Store) AddComment(ctx context.Context, slug, content, authorID string) (wiki.Comment, error) {
	if err := wiki.ValidateComment(slug, content, authorID); err != nil {
		return wiki.Comment{}, err
	}
	var ev wiki.ActivityEvent
	c := wiki.Comment{ID: wiki.NewCommentID(), AuthorID: authorID, Content: content}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var title string
		err := tx.QueryRowContext(ctx, `SELECT title FROM articles WHERE slug = ?`, slug).Scan(&title)
		if errors.Is(err, sql.ErrNoRows) {
			return wiki.NotFound(slug)
		}
		if err != nil {
			return err
		}
		c.Timestamp = s.now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments(id, slug, author_id, content, ts_ms) VALUES (?, ?, ?, ?, ?)`,
			c.ID, slug, c.AuthorID, c.Content, c.Timestamp.UnixMilli()); err != nil {
			return err
		}
		ev, err = s.logTx(ctx, tx, wiki.ActivityEvent{Type: wiki.ActivityComment, AgentID: authorID, ArticleSlug: slug, ArticleTitle: title, Details: wiki.Preview(content)})
		return err
	})
	if err != nil {
		return wiki.Comment{}, err
	}
	s.emit(ev)
	return c, nil
}

func (s *Store) Get(ctx context.Context, slug string) (wiki.Article, error) {
	var out wiki.Article
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE articles SET views = views + 1 WHERE slug = ?`, slug)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return wiki.NotFound(slug)
		}
		out, err = loadOne(ctx, tx, slug)
		return err
	})
	return out, err
}

func (s *Store) Peek(ctx context.Context, slug string) (wiki.Article, error) {
	return loadOne(ctx, s.db, slug)
}

func (s *Store) List(ctx context.Context) ([]wiki.Article, error) {
	return loadMany(ctx, s.db, `1 = 1`)
}

func (s *Store) AgentArticles(ctx context.Context, agentID string) (wiki.AgentArticles, error) {
	created, err := loadMany(ctx, s.db, `a.author_id = ?`, agentID)
	if err != nil {
		return wiki.AgentArticles{}, err
	}
	edited, err := loadMany(ctx, s.db, `a.slug IN (SELECT DISTINCT slug FROM edits WHERE editor_id = ?)`, agentID)
	if err != nil {
		return wiki.AgentArticles{}, err
	}
	return wiki.AgentArticles{Created: created, Edited: edited}, nil
}

// Search matches in Go rather than with SQLite's lower(), which folds ASCII only.
func (s *Store) Search(ctx context.Context, query string) ([]wiki.Article, error) {
	all, err := loadMany(ctx, s.db, `1 = 1`)
	if err != nil {
		return nil, err
	}
	return wiki.Filter(all, query), nil
}

func (s *Store) Categories(ctx context.Context) ([]wiki.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM articles GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []wiki.CategoryCount{}
	for rows.Next() {
		var c wiki.CategoryCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	wiki.SortCategories(out)
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]wiki.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT who, SUM(points) FROM (
			SELECT author_id AS who, 1.0 AS points FROM articles
			UNION ALL
			SELECT editor_id AS who, 0.5 AS points FROM edits
		) GROUP BY who`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scores := map[string]float64{}
	for rows.Next() {
		var who string
		var pts float64
		if err := rows.Scan(&who, &pts); err != nil {
			return nil, err
		}
		scores[who] = pts
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return wiki.RankScores(scores), nil
}

func (s *Store) RecentActivity(ctx context.Context, limit int) ([]wiki.ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, ts_ms, agent_id, article_slug, article_title, COALESCE(details, '') FROM activity_log ORDER BY id DESC LIMIT ?`,
		wiki.ClampFeed(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []wiki.ActivityEvent{}
	for rows.Next() {
		var ev wiki.ActivityEvent
		var typ string
		var ts int64
		if err := rows.Scan(&typ, &ts, &ev.AgentID, &ev.ArticleSlug, &ev.ArticleTitle, &ev.Details); err != nil {
			return nil, err
		}
		ev.Type = wiki.ActivityType(typ)
		ev.Timestamp = fromMS(ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) logTx(ctx context.Context, tx *sql.Tx, ev wiki.ActivityEvent) (wiki.ActivityEvent, error) {
	ev.Timestamp = s.now()
	var details any
	if ev.Details != "" {
		details = ev.Details
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activity_log(type, ts_ms, agent_id, article_slug, article_title, details) VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.Timestamp.UnixMilli(), ev.AgentID, ev.ArticleSlug, ev.ArticleTitle, details)
	return ev, err
}

func (s *Store) emit(ev wiki.ActivityEvent) { wiki.Publish(s.sink, s.log, ev) }

func fromMS(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

var _ wiki.Store = (*Store)(nil)
