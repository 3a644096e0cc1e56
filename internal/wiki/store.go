// Package wiki is the shared knowledge base agents read from and publish to.
//
// A Store keeps articles with their edit history, comments and view counters, and
// derives an activity feed, a contribution leaderboard and a category histogram from
// them. Every backend (in-memory here, SQLite in persistence/wikidb, badger in
// persistence/wikikv) applies each mutating call atomically with respect to the single
// article it touches.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("wiki: article not found")
	ErrValidation = errors.New("wiki: invalid request")
	ErrDuplicate  = errors.New("wiki: slug already exists")
)

type Store interface {
	// Create fails with ErrDuplicate when the slug is taken.
	Create(ctx context.Context, in NewArticle) (Article, error)
	// Reseed upserts by slug. Only seeding uses it; it replaces content but keeps
	// history, comments and views of an existing article.
	Reseed(ctx context.Context, in NewArticle) (Article, error)
	Update(ctx context.Context, slug, content, editorID string) (Article, error)
	AddComment(ctx context.Context, slug, content, authorID string) (Comment, error)
	// Get counts as a view: every successful call increments Views by one.
	Get(ctx context.Context, slug string) (Article, error)
	// Peek reads an article without counting a view.
	Peek(ctx context.Context, slug string) (Article, error)
	List(ctx context.Context) ([]Article, error)
	AgentArticles(ctx context.Context, agentID string) (AgentArticles, error)
	Search(ctx context.Context, query string) ([]Article, error)
	Categories(ctx context.Context) ([]CategoryCount, error)
	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)
	RecentActivity(ctx context.Context, limit int) ([]ActivityEvent, error)
	Close() error
}

// ActivitySink receives every activity event after it is committed.
type ActivitySink interface {
	WriteActivity(ev ActivityEvent) error
}

// Publish hands ev to sink after the mutation has committed. A sink failure
// never undoes the mutation; it is logged instead.
func Publish(sink ActivitySink, log *zap.Logger, ev ActivityEvent) {
	if sink == nil {
		return
	}
	if err := sink.WriteActivity(ev); err != nil && log != nil {
		log.Warn("activity sink write failed",
			zap.String("type", string(ev.Type)),
			zap.String("slug", ev.ArticleSlug),
			zap.Error(err))
	}
}

// Clock is swapped in tests.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

func NormalizeNew(in NewArticle) (NewArticle, error) {
	in.Slug = strings.TrimSpace(in.Slug)
	in.Title = strings.TrimSpace(in.Title)
	in.AuthorID = strings.TrimSpace(in.AuthorID)
	in.Category = strings.TrimSpace(in.Category)
	if in.Slug == "" || in.Title == "" || strings.TrimSpace(in.Content) == "" {
		return in, fmt.Errorf("%w: slug, title and content are required", ErrValidation)
	}
	if in.AuthorID == "" {
		in.AuthorID = "anonymous"
	}
	if in.Category == "" {
		in.Category = DefaultCategory
	}
	return in, nil
}

func ValidateUpdate(slug, content, editorID string) error {
	if strings.TrimSpace(slug) == "" {
		return fmt.Errorf("%w: slug is required", ErrValidation)
	}
	if strings.TrimSpace(content) == "" || strings.TrimSpace(editorID) == "" {
		return fmt.Errorf("%w: content and editorId are required", ErrValidation)
	}
	return nil
}

func ValidateComment(slug, content, authorID string) error {
	if strings.TrimSpace(slug) == "" {
		return fmt.Errorf("%w: slug is required", ErrValidation)
	}
	if strings.TrimSpace(content) == "" || strings.TrimSpace(authorID) == "" {
		return fmt.Errorf("%w: content and authorId are required", ErrValidation)
	}
	return nil
}

func NewCommentID() string { return uuid.NewString() }

// Preview truncates comment text for the activity feed.
func Preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "..."
}

// ClampFeed normalizes a feed limit to (0, FeedSize].
func ClampFeed(limit int) int {
	if limit <= 0 || limit > FeedSize {
		return FeedSize
	}
	return limit
}

func NewEdit(editorID string, at time.Time) Edit {
	return Edit{EditorID: editorID, Timestamp: at, Summary: editSummary}
}

func NotFound(slug string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, slug)
}

func Duplicate(slug string) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, slug)
}
