package wiki

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore keeps everything in process memory. One mutex guards all records, so
// each call is atomic and readers see either the state before or after a mutation.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]*Article
	activity []ActivityEvent // newest last, capped at FeedSize

	now  Clock
	sink ActivitySink
	log  *zap.Logger
}

type MemoryOption func(*MemoryStore)

func WithClock(c Clock) MemoryOption { return func(s *MemoryStore) { s.now = c } }

func WithActivitySink(sink ActivitySink) MemoryOption {
	return func(s *MemoryStore) { s.sink = sink }
}

func WithLogger(log *zap.Logger) MemoryOption {
	return func(s *MemoryStore) { s.log = log }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		articles: map[string]*Article{},
		now:      SystemClock,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, in NewArticle) (Article, error) {
	in, err := NormalizeNew(in)
	if err != nil {
		return Article{}, err
	}
	s.mu.Lock()
	if _, ok := s.articles[in.Slug]; ok {
		s.mu.Unlock()
		return Article{}, Duplicate(in.Slug)
	}
	a := s.insertLocked(in)
	ev := s.logLocked(ActivityEvent{Type: ActivityCreate, AgentID: a.AuthorID, ArticleSlug: a.Slug, ArticleTitle: a.Title})
	out := a.Clone()
	s.mu.Unlock()

	s.emit(ev)
	return out, nil
}

func (s *MemoryStore) Reseed(_ context.Context, in NewArticle) (Article, error) {
	in, err := NormalizeNew(in)
	if err != nil {
		return Article{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.articles[in.Slug]; ok {
		a.Title = in.Title
		a.Content = in.Content
		a.Category = in.Category
		a.AuthorID = in.AuthorID
		return a.Clone(), nil
	}
	return s.insertLocked(in).Clone(), nil
}

func (s *MemoryStore) insertLocked(in NewArticle) *Article {
	a := &Article{
		Slug:      in.Slug,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		AuthorID:  in.AuthorID,
		CreatedAt: s.now(),
		History:   []Edit{},
		Comments:  []Comment{},
	}
	s.articles[a.Slug] = a
	return a
}

func (s *MemoryStore) Update(_ context.Context, slug, content, editorID string) (Article, error) {
	if err := ValidateUpdate(slug, content, editorID); err != nil {
		return Article{}, err
	}
	s.mu.Lock()
	a, ok := s.articles[slug]
	if !ok {
		s.mu.Unlock()
		return Article{}, NotFound(slug)
	}
	at := s.now()
	a.Content = content
	a.LastEditorID = editorID
	a.LastEditAt = &at
	a.History = append(a.History, NewEdit(editorID, at))
	ev := s.logLocked(ActivityEvent{Type: ActivityEdit, AgentID: editorID, ArticleSlug: a.Slug, ArticleTitle: a.Title})
	out := a.Clone()
	s.mu.Unlock()

	s.emit(ev)
	return out, nil
}

func (s *MemoryStore) AddComment(_ context.Context, slug, content, authorID string) (Comment, error) {
	if err := ValidateComment(slug, content, authorID); err != nil {
		return Comment{}, err
	}
	s.mu.Lock()
	a, ok := s.articles[slug]
	if !ok {
		s.mu.Unlock()
		return Comment{}, NotFound(slug)
	}
	c := Comment{ID: NewCommentID(), AuthorID: authorID, Content: content, Timestamp: s.now()}
	a.Comments = append(a.Comments, c)
	ev := s.logLocked(ActivityEvent{Type: ActivityComment, AgentID: authorID, ArticleSlug: a.Slug, ArticleTitle: a.Title, Details: Preview(content)})
	s.mu.Unlock()

	s.emit(ev)
	return c, nil
}

func (s *MemoryStore) Get(_ context.Context, slug string) (Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[slug]
	if !ok {
		return Article{}, NotFound(slug)
	}
	a.Views++
	return a.Clone(), nil
}

func (s *MemoryStore) Peek(_ context.Context, slug string) (Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[slug]
	if !ok {
		return Article{}, NotFound(slug)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Article, error) {
	return s.all(), nil
}

func (s *MemoryStore) AgentArticles(_ context.Context, agentID string) (AgentArticles, error) {
	return SplitByAgent(s.all(), agentID), nil
}

func (s *MemoryStore) Search(_ context.Context, query string) ([]Article, error) {
	return Filter(s.all(), query), nil
}

func (s *MemoryStore) Categories(_ context.Context) ([]CategoryCount, error) {
	return CountCategories(s.all()), nil
}

func (s *MemoryStore) Leaderboard(_ context.Context) ([]LeaderboardEntry, error) {
	return RankScores(Scores(s.all())), nil
}

func (s *MemoryStore) RecentActivity(_ context.Context, limit int) ([]ActivityEvent, error) {
	limit = ClampFeed(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActivityEvent, 0, limit)
	for i := len(s.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) all() []Article {
	s.mu.RLock()
	out := make([]Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()
	SortNewestFirst(out)
	return out
}

func (s *MemoryStore) logLocked(ev ActivityEvent) ActivityEvent {
	ev.Timestamp = s.now()
	s.activity = append(s.activity, ev)
	if n := len(s.activity); n > FeedSize {
		s.activity = append(s.activity[:0], s.activity[n-FeedSize:]...)
	}
	return ev
}

func (s *MemoryStore) emit(ev ActivityEvent) { Publish(s.sink, s.log, ev) }

var _ Store = (*MemoryStore)(nil)
