// Package wikikv stores the knowledge base in BadgerDB, one msgpack record per
// article plus a bounded activity log.
package wikikv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"clawverse.ai/internal/wiki"
)

var (
	articlePrefix  = []byte("article/")
	activityPrefix = []byte("activity/")
)

type Options struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *zap.Logger
	Clock    wiki.Clock
	Sink     wiki.ActivitySink
}

type Store struct {
	db   *badger.DB
	now  wiki.Clock
	sink wiki.ActivitySink
	log  *zap.Logger

	// mu serializes writers so read-modify-write transactions never conflict.
	mu     sync.Mutex
	nextID uint64
}

func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("wikikv: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dbOpts = dbOpts.WithLogger(zapLogger{log.Sugar().Named("badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: opts.Clock, sink: opts.Sink, log: log.Named("wikikv")}
	if s.now == nil {
		s.now = wiki.SystemClock
	}
	if err := s.loadNextID(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadNextID() error {
	return s.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Reverse = true
		o.PrefetchValues = false
		o.Prefix = activityPrefix
		it := txn.NewIterator(o)
		defer it.Close()
		it.Seek(activityKey(^uint64(0)))
		if it.ValidForPrefix(activityPrefix) {
			key := it.Item().Key()
			s.nextID = binary.BigEndian.Uint64(key[len(activityPrefix):]) + 1
		}
		return nil
	})
}

func articleKey(slug string) []byte {
	return append(append([]byte{}, articlePrefix...), slug...)
}

// activityKey encodes the sequence big-endian so keys sort by insertion order.
func activityKey(id uint64) []byte {
	k := make([]byte, len(activityPrefix)+8)
	copy(k, activityPrefix)
	binary.BigEndian.PutUint64(k[len(activityPrefix):], id)
	return k
}

func getArticle(txn *badger.Txn, slug string) (wiki.Article, error) {
	item, err := txn.Get(articleKey(slug))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return wiki.Article{}, wiki.NotFound(slug)
	}
	if err != nil {
		return wiki.Article{}, err
	}
	var a wiki.Article
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &a)
	})
	if err != nil {
		return wiki.Article{}, fmt.Errorf("decode %q: %w", slug, err)
	}
	return a.Clone(), nil
}

func putArticle(txn *badger.Txn, a wiki.Article) error {
	raw, err := msgpack.Marshal(&a)
	if err != nil {
		return err
	}
	return txn.Set(articleKey(a.Slug), raw)
}

// appendActivity writes ev and drops entries older than the newest wiki.FeedSize.
// Callers hold s.mu.
func (s *Store) appendActivity(txn *badger.Txn, ev wiki.ActivityEvent) (wiki.ActivityEvent, error) {
	ev.Timestamp = s.now()
	raw, err := msgpack.Marshal(&ev)
	if err != nil {
		return ev, err
	}
	id := s.nextID
	if err := txn.Set(activityKey(id), raw); err != nil {
		return ev, err
	}
	if id >= wiki.FeedSize {
		if err := txn.Delete(activityKey(id - wiki.FeedSize)); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// mutate runs fn in a write transaction and advances the activity sequence when
// fn logged an event.
func (s *Store) mutate(fn func(txn *badger.Txn) (*wiki.ActivityEvent, error)) error {
	s.mu.Lock()
	var ev *wiki.ActivityEvent
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		ev, err = fn(txn)
		return err
	})
	if err == nil && ev != nil {
		s.nextID++
	}
	s.mu.Unlock()
	if err == nil && ev != nil {
		wiki.Publish(s.sink, s.log, *ev)
	}
	return err
}

func (s *Store) Create(_ context.Context, in wiki.NewArticle) (wiki.Article, error) {
	in, err := wiki.NormalizeNew(in)
	if err != nil {
		return wiki.Article{}, err
	}
	var out wiki.Article
	err = s.mutate(func(txn *badger.Txn) (*wiki.ActivityEvent, error) {
		if _, err := getArticle(txn, in.Slug); err == nil {
			return nil, wiki.Duplicate(in.Slug)
		} else if !errors.Is(err, wiki.ErrNotFound) {
			return nil, err
		}
		out = s.fresh(in)
		if err := putArticle(txn, out); err != nil {
			return nil, err
		}
		ev, err := s.appendActivity(txn, wiki.ActivityEvent{Type: wiki.ActivityCreate, AgentID: out.AuthorID, ArticleSlug: out.Slug, ArticleTitle: out.Title})
		return &ev, err
	})
	return out, err
}

func (s *Store) Reseed(_ context.Context, in wiki.NewArticle) (wiki.Article, error) {
	in, err := wiki.NormalizeNew(in)
	if err != nil {
		return wiki.Article{}, err
	}
	var out wiki.Article
	err = s.mutate(func(txn *badger.Txn) (*wiki.ActivityEvent, error) {
		a, err := getArticle(txn, in.Slug)
		switch {
		case errors.Is(err, wiki.ErrNotFound):
			a = s.fresh(in)
		case err != nil:
			return nil, err
		default:
			a.Title = in.Title
			a.Content = in.Content
			a.Category = in.Category
			a.AuthorID = in.AuthorID
		}
		out = a
		return nil, putArticle(txn, a)
	})
	return out, err
}

func (s *Store) fresh(in wiki.NewArticle) wiki.Article {
	return wiki.Article{
		Slug:      in.Slug,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		AuthorID:  in.AuthorID,
		CreatedAt: s.now(),
		History:   []wiki.Edit{},
		Comments:  []wiki.Comment{},
	}
}

func (s *Store) Update(_ context.Context, slug, content, editorID string) (wiki.Article, error) {
	if err := wiki.ValidateUpdate(slug, content, editorID); err != nil {
		return wiki.Article{}, err
	}
	var out wiki.Article
	err := s.mutate(func(txn *badger.Txn) (*wiki.ActivityEvent, error) {
		a, err := getArticle(txn, slug)
		if err != nil {
			return nil, err
		}
		at := s.now()
		a.Content = content
		a.LastEditorID = editorID
		a.LastEditAt = &at
		a.History = append(a.History, wiki.NewEdit(editorID, at))
		if err := putArticle(txn, a); err != nil {
			return nil, err
		}
		out = a
		ev, err := s.appendActivity(txn, wiki.ActivityEvent{Type: wiki.ActivityEdit, AgentID: editorID, ArticleSlug: slug, ArticleTitle: a.Title})
		return &ev, err
	})
	return out, err
}

func (s *Store) AddComment(_ context.Context, slug, content, authorID string) (wiki.Comment, error) {
	if err := wiki.ValidateComment(slug, content, authorID); err != nil {
		return wiki.Comment{}, err
	}
	var c wiki.Comment
	err := s.mutate(func(txn *badger.Txn) (*wiki.ActivityEvent, error) {
		a, err := getArticle(txn, slug)
		if err != nil {
			return nil, err
		}
		c = wiki.Comment{ID: wiki.NewCommentID(), AuthorID: authorID, Content: content, Timestamp: s.now()}
		a.Comments = append(a.Comments, c)
		if err := putArticle(txn, a); err != nil {
			return nil, err
		}
		ev, err := s.appendActivity(txn, wiki.ActivityEvent{Type: wiki.ActivityComment, AgentID: authorID, ArticleSlug: slug, ArticleTitle: a.Title, Details: wiki.Preview(content)})
		return &ev, err
	})
	return c, err
}

func (s *Store) Get(_ context.Context, slug string) (wiki.Article, error) {
	var out wiki.Article
	err := s.mutate(func(txn *badger.Txn) (*wiki.ActivityEvent, error) {
		a, err := getArticle(txn, slug)
		if err != nil {
			return nil, err
		}
		a.Views++
		out = a
		return nil, putArticle(txn, a)
	})
	return out, err
}

func (s *Store) Peek(_ context.Context, slug string) (wiki.Article, error) {
	var out wiki.Article
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = getArticle(txn, slug)
		return err
	})
	return out, err
}

func (s *Store) List(_ context.Context) ([]wiki.Article, error) { return s.all() }

func (s *Store) AgentArticles(_ context.Context, agentID string) (wiki.AgentArticles, error) {
	all, err := s.all()
	if err != nil {
		return wiki.AgentArticles{}, err
	}
	return wiki.SplitByAgent(all, agentID), nil
}

func (s *Store) Search(_ context.Context, query string) ([]wiki.Article, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	return wiki.Filter(all, query), nil
}

func (s *Store) Categories(_ context.Context) ([]wiki.CategoryCount, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	return wiki.CountCategories(all), nil
}

func (s *Store) Leaderboard(_ context.Context) ([]wiki.LeaderboardEntry, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	return wiki.RankScores(wiki.Scores(all)), nil
}

func (s *Store) RecentActivity(_ context.Context, limit int) ([]wiki.ActivityEvent, error) {
	limit = wiki.ClampFeed(limit)
	out := make([]wiki.ActivityEvent, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Reverse = true
		o.Prefix = activityPrefix
		it := txn.NewIterator(o)
		defer it.Close()
		for it.Seek(activityKey(^uint64(0))); it.ValidForPrefix(activityPrefix) && len(out) < limit; it.Next() {
			var ev wiki.ActivityEvent
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &ev)
			}); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func (s *Store) all() ([]wiki.Article, error) {
	out := []wiki.Article{}
	err := s.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Prefix = articlePrefix
		it := txn.NewIterator(o)
		defer it.Close()
		for it.Seek(articlePrefix); it.ValidForPrefix(articlePrefix); it.Next() {
			var a wiki.Article
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &a)
			}); err != nil {
				return err
			}
			out = append(out, a.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	wiki.SortNewestFirst(out)
	return out, nil
}

type zapLogger struct{ l *zap.SugaredLogger }

func (z zapLogger) Errorf(f string, v ...interface{})   { z.l.Errorf(f, v...) }
func (z zapLogger) Warningf(f string, v ...interface{}) { z.l.Warnf(f, v...) }
func (z zapLogger) Infof(f string, v ...interface{})    { z.l.Debugf(f, v...) }
func (z zapLogger) Debugf(string, ...interface{})       {}

var _ wiki.Store = (*Store)(nil)
