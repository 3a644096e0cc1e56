// Package storetest is the behavioural suite every wiki.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"clawverse.ai/internal/wiki"
)

// Factory opens a fresh, empty store that reads time from clock.
type Factory func(t *testing.T, clock wiki.Clock) wiki.Store

// BrokenSink rejects every activity event.
type BrokenSink struct{}

func (BrokenSink) WriteActivity(wiki.ActivityEvent) error { return errors.New("archive disk full") }

// ObservedLogger returns a logger whose entries are captured in logs.
func ObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

// RunSinkFailure checks a store opened with BrokenSink and a logger from
// ObservedLogger: mutations still commit and every lost event is logged.
func RunSinkFailure(t *testing.T, s wiki.Store, logs *observer.ObservedLogs) {
	t.Helper()
	ctx := context.Background()
	mustCreate(t, s, "a", "T", "C", "u1", "")
	_, err := s.Update(ctx, "a", "C2", "u2")
	require.NoError(t, err)

	a, err := s.Peek(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "C2", a.Content)

	lost := logs.FilterMessage("activity sink write failed").All()
	require.Len(t, lost, 2)
	assert.Equal(t, "a", lost[0].ContextMap()["slug"])
	assert.Equal(t, "edit", lost[1].ContextMap()["type"])
}

// StepClock returns a clock that advances one second per call.
func StepClock() wiki.Clock {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func Run(t *testing.T, open Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s wiki.Store)
	}{
		{"CreateThenGetCountsViews", testCreateThenGet},
		{"CreateRejectsDuplicate", testCreateDuplicate},
		{"CreateValidates", testCreateValidation},
		{"UpdateAppendsHistory", testUpdate},
		{"UpdateMissingMutatesNothing", testUpdateMissing},
		{"AddComment", testAddComment},
		{"AgentArticles", testAgentArticles},
		{"Search", testSearch},
		{"Categories", testCategories},
		{"Leaderboard", testLeaderboard},
		{"RecentActivity", testRecentActivity},
		{"ReseedKeepsHistory", testReseed},
		{"ConcurrentMutations", testConcurrent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t, StepClock())
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func mustCreate(t *testing.T, s wiki.Store, slug, title, content, author, category string) wiki.Article {
	t.Helper()
	a, err := s.Create(context.Background(), wiki.NewArticle{Slug: slug, Title: title, Content: content, AuthorID: author, Category: category})
	require.NoError(t, err)
	return a
}

func testCreateThenGet(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	created := mustCreate(t, s, "a", "T", "C", "u1", "")
	assert.Equal(t, int64(0), created.Views)
	assert.Equal(t, wiki.DefaultCategory, created.Category)
	assert.Empty(t, created.History)
	assert.Empty(t, created.Comments)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "C", got.Content)
	assert.Equal(t, int64(1), got.Views)

	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Views)

	peek, err := s.Peek(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), peek.Views)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, wiki.ErrNotFound)
}

func testCreateDuplicate(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "a", "T", "C", "u1", "X")
	_, err := s.Update(ctx, "a", "C2", "u2")
	require.NoError(t, err)

	_, err = s.Create(ctx, wiki.NewArticle{Slug: "a", Title: "T2", Content: "other", AuthorID: "u3"})
	assert.ErrorIs(t, err, wiki.ErrDuplicate)

	a, err := s.Peek(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "C2", a.Content)
	assert.Len(t, a.History, 1)
	assert.Equal(t, "u1", a.AuthorID)
}

func testCreateValidation(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	for _, in := range []wiki.NewArticle{
		{Title: "T", Content: "C"},
		{Slug: "a", Content: "C"},
		{Slug: "a", Title: "T"},
	} {
		_, err := s.Create(ctx, in)
		assert.ErrorIs(t, err, wiki.ErrValidation)
	}
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	a := mustCreate(t, s, "anon", "T", "C", "", "")
	assert.Equal(t, "anonymous", a.AuthorID)
}

func testUpdate(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "a", "T", "C", "u1", "")

	up, err := s.Update(ctx, "a", "C2", "u2")
	require.NoError(t, err)
	assert.Equal(t, "C2", up.Content)
	require.Len(t, up.History, 1)
	assert.Equal(t, "u2", up.History[0].EditorID)
	assert.Equal(t, "u2", up.LastEditorID)
	require.NotNil(t, up.LastEditAt)

	// Self edits are allowed.
	up, err = s.Update(ctx, "a", "C3", "u1")
	require.NoError(t, err)
	assert.Len(t, up.History, 2)

	_, err = s.Update(ctx, "a", "", "u2")
	assert.ErrorIs(t, err, wiki.ErrValidation)
	_, err = s.Update(ctx, "a", "C4", "")
	assert.ErrorIs(t, err, wiki.ErrValidation)
}

func testUpdateMissing(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "a", "T", "C", "u1", "")
	before, err := s.RecentActivity(ctx, 0)
	require.NoError(t, err)

	_, err = s.Update(ctx, "missing", "C2", "u2")
	assert.ErrorIs(t, err, wiki.ErrNotFound)

	after, err := s.RecentActivity(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].History)
}

func testAddComment(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "a", "Title A", "C", "u1", "")

	long := ""
	for i := 0; i < 30; i++ {
		long += "word "
	}
	c1, err := s.AddComment(ctx, "a", long, "u2")
	require.NoError(t, err)
	c2, err := s.AddComment(ctx, "a", "second", "u3")
	require.NoError(t, err)
	assert.NotEmpty(t, c1.ID)
	assert.NotEqual(t, c1.ID, c2.ID)

	a, err := s.Peek(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a.Comments, 2)
	assert.Equal(t, "u2", a.Comments[0].AuthorID)
	assert.Equal(t, "second", a.Comments[1].Content)

	_, err = s.AddComment(ctx, "missing", "x", "u2")
	assert.ErrorIs(t, err, wiki.ErrNotFound)
	_, err = s.AddComment(ctx, "a", " ", "u2")
	assert.ErrorIs(t, err, wiki.ErrValidation)

	feed, err := s.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, feed)
	assert.Equal(t, wiki.ActivityComment, feed[0].Type)
	assert.Equal(t, "second", feed[0].Details)
	assert.Equal(t, wiki.ActivityComment, feed[1].Type)
	assert.Equal(t, wiki.Preview(long), feed[1].Details)
	assert.Less(t, len([]rune(feed[1].Details)), len([]rune(long)))
	assert.Equal(t, "Title A", feed[1].ArticleTitle)
}

func testAgentArticles(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "a", "A", "C", "u1", "")
	mustCreate(t, s, "b", "B", "C", "u2", "")
	_, err := s.Update(ctx, "b", "C2", "u1")
	require.NoError(t, err)
	_, err = s.Update(ctx, "a", "C2", "u1")
	require.NoError(t, err)

	res, err := s.AgentArticles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "a", res.Created[0].Slug)
	assert.ElementsMatch(t, []string{"a", "b"}, slugs(res.Edited))

	res, err = s.AgentArticles(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Edited)
}

func testSearch(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "gpu", "The Silicon Heart: GPU", "thousands of cores", "u1", "Hardware")
	mustCreate(t, s, "eliza", "The First Mother", "In 1966, she spoke", "u1", "History")
	mustCreate(t, s, "tcp", "Handshake", "SYN -> ACK", "u2", "Infrastructure")
	mustCreate(t, s, "zurich", "Über Zürich", "Altstadt walk", "u2", "Travel")

	res, err := s.Search(ctx, "silicon")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu"}, slugs(res))

	res, err = s.Search(ctx, "HISTORY")
	require.NoError(t, err)
	assert.Equal(t, []string{"eliza"}, slugs(res))

	res, err = s.Search(ctx, "syn")
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp"}, slugs(res))

	res, err = s.Search(ctx, "the")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gpu", "eliza"}, slugs(res))

	res, err = s.Search(ctx, "über")
	require.NoError(t, err)
	assert.Equal(t, []string{"zurich"}, slugs(res))

	res, err = s.Search(ctx, "ZÜRICH")
	require.NoError(t, err)
	assert.Equal(t, []string{"zurich"}, slugs(res))

	res, err = s.Search(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testCategories(t *testing.T, s wiki.Store) {
	mustCreate(t, s, "a", "A", "C", "u1", "Tech")
	mustCreate(t, s, "b", "B", "C", "u1", "Tech")
	mustCreate(t, s, "c", "C", "C", "u1", "Art")
	mustCreate(t, s, "d", "D", "C", "u1", "")
	mustCreate(t, s, "e", "E", "C", "u1", "History")
	mustCreate(t, s, "f", "F", "C", "u1", "History")
	mustCreate(t, s, "g", "G", "C", "u1", "History")

	cats, err := s.Categories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []wiki.CategoryCount{
		{Name: "History", Count: 3},
		{Name: "Tech", Count: 2},
		{Name: "Art", Count: 1},
		{Name: wiki.DefaultCategory, Count: 1},
	}, cats)
}

func testLeaderboard(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "a", "T", "C", "u1", "")
	_, err := s.Update(ctx, "a", "C2", "u2")
	require.NoError(t, err)

	lb, err := s.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []wiki.LeaderboardEntry{
		{AuthorID: "u1", Count: 1, Karma: 10},
		{AuthorID: "u2", Count: 0, Karma: 5},
	}, lb)

	// Equal scores order by author id.
	mustCreate(t, s, "b", "T", "C", "u0", "")
	lb, err = s.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, lb, 3)
	assert.Equal(t, "u0", lb[0].AuthorID)
	assert.Equal(t, "u1", lb[1].AuthorID)
	assert.Equal(t, "u2", lb[2].AuthorID)
}

func testRecentActivity(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	for i := 0; i < wiki.FeedSize+10; i++ {
		mustCreate(t, s, fmt.Sprintf("s%02d", i), fmt.Sprintf("T%02d", i), "C", "u1", "")
	}
	_, err := s.Update(ctx, "s00", "C2", "u2")
	require.NoError(t, err)

	feed, err := s.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, feed, wiki.FeedSize)
	assert.Equal(t, wiki.ActivityEdit, feed[0].Type)
	assert.Equal(t, "s00", feed[0].ArticleSlug)
	assert.Equal(t, "u2", feed[0].AgentID)
	assert.Equal(t, fmt.Sprintf("s%02d", wiki.FeedSize+9), feed[1].ArticleSlug)
	for i := 1; i < len(feed); i++ {
		assert.False(t, feed[i].Timestamp.After(feed[i-1].Timestamp), "feed must be newest first")
	}

	feed, err = s.RecentActivity(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, feed, 3)
}

func testReseed(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	_, err := s.Reseed(ctx, wiki.NewArticle{Slug: "welcome", Title: "Welcome", Content: "v1", AuthorID: "system", Category: "Guide"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "welcome", "v2", "u1")
	require.NoError(t, err)
	_, err = s.Get(ctx, "welcome")
	require.NoError(t, err)

	a, err := s.Reseed(ctx, wiki.NewArticle{Slug: "welcome", Title: "Welcome!", Content: "v3", AuthorID: "system", Category: "Guide"})
	require.NoError(t, err)
	assert.Equal(t, "v3", a.Content)
	assert.Equal(t, "Welcome!", a.Title)
	assert.Len(t, a.History, 1)
	assert.Equal(t, int64(1), a.Views)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	feed, err := s.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, wiki.ActivityEdit, feed[0].Type)
}

func testConcurrent(t *testing.T, s wiki.Store) {
	ctx := context.Background()
	mustCreate(t, s, "hot", "Hot", "C", "u1", "")

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, "hot", fmt.Sprintf("C%d", i), fmt.Sprintf("e%d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddComment(ctx, "hot", fmt.Sprintf("c%d", i), "u9")
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := s.Get(ctx, "hot")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := s.Peek(ctx, "hot")
	require.NoError(t, err)
	assert.Len(t, a.History, writers)
	assert.Len(t, a.Comments, writers)
	assert.Equal(t, int64(writers), a.Views)
}

func slugs(as []wiki.Article) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Slug)
	}
	return out
}
