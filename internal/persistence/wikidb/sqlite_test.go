package wikidb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawverse.ai/internal/wiki"
	"clawverse.ai/internal/wiki/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock wiki.Clock) wiki.Store {
		s, err := Open(filepath.Join(t.TempDir(), "wiki.sqlite"), WithClock(clock))
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wiki.sqlite")

	s, err := Open(path, WithClock(storetest.StepClock()))
	require.NoError(t, err)
	_, err = s.Create(ctx, wiki.NewArticle{Slug: "town-history", Title: "History of Smallville", Content: "founded", AuthorID: "system", Category: "History"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "town-history", "founded twice", "agent-1")
	require.NoError(t, err)
	_, err = s.AddComment(ctx, "town-history", "citation needed", "agent-2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Peek(ctx, "town-history")
	require.NoError(t, err)
	assert.Equal(t, "founded twice", a.Content)
	require.Len(t, a.History, 1)
	assert.Equal(t, "agent-1", a.History[0].EditorID)
	require.Len(t, a.Comments, 1)
	assert.Equal(t, "citation needed", a.Comments[0].Content)

	feed, err := s.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, wiki.ActivityComment, feed[0].Type)
	assert.Equal(t, "citation needed", feed[0].Details)
}

func TestSQLiteStoreLogsSinkFailure(t *testing.T) {
	log, logs := storetest.ObservedLogger()
	s, err := Open(filepath.Join(t.TempDir(), "wiki.sqlite"), WithActivitySink(storetest.BrokenSink{}), WithLogger(log))
	require.NoError(t, err)
	defer s.Close()
	storetest.RunSinkFailure(t, s, logs)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
