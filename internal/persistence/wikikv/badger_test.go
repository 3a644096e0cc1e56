package wikikv

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawverse.ai/internal/wiki"
	"clawverse.ai/internal/wiki/storetest"
)

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock wiki.Clock) wiki.Store {
		s, err := Open(Options{InMemory: true, Clock: clock})
		require.NoError(t, err)
		return s
	})
}

func TestBadgerStoreReopenKeepsFeedOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir, Clock: storetest.StepClock()})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, wiki.NewArticle{Slug: fmt.Sprintf("a%d", i), Title: "T", Content: "C", AuthorID: "u1"})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir, Clock: storetest.StepClock()})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Update(ctx, "a0", "C2", "u2")
	require.NoError(t, err)

	feed, err := s.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, feed, 4)
	assert.Equal(t, wiki.ActivityEdit, feed[0].Type)
	assert.Equal(t, "a2", feed[1].ArticleSlug)
	assert.Equal(t, "a0", feed[3].ArticleSlug)
}

func TestBadgerStoreLogsSinkFailure(t *testing.T) {
	log, logs := storetest.ObservedLogger()
	s, err := Open(Options{InMemory: true, Sink: storetest.BrokenSink{}, Logger: log})
	require.NoError(t, err)
	defer s.Close()
	storetest.RunSinkFailure(t, s, logs)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}
