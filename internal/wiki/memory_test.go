package wiki_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawverse.ai/internal/wiki"
	"clawverse.ai/internal/wiki/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock wiki.Clock) wiki.Store {
		return wiki.NewMemoryStore(wiki.WithClock(clock))
	})
}

type recordingSink struct {
	mu  sync.Mutex
	evs []wiki.ActivityEvent
}

func (r *recordingSink) WriteActivity(ev wiki.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func TestMemoryStore_ActivitySinkSeesEveryEvent(t *testing.T) {
	sink := &recordingSink{}
	s := wiki.NewMemoryStore(wiki.WithClock(storetest.StepClock()), wiki.WithActivitySink(sink))
	ctx := context.Background()

	_, err := s.Create(ctx, wiki.NewArticle{Slug: "a", Title: "T", Content: "C", AuthorID: "u1"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "a", "C2", "u2")
	require.NoError(t, err)
	_, err = s.AddComment(ctx, "a", "nice", "u3")
	require.NoError(t, err)
	_, err = s.Update(ctx, "missing", "C2", "u2")
	require.ErrorIs(t, err, wiki.ErrNotFound)

	require.Len(t, sink.evs, 3)
	assert.Equal(t, wiki.ActivityCreate, sink.evs[0].Type)
	assert.Equal(t, wiki.ActivityEdit, sink.evs[1].Type)
	assert.Equal(t, wiki.ActivityComment, sink.evs[2].Type)
	assert.Equal(t, "nice", sink.evs[2].Details)
}

func TestMemoryStore_SinkFailureIsLogged(t *testing.T) {
	log, logs := storetest.ObservedLogger()
	s := wiki.NewMemoryStore(wiki.WithActivitySink(storetest.BrokenSink{}), wiki.WithLogger(log))
	storetest.RunSinkFailure(t, s, logs)
}

func TestMemoryStore_ReturnedArticlesAreCopies(t *testing.T) {
	s := wiki.NewMemoryStore()
	ctx := context.Background()
	_, err := s.Create(ctx, wiki.NewArticle{Slug: "a", Title: "T", Content: "C", AuthorID: "u1"})
	require.NoError(t, err)
	up, err := s.Update(ctx, "a", "C2", "u2")
	require.NoError(t, err)

	up.History[0].EditorID = "mallory"
	up.History = append(up.History, wiki.Edit{EditorID: "x"})

	got, err := s.Peek(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, "u2", got.History[0].EditorID)
}
