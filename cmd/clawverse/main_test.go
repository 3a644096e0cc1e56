package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	persistlog "clawverse.ai/internal/persistence/log"
	"clawverse.ai/internal/sim/tuning"
	"clawverse.ai/internal/wiki"
)

func clearModelEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestChooseModel(t *testing.T) {
	ctx := context.Background()

	t.Run("auto without keys falls back", func(t *testing.T) {
		clearModelEnv(t)
		m, err := chooseModel(ctx, tuning.LLM{Provider: "auto"})
		require.NoError(t, err)
		assert.Nil(t, m)
	})
	t.Run("auto prefers openai", func(t *testing.T) {
		clearModelEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
		m, err := chooseModel(ctx, tuning.LLM{Provider: "auto"})
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Contains(t, m.Name(), "gpt")
	})
	t.Run("auto picks anthropic", func(t *testing.T) {
		clearModelEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
		m, err := chooseModel(ctx, tuning.LLM{})
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Contains(t, m.Name(), "claude")
	})
	t.Run("explicit provider needs key", func(t *testing.T) {
		clearModelEnv(t)
		_, err := chooseModel(ctx, tuning.LLM{Provider: "anthropic"})
		assert.Error(t, err)
	})
	t.Run("mock", func(t *testing.T) {
		clearModelEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		m, err := chooseModel(ctx, tuning.LLM{Provider: "mock"})
		require.NoError(t, err)
		assert.Nil(t, m)
	})
}

func TestOpenWikiStoreBackends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"memory", "sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			t.Setenv("CV_STORE_BACKEND", backend)
			s, got, err := openWikiStore(t.TempDir(), nil, zap.NewNop())
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, backend, got)

			_, err = s.Create(ctx, wiki.NewArticle{Slug: "a", Title: "A", Content: "c", AuthorID: "u1"})
			require.NoError(t, err)
			lb, err := s.Leaderboard(ctx)
			require.NoError(t, err)
			require.Len(t, lb, 1)
		})
	}

	t.Setenv("CV_STORE_BACKEND", "postgres")
	_, _, err := openWikiStore(t.TempDir(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestBuildMirrorDisabledByDefault(t *testing.T) {
	t.Setenv("CV_MIRROR", "")
	m, err := buildMirror(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)

	t.Setenv("CV_MIRROR", "true")
	_, err = buildMirror(t.TempDir(), zap.NewNop())
	assert.Error(t, err)
}

func TestRenderLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	renderLeaderboard(&buf,
		[]wiki.LeaderboardEntry{{AuthorID: "u1", Count: 1, Karma: 10}, {AuthorID: "u2", Count: 0, Karma: 5}},
		nil, 1)
	out := buf.String()
	assert.Contains(t, out, "Top contributors")
	assert.Contains(t, out, "u1")
	assert.NotContains(t, out, "u2")
	assert.Contains(t, out, "(empty)")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CV_TEST_INT", "abc")
	assert.Equal(t, 3, envInt("CV_TEST_INT", 3))
	t.Setenv("CV_TEST_INT", "7")
	assert.Equal(t, 7, envInt("CV_TEST_INT", 3))
	t.Setenv("CV_TEST_BOOL", "yes")
	assert.True(t, envBool("CV_TEST_BOOL", true))
	t.Setenv("CV_TEST_BOOL", "0")
	assert.False(t, envBool("CV_TEST_BOOL", true))
}

func TestReplayActivity(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := persistlog.NewActivityLogger(dir, persistlog.WithClock(func() time.Time { return now }))
	events := []wiki.ActivityEvent{
		{Type: wiki.ActivityCreate, AgentID: "u1", ArticleSlug: "a"},
		{Type: wiki.ActivityCreate, AgentID: "u2", ArticleSlug: "b"},
		{Type: wiki.ActivityEdit, AgentID: "u1", ArticleSlug: "b"},
		{Type: wiki.ActivityComment, AgentID: "u2", ArticleSlug: "a"},
	}
	for i, ev := range events {
		if i == 2 {
			now = now.Add(time.Hour)
		}
		require.NoError(t, l.WriteActivity(ev))
	}
	require.NoError(t, l.Close())

	sum, err := replayActivity(dir + "/activity")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 4, sum.Events)
	assert.Equal(t, 2, sum.ByType[wiki.ActivityCreate])
	require.Len(t, sum.Board, 2)
	assert.Equal(t, "u1", sum.Board[0].AuthorID)
	assert.Equal(t, 15, sum.Board[0].Karma)

	var buf bytes.Buffer
	renderReplay(&buf, sum)
	assert.Contains(t, buf.String(), "replayed 4 events from 2 files")
	assert.Contains(t, buf.String(), "comment")

	_, err = replayActivity(t.TempDir())
	assert.Error(t, err)
}
