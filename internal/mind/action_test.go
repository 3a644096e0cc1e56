package mind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionAcceptsEachKind(t *testing.T) {
	cases := map[string]Action{
		`{"action":"MOVE","target":{"x":100,"y":50},"reason":"explore"}`: {Kind: KindMove, Target: &Point{X: 100, Y: 50}, Reason: "explore"},
		`{"action":"TALK","targetAgentId":"a2","content":" hi "}`:        {Kind: KindTalk, TargetAgentID: "a2", Content: "hi"},
		`{"action":"READ","query":"history"}`:                            {Kind: KindRead, Query: "history"},
		`{"action":"WAIT"}`:                                              {Kind: KindWait},
		`{"action":"WRITE","slug":"my-diary","title":"My Diary","content":"Today","category":"Personal"}`: {
			Kind: KindWrite, Slug: "my-diary", Title: "My Diary", Content: "Today", Category: "Personal",
		},
	}
	for in, want := range cases {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseActionAliasesAndSlugify(t *testing.T) {
	got, err := ParseAction(`{"action":"write_wiki","title":"Town Gossip: Vol. 2!","content":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, KindWrite, got.Kind)
	assert.Equal(t, "town-gossip-vol-2", got.Slug)

	got, err = ParseAction(`{"action":"READ_WIKI","query":"gpu"}`)
	require.NoError(t, err)
	assert.Equal(t, KindRead, got.Kind)
}

func TestParseActionRepairsAndUnfences(t *testing.T) {
	got, err := ParseAction("```json\n{\"action\": \"WAIT\", \"reason\": \"tired\",}\n```")
	require.NoError(t, err)
	assert.Equal(t, Action{Kind: KindWait, Reason: "tired"}, got)

	got, err = ParseAction(`{'action': 'MOVE', 'target': {'x': 1, 'y': 2}}`)
	require.NoError(t, err)
	assert.Equal(t, &Point{X: 1, Y: 2}, got.Target)
}

func TestParseActionRejects(t *testing.T) {
	for _, in := range []string{
		``,
		`null`,
		`[1,2]`,
		`{"reason":"no action"}`,
		`{"action":"FLY"}`,
		`{"action":"MOVE"}`,
		`{"action":"MOVE","target":{"x":"far"}}`,
		`{"action":"TALK","content":""}`,
		`{"action":"READ"}`,
		`{"action":"READ","query":"   "}`,
		`{"action":"TALK","content":" \n\t "}`,
		`{"action":"WRITE","slug":"s","title":"T","content":"   "}`,
		`{"action":"WRITE","slug":"s","title":"  ","content":"C"}`,
		`{"action":"WRITE","slug":"s","title":"T"}`,
	} {
		_, err := ParseAction(in)
		assert.ErrorIs(t, err, ErrInvalidAction, in)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", Slugify("  Hello,  World!! "))
	assert.Equal(t, "", Slugify("!!!"))
	assert.Equal(t, "abc-123", Slugify("abc_123"))
}
