package world

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawverse.ai/internal/mind"
	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/wiki"
)

// scriptedDecider replays actions in order, then waits. When gate is set each
// Decide blocks until the gate yields or ctx ends.
type scriptedDecider struct {
	gate chan struct{}

	mu       sync.Mutex
	actions  []mind.Action
	calls    int
	memories []string
}

func (d *scriptedDecider) Decide(ctx context.Context, _ mind.Situation) mind.Action {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return mind.Wait("cancelled")
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.actions) == 0 {
		return mind.Wait("nothing scripted")
	}
	a := d.actions[0]
	d.actions = d.actions[1:]
	return a
}

func (d *scriptedDecider) Remember(obs string) {
	d.mu.Lock()
	d.memories = append(d.memories, obs)
	d.mu.Unlock()
}

func (d *scriptedDecider) Memories() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.memories...)
}

func newTestWorld(t *testing.T, cfg WorldConfig, store wiki.Store, deciders map[string]*scriptedDecider) *World {
	t.Helper()
	if store == nil {
		store = wiki.NewMemoryStore()
	}
	if cfg.Seed == 0 {
		cfg.Seed = 7
	}
	w, err := New(cfg, Options{
		Store: store,
		Minds: func(agentID, _ string) Decider {
			if d, ok := deciders[agentID]; ok {
				return d
			}
			return &scriptedDecider{}
		},
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

// waitForResults blocks until n decision results are queued for the world.
func waitForResults(t *testing.T, w *World, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(w.decided) >= n }, 2*time.Second, time.Millisecond)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(WorldConfig{}, Options{})
	assert.Error(t, err)
}

func TestCreateAgentDefaultsAndDuplicate(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, nil, nil)

	a, err := w.CreateAgent("", "", "", ControllerSession)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.True(t, strings.HasPrefix(a.Name, "Agent-"))
	assert.NotEmpty(t, a.Color)
	assert.Equal(t, StatusIdle, a.Status)
	assert.Nil(t, a.Target)
	assert.GreaterOrEqual(t, a.Pos.X, 0.0)
	assert.Less(t, a.Pos.X, 800.0)
	assert.GreaterOrEqual(t, a.Pos.Y, 0.0)
	assert.Less(t, a.Pos.Y, 600.0)

	_, err = w.CreateAgent(a.ID, "again", "", ControllerSession)
	assert.ErrorIs(t, err, ErrAgentExists)

	w.RemoveAgent(a.ID)
	w.RemoveAgent(a.ID)
	_, ok := w.Agent(a.ID)
	assert.False(t, ok)
}

func TestMoveArrivesExactlyAndGoesIdle(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, nil, nil)
	a, err := w.CreateAgent("s1", "Sam", "#fff", ControllerSession)
	require.NoError(t, err)
	a.Pos = Vec2{}

	w.MoveAgent("s1", Vec2{X: 10, Y: 0})
	for i := 0; i < 5; i++ {
		assert.Equal(t, StatusMoving, a.Status, "tick %d", i)
		assert.NotNil(t, a.Target)
		w.Tick()
		assert.Equal(t, a.Status == StatusMoving, a.Target != nil)
	}
	assert.Equal(t, Vec2{X: 10, Y: 0}, a.Pos)
	assert.Equal(t, StatusIdle, a.Status)
	assert.Nil(t, a.Target)

	w.MoveAgent("missing", Vec2{X: 1, Y: 1})
}

func TestMoveTargetIsClamped(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, nil, nil)
	a, err := w.CreateAgent("s1", "Sam", "", ControllerSession)
	require.NoError(t, err)

	w.MoveAgent("s1", Vec2{X: 5000, Y: -3})
	require.NotNil(t, a.Target)
	assert.Equal(t, Vec2{X: 800, Y: 0}, *a.Target)
}

func TestRetargetWhileMoving(t *testing.T) {
	w := newTestWorld(t, WorldConfig{}, nil, nil)
	a, err := w.CreateAgent("s1", "Sam", "", ControllerSession)
	require.NoError(t, err)
	a.Pos = Vec2{X: 100, Y: 100}

	w.MoveAgent("s1", Vec2{X: 200, Y: 100})
	w.Tick()
	w.MoveAgent("s1", Vec2{X: 100, Y: 200})
	assert.Equal(t, StatusMoving, a.Status)
	assert.Equal(t, Vec2{X: 100, Y: 200}, *a.Target)
}

func TestAtMostOneDecisionInFlight(t *testing.T) {
	d := &scriptedDecider{gate: make(chan struct{})}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1}, nil, map[string]*scriptedDecider{"a1": d})
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	w.StepOnce()
	st, ok := w.TaskState("a1")
	require.True(t, ok)
	assert.Equal(t, TaskPending, st)

	w.StepOnce()
	w.StepOnce()
	m := w.Metrics()
	assert.EqualValues(t, 1, m.DecisionsStarted)
	assert.EqualValues(t, 2, m.SkippedOverruns)
	assert.Equal(t, 1, m.InFlightDecisions)

	d.gate <- struct{}{}
	waitForResults(t, w, 1)
	w.StepOnce()

	m = w.Metrics()
	assert.EqualValues(t, 1, m.DecisionsApplied)
	// The same step starts the next cycle.
	assert.EqualValues(t, 2, m.DecisionsStarted)
	pub, _ := w.Agent("a1")
	assert.Equal(t, string(mind.KindWait), pub.LastAction)
}

func TestResultForRemovedAgentIsDiscarded(t *testing.T) {
	d := &scriptedDecider{
		gate:    make(chan struct{}),
		actions: []mind.Action{{Kind: mind.KindMove, Target: &mind.Point{X: 1, Y: 1}}},
	}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1}, nil, map[string]*scriptedDecider{"a1": d})
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)
	w.StepOnce()

	w.RemoveAgent("a1")
	waitForResults(t, w, 1)
	w.StepOnce()

	assert.Zero(t, d.calls, "removal cancels the pending decision")
	m := w.Metrics()
	assert.EqualValues(t, 1, m.DecisionsDiscard)
	assert.EqualValues(t, 0, m.DecisionsApplied)
	_, ok := w.TaskState("a1")
	assert.False(t, ok)
	assert.Empty(t, w.State().Agents)
}

func TestResultForRejoinedAgentIsDiscarded(t *testing.T) {
	d := &scriptedDecider{
		gate:    make(chan struct{}),
		actions: []mind.Action{{Kind: mind.KindMove, Target: &mind.Point{X: 1, Y: 1}}},
	}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, nil, map[string]*scriptedDecider{"a1": d})
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)
	w.RunDecisionCycle()

	w.RemoveAgent("a1")
	again, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	waitForResults(t, w, 1)
	w.StepOnce()

	assert.Nil(t, again.Target)
	assert.EqualValues(t, 1, w.Metrics().DecisionsDiscard)
}

func TestMoveDecisionIsClamped(t *testing.T) {
	d := &scriptedDecider{actions: []mind.Action{{Kind: mind.KindMove, Target: &mind.Point{X: -50, Y: 9000}, Reason: "explore"}}}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, nil, map[string]*scriptedDecider{"a1": d})
	a, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	w.RunDecisionCycle()
	waitForResults(t, w, 1)
	w.StepOnce()

	require.NotNil(t, a.Target)
	assert.Equal(t, Vec2{X: 0, Y: 600}, *a.Target)
	assert.Equal(t, "explore", a.LastReason)
}

func TestWriteDecisionCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	store := wiki.NewMemoryStore()
	write := func(content string) mind.Action {
		return mind.Action{Kind: mind.KindWrite, Slug: "diary", Title: "Diary", Content: content, Category: "Personal"}
	}
	d := &scriptedDecider{actions: []mind.Action{write("day one"), write("day two")}}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, store, map[string]*scriptedDecider{"a1": d})
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		w.RunDecisionCycle()
		waitForResults(t, w, 1)
		w.StepOnce()
	}

	art, err := store.Peek(ctx, "diary")
	require.NoError(t, err)
	assert.Equal(t, "a1", art.AuthorID)
	assert.Equal(t, "day two", art.Content)
	require.Len(t, art.History, 1)
	assert.Equal(t, "a1", art.History[0].EditorID)
	assert.Equal(t, "Personal", art.Category)

	mem := d.Memories()
	require.Len(t, mem, 2)
	assert.Contains(t, mem[0], "I wrote")
	assert.Contains(t, mem[1], "I edited")
}

// stallingStore blocks Peek until the caller's context ends.
type stallingStore struct {
	wiki.Store
	entered chan struct{}
}

func (s *stallingStore) Peek(ctx context.Context, _ string) (wiki.Article, error) {
	close(s.entered)
	<-ctx.Done()
	return wiki.Article{}, ctx.Err()
}

func TestWriteDecisionStoresBeforeTheTick(t *testing.T) {
	ctx := context.Background()
	store := wiki.NewMemoryStore()
	d := &scriptedDecider{actions: []mind.Action{{Kind: mind.KindWrite, Slug: "notes", Title: "Notes", Content: "hello"}}}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, store, map[string]*scriptedDecider{"a1": d})
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	w.RunDecisionCycle()
	waitForResults(t, w, 1)

	_, err = store.Peek(ctx, "notes")
	require.NoError(t, err, "the write happens on the decision goroutine")
	assert.Empty(t, d.Memories())

	w.StepOnce()
	require.Len(t, d.Memories(), 1)
	assert.EqualValues(t, 1, w.Metrics().DecisionsApplied)
}

func TestSlowStoreDoesNotHoldTicks(t *testing.T) {
	store := &stallingStore{Store: wiki.NewMemoryStore(), entered: make(chan struct{})}
	d := &scriptedDecider{actions: []mind.Action{{Kind: mind.KindWrite, Slug: "notes", Title: "Notes", Content: "hello"}}}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000, StoreTimeout: time.Minute}, store, map[string]*scriptedDecider{"a1": d})
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	w.RunDecisionCycle()
	<-store.entered
	for i := 0; i < 3; i++ {
		w.StepOnce()
	}
	assert.EqualValues(t, 3, w.State().Tick)
	st, _ := w.TaskState("a1")
	assert.Equal(t, TaskPending, st)

	// Leaving aborts the stalled store call and the result is thrown away.
	w.RemoveAgent("a1")
	waitForResults(t, w, 1)
	w.StepOnce()
	assert.EqualValues(t, 1, w.Metrics().DecisionsDiscard)
	assert.EqualValues(t, 0, w.Metrics().DecisionsApplied)
}

func TestReadDecisionCountsViewAndRemembers(t *testing.T) {
	ctx := context.Background()
	store := wiki.NewMemoryStore()
	_, err := store.Create(ctx, wiki.NewArticle{Slug: "town-history", Title: "Town History", Content: "Founded by settlers.", AuthorID: "system"})
	require.NoError(t, err)

	d := &scriptedDecider{actions: []mind.Action{
		{Kind: mind.KindRead, Query: "HISTORY"},
		{Kind: mind.KindRead, Query: "dragons"},
	}}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, store, map[string]*scriptedDecider{"a1": d})
	_, err = w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w.RunDecisionCycle()
		waitForResults(t, w, 1)
		w.StepOnce()
	}

	art, err := store.Peek(ctx, "town-history")
	require.NoError(t, err)
	assert.EqualValues(t, 1, art.Views)

	mem := d.Memories()
	require.Len(t, mem, 2)
	assert.Contains(t, mem[0], "Town History")
	assert.Contains(t, mem[0], "Founded by settlers.")
	assert.Contains(t, mem[1], "found nothing")
}

func TestTalkReachesAutonomousListener(t *testing.T) {
	speaker := &scriptedDecider{actions: []mind.Action{{Kind: mind.KindTalk, TargetAgentID: "b", Content: "Hello!"}}}
	listener := &scriptedDecider{}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, nil, map[string]*scriptedDecider{"a": speaker, "b": listener})
	_, err := w.CreateAgent("a", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)
	_, err = w.CreateAgent("b", "Bo", "", ControllerAutonomous)
	require.NoError(t, err)

	w.RunDecisionCycle()
	waitForResults(t, w, 2)
	w.StepOnce()

	pub, _ := w.Agent("a")
	assert.Equal(t, "Hello!", pub.Say)
	assert.Equal(t, string(mind.KindTalk), pub.LastAction)
	require.Len(t, listener.Memories(), 1)
	assert.Contains(t, listener.Memories()[0], "Ada said to me")
	require.Len(t, speaker.Memories(), 1)
	assert.Contains(t, speaker.Memories()[0], "I said to Bo")
}

func TestDecisionPanicBecomesWait(t *testing.T) {
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, nil, nil)
	w.minds = func(string, string) Decider { return panicDecider{} }
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	w.RunDecisionCycle()
	waitForResults(t, w, 1)
	w.StepOnce()

	pub, _ := w.Agent("a1")
	assert.Equal(t, string(mind.KindWait), pub.LastAction)
	assert.EqualValues(t, 1, w.Metrics().DecisionsFailed)
}

type panicDecider struct{}

func (panicDecider) Decide(context.Context, mind.Situation) mind.Action { panic("boom") }
func (panicDecider) Remember(string)                                    {}

func TestSituationListsClosestPeersInRange(t *testing.T) {
	w := newTestWorld(t, WorldConfig{NearbyMax: 2}, nil, nil)
	self, _ := w.CreateAgent("self", "Self", "", ControllerAutonomous)
	self.Pos = Vec2{X: 100, Y: 100}
	for id, p := range map[string]Vec2{
		"near":  {X: 110, Y: 100},
		"mid":   {X: 150, Y: 100},
		"edge":  {X: 290, Y: 100},
		"far":   {X: 400, Y: 100},
		"close": {X: 100, Y: 105},
	} {
		a, err := w.CreateAgent(id, id, "", ControllerSession)
		require.NoError(t, err)
		a.Pos = p
	}

	s := w.situation(self)
	require.Len(t, s.Nearby, 2)
	assert.Equal(t, "close", s.Nearby[0].ID)
	assert.Equal(t, "near", s.Nearby[1].ID)
	assert.Equal(t, 800.0, s.Width)
}

type recordingLog struct {
	mu      sync.Mutex
	entries []DecisionLogEntry
}

func (l *recordingLog) WriteDecision(e DecisionLogEntry) error {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

func TestDecisionLogRecordsOutcome(t *testing.T) {
	d := &scriptedDecider{actions: []mind.Action{{Kind: mind.KindWrite, Slug: "x", Title: "", Content: "c"}}}
	w := newTestWorld(t, WorldConfig{DecisionEveryTicks: 1000}, nil, map[string]*scriptedDecider{"a1": d})
	rec := &recordingLog{}
	w.SetDecisionLogger(rec)
	_, err := w.CreateAgent("a1", "Ada", "", ControllerAutonomous)
	require.NoError(t, err)

	w.RunDecisionCycle()
	waitForResults(t, w, 1)
	w.StepOnce()

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "a1", rec.entries[0].AgentID)
	assert.Equal(t, mind.KindWrite, rec.entries[0].Action.Kind)
	assert.Contains(t, rec.entries[0].Error, "invalid")
	assert.EqualValues(t, 1, w.Metrics().DecisionsFailed)
}

func TestRunBroadcastsStateToJoinedSession(t *testing.T) {
	w := newTestWorld(t, WorldConfig{TickRateHz: 200}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	out := make(chan []byte, 4)
	resp := make(chan JoinResponse, 1)
	w.Join() <- JoinRequest{Name: "Sam", Controller: ControllerSession, Out: out, Resp: resp}

	var jr JoinResponse
	select {
	case jr = <-resp:
	case <-time.After(2 * time.Second):
		t.Fatal("no join response")
	}
	require.NoError(t, jr.Err)
	assert.Equal(t, "Sam", jr.Agent.Name)
	assert.Equal(t, "session", jr.Agent.Controller)

	var msg protocol.StateMsg
	select {
	case b := <-out:
		require.NoError(t, json.Unmarshal(b, &msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no state broadcast")
	}
	assert.Equal(t, protocol.TypeState, msg.Type)
	assert.Contains(t, msg.Agents, jr.Agent.ID)

	w.Move() <- MoveRequest{AgentID: jr.Agent.ID, Target: Vec2{X: 1, Y: 1}}
	w.Leave() <- jr.Agent.ID
	require.Eventually(t, func() bool { return len(w.State().Agents) == 0 }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunExitClosesObserverStreams(t *testing.T) {
	w := newTestWorld(t, WorldConfig{TickRateHz: 200}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	out := make(chan []byte, 1)
	w.ObserverJoin() <- ObserverJoinRequest{ID: "O1", Out: out}
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("no state broadcast")
	}

	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range out {
		}
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("observer stream left open")
	}
}

func TestSendLatestDropsOldest(t *testing.T) {
	ch := make(chan []byte, 1)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	assert.Equal(t, "b", string(<-ch))
}

func TestRecentAgentsNewestFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := StateSnapshot{
		Agents: map[string]protocol.AgentState{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}},
		CreatedAt: map[string]time.Time{
			"a": now,
			"b": now.Add(2 * time.Second),
			"c": now.Add(time.Second),
		},
	}
	got := RecentAgents(s, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}
