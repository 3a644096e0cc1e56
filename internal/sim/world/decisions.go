package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"clawverse.ai/internal/mind"
	"clawverse.ai/internal/sim/world/logic/movement"
	"clawverse.ai/internal/wiki"
)

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskResolved  TaskState = "resolved"
	TaskDiscarded TaskState = "discarded"
)

// decisionTask tracks the single in-flight decision an agent may have.
type decisionTask struct {
	id          uint64
	agent       *Agent
	startedTick uint64
	startedAt   time.Time
	state       TaskState
	// cancel aborts the decision and any wiki call it is making.
	cancel context.CancelFunc
}

type decisionResult struct {
	taskID  uint64
	agentID string
	action  mind.Action
	err     error
	latency time.Duration
	// wiki is the outcome of a READ or WRITE, performed off the world goroutine.
	wiki *wikiEffect
}

// wikiEffect is what a READ or WRITE did to the store. Memories are handed to
// the agent's decider only if the result is applied.
type wikiEffect struct {
	outcome  string
	err      error
	memories []string
}

type decisionCounters struct {
	started   uint64
	applied   uint64
	discarded uint64
	failed    uint64
	overruns  uint64
}

// TaskState reports the state of agentID's current decision, if any.
func (w *World) TaskState(agentID string) (TaskState, bool) {
	t := w.tasks[agentID]
	if t == nil {
		return "", false
	}
	return t.state, true
}

// RunDecisionCycle starts a decision for every autonomous agent that has none in
// flight. Agents still waiting on the previous cycle are skipped.
func (w *World) RunDecisionCycle() {
	ids := make([]string, 0, len(w.deciders))
	for id := range w.deciders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tick := w.tick.Load()
	for _, id := range ids {
		a := w.agents[id]
		if a == nil {
			continue
		}
		if t := w.tasks[id]; t != nil && t.state == TaskPending {
			w.counters.overruns++
			w.log.Warn("decision overrun, skipping agent",
				zap.String("agent_id", id), zap.Uint64("started_tick", t.startedTick), zap.Uint64("tick", tick))
			continue
		}
		w.nextTaskID++
		task := &decisionTask{id: w.nextTaskID, agent: a, startedTick: tick, startedAt: w.now(), state: TaskPending}
		w.tasks[id] = task
		w.counters.started++
		w.startDecision(task, w.deciders[id], w.situation(a))
	}
}

func (w *World) startDecision(task *decisionTask, d Decider, s mind.Situation) {
	taskCtx, cancelTask := context.WithCancel(w.decisionCtx)
	task.cancel = cancelTask
	w.decisionWG.Add(1)
	go func() {
		defer w.decisionWG.Done()
		defer cancelTask()
		res := decisionResult{taskID: task.id, agentID: s.AgentID}
		start := time.Now()
		func() {
			ctx, cancel := context.WithTimeout(taskCtx, w.cfg.DecisionTimeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					res.err = fmt.Errorf("decider panic: %v", r)
				}
			}()
			res.action = d.Decide(ctx, s)
		}()
		if res.err == nil && taskCtx.Err() == nil {
			res.wiki = w.touchWiki(taskCtx, s.AgentID, res.action)
		}
		res.latency = time.Since(start)
		select {
		case w.decided <- res:
		case <-w.decisionCtx.Done():
		}
	}()
}

// touchWiki performs the store side of READ and WRITE. It runs on the decision
// goroutine so a slow store never holds up a tick.
func (w *World) touchWiki(ctx context.Context, agentID string, act mind.Action) *wikiEffect {
	switch act.Kind {
	case mind.KindRead, mind.KindWrite:
	default:
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.cfg.StoreTimeout)
	defer cancel()
	if act.Kind == mind.KindRead {
		return w.readWiki(ctx, act)
	}
	return w.writeWiki(ctx, agentID, act)
}

// situation snapshots what agent a can see: itself and the closest peers in range.
func (w *World) situation(a *Agent) mind.Situation {
	s := mind.Situation{
		AgentID:  a.ID,
		Name:     a.Name,
		Status:   string(a.Status),
		Position: mind.Point{X: a.Pos.X, Y: a.Pos.Y},
		Width:    w.cfg.Width,
		Height:   w.cfg.Height,
	}
	for _, o := range w.agents {
		if o.ID == a.ID {
			continue
		}
		d := movement.Distance(a.Pos, o.Pos)
		if d > w.cfg.NearbyRadius {
			continue
		}
		s.Nearby = append(s.Nearby, mind.Neighbor{
			ID:       o.ID,
			Name:     o.Name,
			Position: mind.Point{X: o.Pos.X, Y: o.Pos.Y},
			Distance: d,
		})
	}
	sort.Slice(s.Nearby, func(i, j int) bool {
		if s.Nearby[i].Distance != s.Nearby[j].Distance {
			return s.Nearby[i].Distance < s.Nearby[j].Distance
		}
		return s.Nearby[i].ID < s.Nearby[j].ID
	})
	if len(s.Nearby) > w.cfg.NearbyMax {
		s.Nearby = s.Nearby[:w.cfg.NearbyMax]
	}
	return s
}

func (w *World) applyDecision(res decisionResult) {
	task := w.tasks[res.agentID]
	if task == nil || task.id != res.taskID {
		return
	}
	a := w.agents[res.agentID]
	if a == nil || a != task.agent {
		task.state = TaskDiscarded
		delete(w.tasks, res.agentID)
		w.counters.discarded++
		w.log.Debug("decision discarded", zap.String("agent_id", res.agentID))
		return
	}
	task.state = TaskResolved

	act := res.action
	if res.err != nil {
		w.counters.failed++
		w.log.Warn("decision failed, treating as WAIT", zap.String("agent_id", a.ID), zap.Error(res.err))
		act = mind.Wait(res.err.Error())
	}
	outcome, err := w.apply(a, act, res.wiki)
	if err != nil {
		w.counters.failed++
		w.log.Warn("action failed", zap.String("agent_id", a.ID), zap.String("action", string(act.Kind)), zap.Error(err))
	} else {
		w.counters.applied++
	}

	if w.decisionLog != nil {
		entry := DecisionLogEntry{
			Tick:      w.tick.Load(),
			AgentID:   a.ID,
			Action:    act,
			Fallback:  act.Fallback,
			Outcome:   outcome,
			LatencyMS: res.latency.Milliseconds(),
		}
		if res.err != nil {
			entry.Error = res.err.Error()
		} else if err != nil {
			entry.Error = err.Error()
		}
		if err := w.decisionLog.WriteDecision(entry); err != nil {
			w.log.Warn("decision log write failed", zap.Error(err))
		}
	}
}

// apply performs act for a and returns a short description of what happened.
func (w *World) apply(a *Agent, act mind.Action, fx *wikiEffect) (string, error) {
	a.LastAction = act.Kind
	a.LastReason = act.Reason
	if act.Kind != mind.KindTalk {
		a.LastSay = ""
	}
	d := w.deciders[a.ID]

	switch act.Kind {
	case mind.KindMove:
		if act.Target == nil {
			return "", errors.New("move without target")
		}
		t := clampToWorld(Vec2{X: act.Target.X, Y: act.Target.Y}, w.cfg)
		w.MoveAgent(a.ID, t)
		return fmt.Sprintf("moving to (%.0f, %.0f)", t.X, t.Y), nil

	case mind.KindTalk:
		a.LastSay = act.Content
		listener := w.agents[act.TargetAgentID]
		if listener == nil {
			remember(d, fmt.Sprintf("I said: %q", act.Content))
			return "said to nobody in particular", nil
		}
		remember(d, fmt.Sprintf("I said to %s: %q", listener.Name, act.Content))
		remember(w.deciders[listener.ID], fmt.Sprintf("%s said to me: %q", a.Name, act.Content))
		return "talked to " + listener.ID, nil

	case mind.KindRead, mind.KindWrite:
		if fx == nil {
			return "", errors.New("wiki action was not performed")
		}
		if fx.err != nil {
			return "", fx.err
		}
		for _, m := range fx.memories {
			remember(d, m)
		}
		return fx.outcome, nil

	default:
		return "waiting", nil
	}
}

func (w *World) readWiki(ctx context.Context, act mind.Action) *wikiEffect {
	hits, err := w.store.Search(ctx, act.Query)
	if err != nil {
		return &wikiEffect{err: fmt.Errorf("search %q: %w", act.Query, err)}
	}
	if len(hits) == 0 {
		return &wikiEffect{
			outcome:  "no results",
			memories: []string{fmt.Sprintf("I searched the wiki for %q and found nothing.", act.Query)},
		}
	}
	art, err := w.store.Get(ctx, hits[0].Slug)
	if err != nil {
		return &wikiEffect{err: fmt.Errorf("read %s: %w", hits[0].Slug, err)}
	}
	return &wikiEffect{
		outcome:  "read " + art.Slug,
		memories: []string{fmt.Sprintf("I read %q: %s", art.Title, wiki.Preview(art.Content))},
	}
}

func (w *World) writeWiki(ctx context.Context, authorID string, act mind.Action) *wikiEffect {
	edited := func(art wiki.Article) *wikiEffect {
		return &wikiEffect{
			outcome:  "edited " + art.Slug,
			memories: []string{fmt.Sprintf("I edited the wiki article %q.", art.Title)},
		}
	}
	if _, err := w.store.Peek(ctx, act.Slug); err == nil {
		art, err := w.store.Update(ctx, act.Slug, act.Content, authorID)
		if err != nil {
			return &wikiEffect{err: fmt.Errorf("update %s: %w", act.Slug, err)}
		}
		return edited(art)
	} else if !errors.Is(err, wiki.ErrNotFound) {
		return &wikiEffect{err: fmt.Errorf("peek %s: %w", act.Slug, err)}
	}

	art, err := w.store.Create(ctx, wiki.NewArticle{
		Slug:     act.Slug,
		Title:    act.Title,
		Content:  act.Content,
		Category: act.Category,
		AuthorID: authorID,
	})
	if errors.Is(err, wiki.ErrDuplicate) {
		// Created by someone else since the Peek.
		upd, uerr := w.store.Update(ctx, act.Slug, act.Content, authorID)
		if uerr != nil {
			return &wikiEffect{err: fmt.Errorf("update %s: %w", act.Slug, uerr)}
		}
		return edited(upd)
	}
	if err != nil {
		return &wikiEffect{err: fmt.Errorf("create %s: %w", act.Slug, err)}
	}
	return &wikiEffect{
		outcome:  "created " + art.Slug,
		memories: []string{fmt.Sprintf("I wrote the wiki article %q.", art.Title)},
	}
}

func remember(d Decider, observation string) {
	if d != nil {
		d.Remember(observation)
	}
}
