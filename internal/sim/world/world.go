// Package world owns the agents of one town. A single goroutine (Run) advances
// the simulation at a fixed tick rate; joins, leaves, moves, observer changes and
// finished decisions arrive over channels and are applied at tick boundaries.
package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"clawverse.ai/internal/mind"
	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/wiki"
)

var ErrAgentExists = errors.New("agent already exists")

// Decider produces actions for one autonomous agent. Decide may block for a long
// time and must honour ctx; Remember must be safe to call concurrently with Decide.
type Decider interface {
	Decide(ctx context.Context, s mind.Situation) mind.Action
	Remember(observation string)
}

// MindFactory builds the Decider for a new autonomous agent.
type MindFactory func(agentID, name string) Decider

type DecisionLogger interface {
	WriteDecision(entry DecisionLogEntry) error
}

type DecisionLogEntry struct {
	Tick      uint64      `json:"tick"`
	AgentID   string      `json:"agent_id"`
	Action    mind.Action `json:"action"`
	Fallback  bool        `json:"fallback,omitempty"`
	Outcome   string      `json:"outcome,omitempty"`
	Error     string      `json:"error,omitempty"`
	LatencyMS int64       `json:"latency_ms"`
}

type JoinRequest struct {
	// ID is optional; an empty ID gets a fresh uuid.
	ID         string
	Name       string
	Color      string
	Controller Controller
	// Out, when set, subscribes the caller to STATE broadcasts under the agent id.
	Out chan []byte
	// Resp must have room for one value; the world never blocks on it.
	Resp chan JoinResponse
}

type JoinResponse struct {
	Agent protocol.AgentState
	Err   error
}

type MoveRequest struct {
	AgentID string
	Target  Vec2
}

type ObserverJoinRequest struct {
	ID  string
	Out chan []byte
}

// StateSnapshot is an immutable copy of the public world state.
type StateSnapshot struct {
	Tick   uint64                         `json:"tick"`
	Agents map[string]protocol.AgentState `json:"agents"`

	CreatedAt map[string]time.Time `json:"-"`
}

type Options struct {
	Store       wiki.Store
	Minds       MindFactory
	Logger      *zap.Logger
	DecisionLog DecisionLogger
	Clock       func() time.Time
}

type World struct {
	cfg   WorldConfig
	log   *zap.Logger
	store wiki.Store
	minds MindFactory
	now   func() time.Time
	rng   *rand.Rand

	tick atomic.Uint64

	agents    map[string]*Agent
	deciders  map[string]Decider
	tasks     map[string]*decisionTask
	observers map[string]chan []byte

	join          chan JoinRequest
	leave         chan string
	move          chan MoveRequest
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	decided       chan decisionResult
	stop          chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	doneOnce      sync.Once

	// decisionCtx parents every in-flight Decide call.
	decisionCtx    context.Context
	cancelDecision context.CancelFunc
	decisionWG     sync.WaitGroup
	nextTaskID     uint64

	decisionLog DecisionLogger

	counters decisionCounters
	snapshot atomic.Pointer[StateSnapshot]
	metrics  atomic.Value
}

func New(cfg WorldConfig, opts Options) (*World, error) {
	cfg.applyDefaults()
	if opts.Store == nil {
		return nil, fmt.Errorf("world %s: nil wiki store", cfg.ID)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	w := &World{
		cfg:           cfg,
		log:           log.Named("world").With(zap.String("world_id", cfg.ID)),
		store:         opts.Store,
		minds:         opts.Minds,
		now:           now,
		rng:           rand.New(rand.NewPCG(seed, seed>>1|1)),
		agents:        map[string]*Agent{},
		deciders:      map[string]Decider{},
		tasks:         map[string]*decisionTask{},
		observers:     map[string]chan []byte{},
		join:          make(chan JoinRequest, 64),
		leave:         make(chan string, 64),
		move:          make(chan MoveRequest, 1024),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerLeave: make(chan string, 64),
		decided:       make(chan decisionResult, 1024),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		decisionLog:   opts.DecisionLog,
	}
	if w.minds == nil {
		w.minds = w.fallbackMinds
	}
	w.decisionCtx, w.cancelDecision = context.WithCancel(context.Background())
	w.snapshot.Store(&StateSnapshot{Agents: map[string]protocol.AgentState{}, CreatedAt: map[string]time.Time{}})
	return w, nil
}

// fallbackMinds gives every agent a model-less mind.
func (w *World) fallbackMinds(_, name string) Decider {
	return mind.New(name, nil, mind.Config{
		Fallback: mind.FallbackConfig{
			Width:         w.cfg.Width,
			Height:        w.cfg.Height,
			PMove:         0.3,
			PWrite:        0.1,
			WriteCooldown: 5,
		},
	}, w.log)
}

func (w *World) SetDecisionLogger(l DecisionLogger) { w.decisionLog = l }

func (w *World) Join() chan<- JoinRequest                 { return w.join }
func (w *World) Leave() chan<- string                     { return w.leave }
func (w *World) Move() chan<- MoveRequest                 { return w.move }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) TickRateHz() int     { return w.cfg.TickRateHz }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }
func (w *World) Config() WorldConfig { return w.cfg }

// State returns the snapshot published at the end of the last tick. Safe from any goroutine.
func (w *World) State() StateSnapshot { return *w.snapshot.Load() }

// CreateAgent places a new agent at a uniformly random position, idle. Must be
// called from the goroutine that owns the world.
func (w *World) CreateAgent(id, name, color string, c Controller) (*Agent, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := w.agents[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, id)
	}
	if name == "" {
		name = "Agent-" + shortID(id)
	}
	if color == "" {
		color = w.randomColor()
	}
	a := &Agent{
		ID:         id,
		Name:       name,
		Color:      color,
		Pos:        Vec2{X: w.rng.Float64() * w.cfg.Width, Y: w.rng.Float64() * w.cfg.Height},
		Speed:      w.cfg.AgentSpeed,
		Status:     StatusIdle,
		Controller: c,
		CreatedAt:  w.now(),
	}
	w.agents[id] = a
	if c == ControllerAutonomous {
		w.deciders[id] = w.minds(id, name)
	}
	w.log.Info("agent created", zap.String("agent_id", id), zap.String("name", name), zap.Stringer("controller", c))
	return a, nil
}

// RemoveAgent is idempotent. A decision still running for the agent is discarded
// when it comes back.
func (w *World) RemoveAgent(id string) {
	if _, ok := w.agents[id]; !ok {
		return
	}
	if t := w.tasks[id]; t != nil && t.state == TaskPending && t.cancel != nil {
		t.cancel()
	}
	delete(w.agents, id)
	delete(w.deciders, id)
	delete(w.observers, id)
	w.log.Info("agent removed", zap.String("agent_id", id))
}

// MoveAgent sets a clamped target; unknown ids are ignored.
func (w *World) MoveAgent(id string, target Vec2) {
	a := w.agents[id]
	if a == nil {
		return
	}
	t := clampToWorld(target, w.cfg)
	a.setTarget(&t)
}

func (w *World) Agent(id string) (protocol.AgentState, bool) {
	a := w.agents[id]
	if a == nil {
		return protocol.AgentState{}, false
	}
	return a.Public(), true
}

var palette = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#008080"}

func (w *World) randomColor() string { return palette[w.rng.IntN(len(palette))] }

func shortID(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}
