package world

import (
	"sort"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world/logic/movement"
)

// WorldMetrics is a read-only view of runtime signals, published by the world
// goroutine at the end of every tick and safe to read from HTTP handlers.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents     int `json:"agents"`
	Autonomous int `json:"autonomous"`
	Observers  int `json:"observers"`

	InFlightDecisions int    `json:"in_flight_decisions"`
	DecisionsStarted  uint64 `json:"decisions_started"`
	DecisionsApplied  uint64 `json:"decisions_applied"`
	DecisionsDiscard  uint64 `json:"decisions_discarded"`
	DecisionsFailed   uint64 `json:"decisions_failed"`
	SkippedOverruns   uint64 `json:"skipped_overruns"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Join    int `json:"join"`
	Leave   int `json:"leave"`
	Move    int `json:"move"`
	Decided int `json:"decided"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, ok := w.metrics.Load().(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(tick uint64, stepMS float64) {
	inFlight := 0
	for _, t := range w.tasks {
		if t.state == TaskPending {
			inFlight++
		}
	}
	w.metrics.Store(WorldMetrics{
		Tick:              tick,
		Agents:            len(w.agents),
		Autonomous:        len(w.deciders),
		Observers:         len(w.observers),
		InFlightDecisions: inFlight,
		DecisionsStarted:  w.counters.started,
		DecisionsApplied:  w.counters.applied,
		DecisionsDiscard:  w.counters.discarded,
		DecisionsFailed:   w.counters.failed,
		SkippedOverruns:   w.counters.overruns,
		QueueDepths: QueueDepths{
			Join:    len(w.join),
			Leave:   len(w.leave),
			Move:    len(w.move),
			Decided: len(w.decided),
		},
		StepMS: stepMS,
	})
}

// RecentAgents returns up to n agents from s, most recently created first.
func RecentAgents(s StateSnapshot, n int) []protocol.AgentState {
	out := make([]protocol.AgentState, 0, len(s.Agents))
	for _, a := range s.Agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := s.CreatedAt[out[i].ID], s.CreatedAt[out[j].ID]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func clampToWorld(v Vec2, cfg WorldConfig) Vec2 {
	return movement.Clamp(v, cfg.Width, cfg.Height)
}
