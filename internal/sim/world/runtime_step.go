package world

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []string, moves []MoveRequest, results []decisionResult) {
	stepStart := time.Now()

	// Leaves before joins so a reconnect under the same id works within one tick.
	for _, id := range leaves {
		w.RemoveAgent(id)
	}
	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, m := range moves {
		w.MoveAgent(m.AgentID, m.Target)
	}
	for _, res := range results {
		w.applyDecision(res)
	}

	w.Tick()
	nowTick := w.tick.Add(1)
	if nowTick%uint64(w.cfg.DecisionEveryTicks) == 0 {
		w.RunDecisionCycle()
	}

	snap := w.StateSnapshot()
	w.snapshot.Store(&snap)
	w.broadcast(snap)

	w.storeMetrics(nowTick, float64(time.Since(stepStart).Microseconds())/1000.0)
}

func (w *World) handleJoin(req JoinRequest) {
	a, err := w.CreateAgent(req.ID, req.Name, req.Color, req.Controller)
	var resp JoinResponse
	if err != nil {
		if !errors.Is(err, ErrAgentExists) {
			w.log.Error("join failed", zap.Error(err))
		}
		resp.Err = err
	} else {
		resp.Agent = a.Public()
		if req.Out != nil {
			w.observers[a.ID] = req.Out
		}
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}
