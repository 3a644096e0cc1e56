package world

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world/logic/movement"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.finish()
	defer w.Close()

	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingMoves []MoveRequest
	var pendingResults []decisionResult

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.move:
			pendingMoves = append(pendingMoves, req)
		case req := <-w.observerJoin:
			w.observers[req.ID] = req.Out
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case res := <-w.decided:
			pendingResults = append(pendingResults, res)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingMoves, pendingResults)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingMoves = pendingMoves[:0]
			pendingResults = pendingResults[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Done is closed once Run has returned. Requests sent after that are never read.
func (w *World) Done() <-chan struct{} { return w.done }

// finish closes every registered observer stream so readers see the world end.
func (w *World) finish() {
	w.doneOnce.Do(func() {
		for id, ch := range w.observers {
			close(ch)
			delete(w.observers, id)
		}
		close(w.done)
	})
}

// Close cancels in-flight decisions and waits for their goroutines.
func (w *World) Close() {
	w.cancelDecision()
	w.decisionWG.Wait()
}

// StepOnce advances one tick from the calling goroutine, applying every decision
// result that has already arrived. Used by tests and tools that drive the world
// without Run.
func (w *World) StepOnce() uint64 {
	var results []decisionResult
	for {
		select {
		case res := <-w.decided:
			results = append(results, res)
			continue
		default:
		}
		break
	}
	w.stepInternal(nil, nil, nil, results)
	return w.tick.Load()
}

// Tick advances every moving agent one step toward its target.
func (w *World) Tick() {
	for _, a := range w.agents {
		if a.Target == nil {
			continue
		}
		next, arrived := movement.Step(a.Pos, *a.Target, a.Speed)
		a.Pos = next
		if arrived {
			a.setTarget(nil)
		}
	}
}

// StateSnapshot builds a fresh copy of the public state.
func (w *World) StateSnapshot() StateSnapshot {
	agents := make(map[string]protocol.AgentState, len(w.agents))
	created := make(map[string]time.Time, len(w.agents))
	for id, a := range w.agents {
		agents[id] = a.Public()
		created[id] = a.CreatedAt
	}
	return StateSnapshot{Tick: w.tick.Load(), Agents: agents, CreatedAt: created}
}

func (w *World) broadcast(s StateSnapshot) {
	if len(w.observers) == 0 {
		return
	}
	b, err := json.Marshal(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            s.Tick,
		Agents:          s.Agents,
	})
	if err != nil {
		w.log.Error("encode state", zap.Error(err))
		return
	}
	for _, out := range w.observers {
		sendLatest(out, b)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
