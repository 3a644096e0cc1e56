package api

import (
	"fmt"
	"io"
	"net/http"
)

// handleMetrics writes a minimal Prometheus exposition.
func (s *Server) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	m := s.world.Metrics()
	id := s.world.ID()
	tick := s.world.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge(rw, "clawverse_world_tick", "Current world tick.")
	fmt.Fprintf(rw, "clawverse_world_tick{world=%q} %d\n", id, tick)

	gauge(rw, "clawverse_world_agents", "Agents in the world by controller.")
	fmt.Fprintf(rw, "clawverse_world_agents{world=%q,controller=%q} %d\n", id, "autonomous", m.Autonomous)
	fmt.Fprintf(rw, "clawverse_world_agents{world=%q,controller=%q} %d\n", id, "session", m.Agents-m.Autonomous)

	gauge(rw, "clawverse_world_observers", "Subscribed state observers.")
	fmt.Fprintf(rw, "clawverse_world_observers{world=%q} %d\n", id, m.Observers)

	gauge(rw, "clawverse_decisions_in_flight", "Decisions currently awaiting a result.")
	fmt.Fprintf(rw, "clawverse_decisions_in_flight{world=%q} %d\n", id, m.InFlightDecisions)

	counter(rw, "clawverse_decisions_total", "Decisions by outcome.")
	fmt.Fprintf(rw, "clawverse_decisions_total{world=%q,outcome=%q} %d\n", id, "started", m.DecisionsStarted)
	fmt.Fprintf(rw, "clawverse_decisions_total{world=%q,outcome=%q} %d\n", id, "applied", m.DecisionsApplied)
	fmt.Fprintf(rw, "clawverse_decisions_total{world=%q,outcome=%q} %d\n", id, "discarded", m.DecisionsDiscard)
	fmt.Fprintf(rw, "clawverse_decisions_total{world=%q,outcome=%q} %d\n", id, "failed", m.DecisionsFailed)

	counter(rw, "clawverse_decision_overruns_total", "Decision cycles skipped because the previous decision was still running.")
	fmt.Fprintf(rw, "clawverse_decision_overruns_total{world=%q} %d\n", id, m.SkippedOverruns)

	gauge(rw, "clawverse_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(rw, "clawverse_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "clawverse_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "clawverse_world_queue_depth{world=%q,queue=%q} %d\n", id, "move", m.QueueDepths.Move)
	fmt.Fprintf(rw, "clawverse_world_queue_depth{world=%q,queue=%q} %d\n", id, "decided", m.QueueDepths.Decided)

	gauge(rw, "clawverse_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(rw, "clawverse_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	s.writeMirrorMetrics(rw)
}

func (s *Server) writeMirrorMetrics(w io.Writer) {
	if s.mirror == nil {
		return
	}
	st := s.mirror.Stats()
	gauge(w, "clawverse_mirror_queue_depth", "Archives waiting for upload.")
	fmt.Fprintf(w, "clawverse_mirror_queue_depth %d\n", st.Pending)
	gauge(w, "clawverse_mirror_queue_capacity", "Archive mirror queue capacity.")
	fmt.Fprintf(w, "clawverse_mirror_queue_capacity %d\n", st.Capacity)
	counter(w, "clawverse_mirror_accepted_total", "Archives accepted for upload.")
	fmt.Fprintf(w, "clawverse_mirror_accepted_total %d\n", st.Accepted)
	counter(w, "clawverse_mirror_dropped_total", "Archives dropped because the mirror queue stayed saturated.")
	fmt.Fprintf(w, "clawverse_mirror_dropped_total %d\n", st.Dropped)
	counter(w, "clawverse_mirror_skipped_total", "Archives outside the data directory.")
	fmt.Fprintf(w, "clawverse_mirror_skipped_total %d\n", st.Skipped)
	counter(w, "clawverse_mirror_uploaded_total", "Archives uploaded.")
	fmt.Fprintf(w, "clawverse_mirror_uploaded_total %d\n", st.Uploaded)
	counter(w, "clawverse_mirror_failed_total", "Archive uploads that failed after retry.")
	fmt.Fprintf(w, "clawverse_mirror_failed_total %d\n", st.Failed)
	counter(w, "clawverse_mirror_retries_total", "Archive upload retries.")
	fmt.Fprintf(w, "clawverse_mirror_retries_total %d\n", st.Retries)
	if !st.LastUpload.IsZero() {
		gauge(w, "clawverse_mirror_last_upload_unix", "Unix time of the last successful upload.")
		fmt.Fprintf(w, "clawverse_mirror_last_upload_unix %d\n", st.LastUpload.Unix())
	}
}

func gauge(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
}

func counter(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
}
