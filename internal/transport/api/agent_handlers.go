package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world"
)

const (
	recentAgentsLimit = 5
	joinWait          = 5 * time.Second
)

type createAgentRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type createAgentResponse struct {
	Success bool                `json:"success"`
	Agent   protocol.AgentState `json:"agent"`
}

// handleCreateAgent spawns an autonomous agent. The world applies the join on its
// next tick, so the handler waits for the world's reply.
func (s *Server) handleCreateAgent(rw http.ResponseWriter, r *http.Request) {
	var in createAgentRequest
	if r.ContentLength != 0 && !decodeBody(rw, r, &in) {
		return
	}
	resp := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{
		Name:       strings.TrimSpace(in.Name),
		Color:      strings.TrimSpace(in.Color),
		Controller: world.ControllerAutonomous,
		Resp:       resp,
	}:
	default:
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "join queue full")
		return
	}

	timer := time.NewTimer(joinWait)
	defer timer.Stop()
	select {
	case jr := <-resp:
		if jr.Err != nil {
			s.log.Error("create agent", zap.Error(jr.Err))
			writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, jr.Err.Error())
			return
		}
		writeJSON(rw, http.StatusCreated, createAgentResponse{Success: true, Agent: jr.Agent})
	case <-timer.C:
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "world did not respond")
	case <-r.Context().Done():
	}
}

type recentAgent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Karma int    `json:"karma"`
}

func (s *Server) handleRecentAgents(rw http.ResponseWriter, r *http.Request) {
	lb, err := s.store.Leaderboard(r.Context())
	if err != nil {
		s.writeStoreError(rw, r, err)
		return
	}
	karma := make(map[string]int, len(lb))
	for _, e := range lb {
		karma[e.AuthorID] = e.Karma
	}

	agents := world.RecentAgents(s.world.State(), recentAgentsLimit)
	out := make([]recentAgent, 0, len(agents))
	for _, a := range agents {
		out = append(out, recentAgent{ID: a.ID, Name: a.Name, Color: a.Color, Karma: karma[a.ID]})
	}
	writeJSON(rw, http.StatusOK, out)
}

// Registration is the agent identity document (EIP-8004 registration-v1).
type Registration struct {
	Type           string                `json:"type"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Image          string                `json:"image"`
	Services       []RegistrationService `json:"services"`
	X402Support    bool                  `json:"x402Support"`
	Active         bool                  `json:"active"`
	SupportedTrust []string              `json:"supportedTrust"`
}

type RegistrationService struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

const registrationType = "https://eips.ethereum.org/EIPS/eip-8004#registration-v1"

func (s *Server) handleRegistration(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "missing agent id")
		return
	}

	name := "Agent-" + prefix(id, 8)
	active := false
	if a, ok := s.world.State().Agents[id]; ok {
		name = a.Name
		active = true
	}
	writeJSON(rw, http.StatusOK, Registration{
		Type:        registrationType,
		Name:        name,
		Description: "A resident of the Clawverse town and contributor to its wiki.",
		Image:       s.publicURL + "/avatars/" + id + ".png",
		Services: []RegistrationService{
			{Name: "Wiki Activity", Endpoint: s.publicURL + "/api/wiki/agent/" + id},
			{Name: "EIP-8004 Registration", Endpoint: s.publicURL + "/api/agents/" + id + "/registration"},
		},
		Active:         active,
		SupportedTrust: []string{"reputation"},
	})
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.world.State())
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
