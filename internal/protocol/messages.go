package protocol

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AgentState is the public view of one agent. Decision internals (memories,
// in-flight requests) are never part of it.
type AgentState struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Position   Vec2   `json:"position"`
	Color      string `json:"color"`
	Status     string `json:"status"`
	Controller string `json:"controller"`
	Target     *Vec2  `json:"target,omitempty"`
	LastAction string `json:"last_action,omitempty"`
	Say        string `json:"say,omitempty"`
}

// JOIN (client -> server)
type JoinMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Name            string `json:"name"`
	Color           string `json:"color,omitempty"`
}

// MY_AGENT (server -> client)
type MyAgentMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Agent           AgentState `json:"agent"`
}

// STATE (server -> client), pushed every tick.
type StateMsg struct {
	Type            string                `json:"type"`
	ProtocolVersion string                `json:"protocol_version"`
	Tick            uint64                `json:"tick"`
	Agents          map[string]AgentState `json:"agents"`
}

// MOVE_TO (client -> server)
type MoveToMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Target          Vec2   `json:"target"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
