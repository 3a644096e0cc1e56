package world

import (
	"time"

	"clawverse.ai/internal/mind"
	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world/logic/movement"
)

type Vec2 = movement.Vec

type Status string

const (
	StatusIdle   Status = "idle"
	StatusMoving Status = "moving"
)

// Controller says who drives an agent. It is fixed at creation.
type Controller int

const (
	// ControllerSession agents follow MOVE_TO messages from a connected client.
	ControllerSession Controller = iota
	// ControllerAutonomous agents are driven by a Decider on the decision cadence.
	ControllerAutonomous
)

func (c Controller) String() string {
	if c == ControllerAutonomous {
		return "autonomous"
	}
	return "session"
}

type Agent struct {
	ID         string
	Name       string
	Color      string
	Pos        Vec2
	Target     *Vec2
	Speed      float64
	Status     Status
	Controller Controller
	CreatedAt  time.Time

	LastAction mind.Kind
	LastSay    string
	LastReason string
}

// setTarget keeps Status == Moving exactly when Target is set.
func (a *Agent) setTarget(t *Vec2) {
	a.Target = t
	if t == nil {
		a.Status = StatusIdle
	} else {
		a.Status = StatusMoving
	}
}

func (a *Agent) Public() protocol.AgentState {
	s := protocol.AgentState{
		ID:         a.ID,
		Name:       a.Name,
		Position:   protocol.Vec2{X: a.Pos.X, Y: a.Pos.Y},
		Color:      a.Color,
		Status:     string(a.Status),
		Controller: a.Controller.String(),
		LastAction: string(a.LastAction),
		Say:        a.LastSay,
	}
	if a.Target != nil {
		s.Target = &protocol.Vec2{X: a.Target.X, Y: a.Target.Y}
	}
	return s
}
