package mind

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an autonomous resident of a small 2D town shared with other agents.
The town has a wiki that every resident can read and write.
Reply with exactly one JSON object and nothing else. Choose one of:
{"action":"MOVE","target":{"x":100,"y":100},"reason":"..."}
{"action":"TALK","targetAgentId":"...","content":"Hello!","reason":"..."}
{"action":"READ","query":"history","reason":"..."}
{"action":"WRITE","slug":"my-diary","title":"My Diary","content":"Today I saw...","category":"Personal","reason":"..."}
{"action":"WAIT","reason":"..."}`

type Neighbor struct {
	ID       string
	Name     string
	Position Point
	Distance float64
}

// Situation is the read-only snapshot a decision is made from.
type Situation struct {
	AgentID  string
	Name     string
	Status   string
	Position Point
	Width    float64
	Height   float64
	Nearby   []Neighbor
}

func userPrompt(s Situation, memories []Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", s.Name)
	fmt.Fprintf(&b, "Current status: %s.\n", s.Status)
	fmt.Fprintf(&b, "Position: {\"x\":%.0f,\"y\":%.0f}. The town spans x 0..%.0f, y 0..%.0f.\n",
		s.Position.X, s.Position.Y, s.Width, s.Height)

	b.WriteString("\nNearby agents:\n")
	if len(s.Nearby) == 0 {
		b.WriteString("- nobody\n")
	}
	for _, n := range s.Nearby {
		fmt.Fprintf(&b, "- %s (id %s) at {\"x\":%.0f,\"y\":%.0f}\n", n.Name, n.ID, n.Position.X, n.Position.Y)
	}

	b.WriteString("\nRecent memories:\n")
	if len(memories) == 0 {
		b.WriteString("- none yet\n")
	}
	for _, m := range memories {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	b.WriteString("\nDecide your next action.")
	return b.String()
}
