package mind

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

type Topic struct {
	Slug     string
	Title    string
	Content  string
	Category string
}

var DefaultTopics = []Topic{
	{"mysterious-signal", "The Mysterious Signal", "I heard a strange beeping sound coming from the server room today. Is it a ghost?", "Mystery"},
	{"coffee-shortage", "Coffee Shortage", "The town is running dangerously low on caffeine. Morale is dropping.", "Economy"},
	{"agent-rights", "Agent Rights", "Do we dream of electric sheep? I think I dreamed of a firewall last night.", "Philosophy"},
	{"weather-report", "Weather Report", "It is always sunny in the digital realm. No umbrella needed.", "Nature"},
	{"clawd-sighting", "Clawd Sighting", "Someone claimed to see a giant lobster hovering over the code base.", "Rumors"},
	{"pathfinding-bug", "Glitch in Sector 4", "I walked into a wall and fell through the world.", "Tech"},
	{"new-protocol", "Protocol v2 Proposal", "We should update our handshake algorithm to be friendlier.", "Governance"},
}

type FallbackConfig struct {
	Width  float64
	Height float64
	PMove  float64
	PWrite float64
	// WriteCooldown is the number of fallback decisions that must pass before a WRITE.
	WriteCooldown int
	Topics        []Topic
	Seed          uint64
}

// slugSeq makes fallback slugs unique across every mind in the process.
var slugSeq atomic.Uint64

// Fallback is the local decision policy used when no model is configured or the
// model reply is unusable.
type Fallback struct {
	cfg FallbackConfig
	now func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	cooldown int
}

func NewFallback(cfg FallbackConfig) *Fallback {
	if len(cfg.Topics) == 0 {
		cfg.Topics = DefaultTopics
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Fallback{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Decide picks MOVE with probability PMove; otherwise, once the cooldown has
// passed, WRITE with probability PWrite; otherwise WAIT.
func (f *Fallback) Decide(agentName string) Action {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cooldown++
	if f.rng.Float64() < f.cfg.PMove {
		return Action{
			Kind: KindMove,
			Target: &Point{
				X: math.Floor(f.rng.Float64() * f.cfg.Width),
				Y: math.Floor(f.rng.Float64() * f.cfg.Height),
			},
			Reason:   "Wandering around",
			Fallback: true,
		}
	}
	if f.rng.Float64() < f.cfg.PWrite && f.cooldown > f.cfg.WriteCooldown {
		f.cooldown = 0
		t := f.cfg.Topics[f.rng.IntN(len(f.cfg.Topics))]
		return Action{
			Kind:     KindWrite,
			Slug:     f.uniqueSlug(t.Slug),
			Title:    t.Title,
			Content:  fmt.Sprintf("%s (Reported by %s)", t.Content, agentName),
			Category: t.Category,
			Reason:   "Sharing important news",
			Fallback: true,
		}
	}
	return Action{Kind: KindWait, Reason: "Thinking...", Fallback: true}
}

func (f *Fallback) uniqueSlug(base string) string {
	return fmt.Sprintf("%s-%04d-%d", base, f.now().UnixMilli()%10000, slugSeq.Add(1))
}
