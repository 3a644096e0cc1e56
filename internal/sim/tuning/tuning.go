package tuning

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	DecisionEveryTicks int `yaml:"decision_every_ticks"`

	World World `yaml:"world"`
	Mind  Mind  `yaml:"mind"`
	LLM   LLM   `yaml:"llm"`
}

type World struct {
	Width        float64 `yaml:"width"`
	Height       float64 `yaml:"height"`
	AgentSpeed   float64 `yaml:"agent_speed"`
	NearbyRadius float64 `yaml:"nearby_radius"`
	NearbyMax    int     `yaml:"nearby_max"`
}

type Mind struct {
	MemoryCapacity  int           `yaml:"memory_capacity"`
	PromptMemories  int           `yaml:"prompt_memories"`
	DecisionTimeout time.Duration `yaml:"decision_timeout"`
	FallbackPMove   float64       `yaml:"fallback_p_move"`
	FallbackPWrite  float64       `yaml:"fallback_p_write"`
	WriteCooldown   int           `yaml:"write_cooldown"`
}

type LLM struct {
	// Provider is one of auto, openai, anthropic, gemini, mock.
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         30,
		DecisionEveryTicks: 150,
		World: World{
			Width:        800,
			Height:       600,
			AgentSpeed:   2,
			NearbyRadius: 200,
			NearbyMax:    8,
		},
		Mind: Mind{
			MemoryCapacity:  50,
			PromptMemories:  5,
			DecisionTimeout: 20 * time.Second,
			FallbackPMove:   0.3,
			FallbackPWrite:  0.1,
			WriteCooldown:   5,
		},
		LLM: LLM{
			Provider:  "auto",
			MaxTokens: 512,
		},
	}
}

// Load overlays the YAML file at path on Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// LoadOrDefault is Load, except that a missing file yields Defaults.
func LoadOrDefault(path string) (Tuning, error) {
	t, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	return t, err
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be positive")
	case t.DecisionEveryTicks <= 0:
		return fmt.Errorf("decision_every_ticks must be positive")
	case t.World.Width <= 0 || t.World.Height <= 0:
		return fmt.Errorf("world size must be positive")
	case t.World.AgentSpeed <= 0:
		return fmt.Errorf("agent_speed must be positive")
	case t.Mind.MemoryCapacity <= 0:
		return fmt.Errorf("memory_capacity must be positive")
	case t.Mind.FallbackPMove < 0 || t.Mind.FallbackPMove > 1 || t.Mind.FallbackPWrite < 0 || t.Mind.FallbackPWrite > 1:
		return fmt.Errorf("fallback probabilities must be within [0,1]")
	}
	switch t.LLM.Provider {
	case "", "auto", "openai", "anthropic", "gemini", "mock":
	default:
		return fmt.Errorf("unknown llm provider %q", t.LLM.Provider)
	}
	return nil
}
