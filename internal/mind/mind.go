// Package mind turns an agent's situation and memories into its next action,
// asking a language model when one is configured and falling back to a local
// random policy otherwise.
package mind

import (
	"context"

	"go.uber.org/zap"
)

// Model is a text completion backend that answers with a JSON object.
type Model interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	MemoryCapacity int
	PromptMemories int
	Fallback       FallbackConfig
}

type Mind struct {
	agentName      string
	model          Model
	memory         *Memory
	fallback       *Fallback
	promptMemories int
	log            *zap.Logger
}

// New builds a mind for one agent. A nil model means every decision uses the
// fallback policy.
func New(agentName string, model Model, cfg Config, log *zap.Logger) *Mind {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PromptMemories <= 0 {
		cfg.PromptMemories = 5
	}
	return &Mind{
		agentName:      agentName,
		model:          model,
		memory:         NewMemory(cfg.MemoryCapacity),
		fallback:       NewFallback(cfg.Fallback),
		promptMemories: cfg.PromptMemories,
		log:            log.Named("mind").With(zap.String("agent", agentName)),
	}
}

func (m *Mind) Remember(observation string) { m.memory.Remember(observation) }

func (m *Mind) Memory() *Memory { return m.memory }

// Decide never fails: model errors and unusable replies yield a fallback action.
func (m *Mind) Decide(ctx context.Context, s Situation) Action {
	if m.model == nil {
		return m.fallback.Decide(m.agentName)
	}
	reply, err := m.model.Complete(ctx, systemPrompt, userPrompt(s, m.memory.Recent(m.promptMemories)))
	if err != nil {
		m.log.Warn("model call failed, using fallback", zap.String("model", m.model.Name()), zap.Error(err))
		return m.fallback.Decide(m.agentName)
	}
	a, err := ParseAction(reply)
	if err != nil {
		m.log.Warn("unusable model reply, using fallback", zap.String("model", m.model.Name()), zap.Error(err))
		return m.fallback.Decide(m.agentName)
	}
	return a
}
