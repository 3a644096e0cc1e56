package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"clawverse.ai/internal/mind"
	"clawverse.ai/internal/mind/llm/anthropic"
	"clawverse.ai/internal/mind/llm/gemini"
	"clawverse.ai/internal/mind/llm/openai"
	"clawverse.ai/internal/sim/tuning"
)

// chooseModel resolves the configured provider against the API keys in the
// environment. A nil Model means every agent runs on the fallback policy.
func chooseModel(ctx context.Context, cfg tuning.LLM) (mind.Model, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == "auto" {
		switch {
		case os.Getenv("OPENAI_API_KEY") != "":
			provider = "openai"
		case os.Getenv("ANTHROPIC_API_KEY") != "":
			provider = "anthropic"
		case geminiKey() != "":
			provider = "gemini"
		default:
			provider = "mock"
		}
	}

	switch provider {
	case "mock":
		return nil, nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("llm provider openai needs OPENAI_API_KEY")
		}
		return openai.New(openai.Options{
			APIKey:    key,
			BaseURL:   os.Getenv("OPENAI_BASE_URL"),
			Model:     cfg.Model,
			MaxTokens: int64(cfg.MaxTokens),
		})
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("llm provider anthropic needs ANTHROPIC_API_KEY")
		}
		return anthropic.New(anthropic.Options{
			APIKey:    key,
			BaseURL:   os.Getenv("ANTHROPIC_BASE_URL"),
			Model:     cfg.Model,
			MaxTokens: int64(cfg.MaxTokens),
		})
	case "gemini":
		key := geminiKey()
		if key == "" {
			return nil, fmt.Errorf("llm provider gemini needs GEMINI_API_KEY")
		}
		return gemini.New(ctx, gemini.Options{
			APIKey:    key,
			Model:     cfg.Model,
			MaxTokens: int32(cfg.MaxTokens),
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func geminiKey() string {
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("GOOGLE_API_KEY")
}
