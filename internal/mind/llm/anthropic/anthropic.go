// Package anthropic adapts the Anthropic Messages API to mind.Model.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultModel = "claude-3-5-haiku-latest"

type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

type Model struct {
	client *anthropic.Client
	opts   Options
}

func New(opts Options) (*Model, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic: missing api key")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}, nil
}

func (m *Model) Name() string { return "anthropic/" + m.opts.Model }

func (m *Model) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.opts.Model),
		MaxTokens: m.opts.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic: empty response")
	}
	return sb.String(), nil
}
