// Package openai adapts the OpenAI chat completions API to mind.Model.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultModel = "gpt-4o-mini"

type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

type Model struct {
	client *openai.Client
	opts   Options
}

func New(opts Options) (*Model, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: missing api key")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}, nil
}

func (m *Model) Name() string { return "openai/" + m.opts.Model }

func (m *Model) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: m.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	}
	if m.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(m.opts.MaxTokens)
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
