// Package gemini adapts the Google GenAI API to mind.Model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int32
}

type Model struct {
	client *genai.Client
	opts   Options
}

func New(ctx context.Context, opts Options) (*Model, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Model{client: client, opts: opts}, nil
}

func (m *Model) Name() string { return "gemini/" + m.opts.Model }

func (m *Model) Complete(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
	}
	if m.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = m.opts.MaxTokens
	}
	resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini: empty response")
	}
	return sb.String(), nil
}
