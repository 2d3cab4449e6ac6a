// Package openai adapts the OpenAI Chat Completions API to model.Model.
// BaseURL points the adapter at any OpenAI compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/fragmesh/model"
)

// Options configures the adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// Seed requests best-effort deterministic sampling when non-zero.
	Seed    int64
	BaseURL string
	APIKey  string
}

// Model is an OpenAI backed oracle.
type Model struct {
	client *openai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// NewModel creates a client from the options. Without APIKey the SDK reads
// OPENAI_API_KEY.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns)
	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient wraps an existing client. APIKey and BaseURL are
// ignored.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns)}
}

// Generate implements model.Model. Streamed requests emit one partial
// response per delta followed by the accumulated text.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		var err error
		if req.Stream {
			err = m.stream(ctx, m.params(req), out)
		} else {
			err = m.complete(ctx, m.params(req), out)
		}
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

func (m *Model) params(req model.Request) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if m.opts.Seed != 0 {
		p.Seed = openai.Int(m.opts.Seed)
	}
	return p
}

// buildMessages maps instructions to a leading system message. Empty user
// turns are dropped.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		switch {
		case msg.Role == model.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		case msg.Role == model.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		case msg.Content != "":
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}
	return msgs
}

func (m *Model) complete(ctx context.Context, p openai.ChatCompletionNewParams, out chan<- model.Response) error {
	resp, err := m.client.Chat.Completions.New(ctx, p)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("openai: response has no choices")
	}
	choice := resp.Choices[0]
	out <- model.Response{
		ID:           resp.ID,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	return nil
}

func (m *Model) stream(ctx context.Context, p openai.ChatCompletionNewParams, out chan<- model.Response) error {
	s := m.client.Chat.Completions.NewStreaming(ctx, p)
	defer s.Close()

	var text strings.Builder
	for s.Next() {
		chunk := s.Current()
		for _, choice := range chunk.Choices {
			if d := choice.Delta.Content; d != "" {
				text.WriteString(d)
				out <- model.Response{ID: chunk.ID, Partial: true, Text: d}
			}
			if choice.FinishReason != "" {
				out <- model.Response{ID: chunk.ID, Text: text.String(), FinishReason: choice.FinishReason}
			}
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

// Info reports the model name and the "openai" provider.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai"}
}
