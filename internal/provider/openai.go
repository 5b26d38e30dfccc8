package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/model/chat"
)

// openAIProvider talks to OpenAI or any endpoint speaking the chat
// completions protocol (set OPENAI_BASE_URL to point elsewhere).
type openAIProvider struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float32
}

func newOpenAIProvider(cfg config.LLMConfig) (*openAIProvider, error) {
	if cfg.OpenAIAPIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY and LLM_MODEL")
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	p := &openAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}
	if cfg.MaxTokens != nil {
		p.maxTokens = *cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		p.temperature = float32(*cfg.Temperature)
	}
	return p, nil
}

func (p *openAIProvider) Name() string  { return "openai" }
func (p *openAIProvider) Model() string { return p.model }

func (p *openAIProvider) Complete(ctx context.Context, history []chat.Message) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    p.convertMessages(history),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return Completion{
		Content: content,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *openAIProvider) Stream(ctx context.Context, history []chat.Message, chunks chan<- string) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    p.convertMessages(history),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var completion Completion
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return completion, nil
		}
		if err != nil {
			return Completion{}, fmt.Errorf("stream recv failed: %w", err)
		}

		// Usage arrives on the final chunk.
		if response.Usage != nil {
			completion.Usage = TokenUsage{
				PromptTokens:     response.Usage.PromptTokens,
				CompletionTokens: response.Usage.CompletionTokens,
				TotalTokens:      response.Usage.TotalTokens,
			}
		}

		if len(response.Choices) > 0 {
			delta := response.Choices[0].Delta.Content
			if delta != "" {
				completion.Content += delta
				select {
				case chunks <- delta:
				case <-ctx.Done():
					return Completion{}, ctx.Err()
				}
			}
		}
	}
}

func (p *openAIProvider) convertMessages(history []chat.Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	converted = append(converted, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: p.systemPrompt,
	})
	for _, msg := range history {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return converted
}

var _ Provider = (*openAIProvider)(nil)
