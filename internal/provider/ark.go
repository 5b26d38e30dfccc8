package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/model/chat"
)

// arkProvider drives a Volcengine Ark chat model through an eino chain:
// system prompt, prior turns as a history placeholder, current user message
// as the query.
type arkProvider struct {
	model        string
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
}

func newArkProvider(ctx context.Context, cfg config.LLMConfig) (*arkProvider, error) {
	chatModel, err := cfg.NewArkChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &arkProvider{
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		chain:        runnable,
	}, nil
}

func (p *arkProvider) Name() string  { return "ark" }
func (p *arkProvider) Model() string { return p.model }

func (p *arkProvider) Complete(ctx context.Context, history []chat.Message) (Completion, error) {
	input, err := p.chainInput(history)
	if err != nil {
		return Completion{}, err
	}

	response, err := p.chain.Invoke(ctx, input)
	if err != nil {
		return Completion{}, fmt.Errorf("ark completion failed: %w", err)
	}
	return Completion{Content: response.Content, Usage: usageFromMeta(response)}, nil
}

func (p *arkProvider) Stream(ctx context.Context, history []chat.Message, chunks chan<- string) (Completion, error) {
	input, err := p.chainInput(history)
	if err != nil {
		return Completion{}, err
	}

	stream, err := p.chain.Stream(ctx, input)
	if err != nil {
		return Completion{}, fmt.Errorf("ark stream failed: %w", err)
	}
	defer stream.Close()

	collected := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return Completion{}, fmt.Errorf("ark stream recv failed: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		collected = append(collected, chunk)
		if chunk.Content != "" {
			select {
			case chunks <- chunk.Content:
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			}
		}
	}

	response, err := schema.ConcatMessages(collected)
	if err != nil {
		return Completion{}, fmt.Errorf("ark stream concat failed: %w", err)
	}
	return Completion{Content: response.Content, Usage: usageFromMeta(response)}, nil
}

// chainInput splits history into prior turns and the current query the way
// the prompt template expects.
func (p *arkProvider) chainInput(history []chat.Message) (map[string]any, error) {
	if len(history) == 0 {
		return nil, errors.New("empty history")
	}

	last := history[len(history)-1]
	prior := make([]*schema.Message, 0, len(history)-1)
	for _, msg := range history[:len(history)-1] {
		switch msg.Role {
		case chat.RoleUser:
			prior = append(prior, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			prior = append(prior, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return map[string]any{
		"system":  p.systemPrompt,
		"history": prior,
		"query":   last.Content,
	}, nil
}

func usageFromMeta(msg *schema.Message) TokenUsage {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return TokenUsage{}
	}
	u := msg.ResponseMeta.Usage
	return TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

var _ Provider = (*arkProvider)(nil)
