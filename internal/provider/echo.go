package provider

import (
	"context"
	"errors"

	"github.com/parleyhq/parley/internal/model/chat"
)

// echoProvider is the offline/demo provider: it repeats the user's message
// back with a fixed label. Replies are clearly marked so nobody mistakes
// them for model output, and the provider name travels with every turn.
type echoProvider struct {
	model string
}

func newEchoProvider(model string) *echoProvider {
	if model == "" {
		model = "echo"
	}
	return &echoProvider{model: model}
}

func (p *echoProvider) Name() string  { return "echo" }
func (p *echoProvider) Model() string { return p.model }

func (p *echoProvider) Complete(_ context.Context, history []chat.Message) (Completion, error) {
	if len(history) == 0 {
		return Completion{}, errors.New("empty history")
	}
	return Completion{Content: "[echo] " + history[len(history)-1].Content}, nil
}

func (p *echoProvider) Stream(ctx context.Context, history []chat.Message, chunks chan<- string) (Completion, error) {
	completion, err := p.Complete(ctx, history)
	if err != nil {
		return Completion{}, err
	}
	select {
	case chunks <- completion.Content:
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
	return completion, nil
}

var _ Provider = (*echoProvider)(nil)
