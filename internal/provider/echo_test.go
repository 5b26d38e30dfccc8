package provider

import (
	"context"
	"testing"
	"time"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/model/chat"
)

func TestEchoCompleteLabelsReply(t *testing.T) {
	p, err := New(context.Background(), config.LLMConfig{Provider: "echo"})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if p.Name() != "echo" {
		t.Fatalf("expected echo provider, got %s", p.Name())
	}

	history := []chat.Message{
		{Role: chat.RoleUser, Content: "earlier"},
		{Role: chat.RoleAssistant, Content: "[echo] earlier"},
		{Role: chat.RoleUser, Content: "hello"},
	}
	completion, err := p.Complete(context.Background(), history)
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if completion.Content != "[echo] hello" {
		t.Fatalf("unexpected reply %q", completion.Content)
	}
}

func TestEchoCompleteEmptyHistory(t *testing.T) {
	p := newEchoProvider("")
	if _, err := p.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestEchoStreamSendsOneChunk(t *testing.T) {
	p := newEchoProvider("")
	chunks := make(chan string, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	completion, err := p.Stream(ctx, []chat.Message{{Role: chat.RoleUser, Content: "hi"}}, chunks)
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	select {
	case chunk := <-chunks:
		if chunk != completion.Content {
			t.Fatalf("chunk %q does not match completion %q", chunk, completion.Content)
		}
	default:
		t.Fatal("expected a chunk to be sent")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), config.LLMConfig{Provider: "oracle"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
