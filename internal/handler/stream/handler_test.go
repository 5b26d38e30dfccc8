package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/model/chat"
	"github.com/parleyhq/parley/internal/provider"
	chatservice "github.com/parleyhq/parley/internal/service/chat"
	"github.com/parleyhq/parley/internal/store"
)

func setup(t *testing.T) (*chi.Mux, store.ConversationStore) {
	t.Helper()

	llm, err := provider.New(context.Background(), config.LLMConfig{Provider: "echo"})
	if err != nil {
		t.Fatalf("provider.New err: %v", err)
	}
	st := store.NewMemoryStore()
	svc := chatservice.NewService(st, llm, time.Second, 20)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, st
}

func TestStreamDeliversTurn(t *testing.T) {
	r, st := setup(t)

	conv, err := st.CreateConversation(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CreateConversation err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream/1?message=hello", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}
	body := resp.Body.String()
	for _, event := range []string{`"event":"start"`, `"event":"chunk"`, `"event":"done"`} {
		if !strings.Contains(body, event) {
			t.Fatalf("expected %s in stream, got:\n%s", event, body)
		}
	}

	// The turn is persisted just like a POST /message turn.
	messages, err := st.ListMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user+assistant persisted, got %d", len(messages))
	}
	if messages[0].Role != chat.RoleUser || messages[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected roles %s/%s", messages[0].Role, messages[1].Role)
	}
}

func TestStreamRequiresMessage(t *testing.T) {
	r, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStreamInvalidID(t *testing.T) {
	r, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/abc?message=hi", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
