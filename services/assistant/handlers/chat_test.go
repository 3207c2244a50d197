// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/minbar-platform/minbar/services/assistant/changebus"
	"github.com/minbar-platform/minbar/services/assistant/datatypes"
	"github.com/minbar-platform/minbar/services/assistant/generation"
	"github.com/minbar-platform/minbar/services/assistant/intent"
	"github.com/minbar-platform/minbar/services/assistant/knowledge"
	"github.com/minbar-platform/minbar/services/assistant/prompt"
)

// chatID is a fixed v4 UUID so request bodies pass validation.
const chatID = "6ba7b810-9dad-41d1-80b4-00c04fd430c8"

// =============================================================================
// Fakes
// =============================================================================

type fakeBackend struct {
	mu       sync.Mutex
	models   []string
	generate func(ctx context.Context, model string, onChunk generation.ChunkFunc) error
	attempts int
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	return b.models, nil
}

func (b *fakeBackend) GenerateStream(ctx context.Context, model, system, user string, onChunk generation.ChunkFunc) error {
	b.mu.Lock()
	b.attempts++
	b.mu.Unlock()
	return b.generate(ctx, model, onChunk)
}

func (b *fakeBackend) attemptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

type fakeHistory struct {
	mu      sync.Mutex
	appends int
	turns   []datatypes.ConversationTurn
	count   int
}

func (h *fakeHistory) Append(ctx context.Context, conversationID, ownerID string, turns []datatypes.ConversationTurn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appends++
	h.turns = append(h.turns, turns...)
	return nil
}

func (h *fakeHistory) Turns(ctx context.Context, conversationID string) ([]datatypes.ConversationTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]datatypes.ConversationTurn(nil), h.turns...), nil
}

func (h *fakeHistory) TurnCount(ctx context.Context, conversationID string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count, nil
}

func (h *fakeHistory) appendCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appends
}

type emptyStore struct{}

func (emptyStore) List(ctx context.Context, cat datatypes.Category, lang datatypes.Language) ([]datatypes.KnowledgeRecord, error) {
	return nil, nil
}

func (emptyStore) Count(ctx context.Context, cat datatypes.Category) (int, error) {
	return 0, nil
}

func (emptyStore) Freshest(ctx context.Context, cat datatypes.Category, lang datatypes.Language) (*datatypes.KnowledgeRecord, error) {
	return nil, nil
}

type emptySearcher struct{}

func (emptySearcher) Search(ctx context.Context, query string, lang datatypes.Language, limit int) ([]datatypes.SearchResult, error) {
	return nil, nil
}

// =============================================================================
// Harness
// =============================================================================

func newTestPipeline(t *testing.T, backend generation.Backend, hist *fakeHistory) *ChatPipeline {
	t.Helper()
	classifier, err := intent.NewClassifier()
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return &ChatPipeline{
		Classifier: classifier,
		Knowledge:  knowledge.NewAggregator(emptyStore{}, emptySearcher{}),
		Prompts:    prompt.NewBuilder(),
		Generator:  generation.NewStreamer(backend, "primary"),
		History:    hist,
		Bus:        changebus.NewBus(),
	}
}

func chatRouter(p *ChatPipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/assistant/chat", HandleChat(p))
	return r
}

func chatBody(content, id string) string {
	body := fmt.Sprintf(`{"messages":[{"role":"user","content":%q}]`, content)
	if id != "" {
		body += fmt.Sprintf(`,"chat_id":%q`, id)
	}
	return body + "}"
}

// =============================================================================
// Tests
// =============================================================================

func TestHandleChat_StreamsAnswerAndPersistsOnce(t *testing.T) {
	backend := &fakeBackend{
		generate: func(ctx context.Context, model string, onChunk generation.ChunkFunc) error {
			for _, chunk := range []string{"أحدث ", "حلقة ", "لدينا"} {
				if err := onChunk(chunk); err != nil {
					return err
				}
			}
			return nil
		},
	}
	hist := &fakeHistory{}
	p := newTestPipeline(t, backend, hist)

	sub := p.Bus.Subscribe([]string{"conversations:" + chatID})
	defer p.Bus.Unsubscribe(sub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat",
		strings.NewReader(chatBody("ما هي أحدث حلقة؟", chatID)))
	req.Header.Set("Content-Type", "application/json")
	chatRouter(p).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "أحدث حلقة لدينا" {
		t.Errorf("body is the raw chunk concatenation, got %q", got)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %q", ct)
	}

	if got := hist.appendCount(); got != 1 {
		t.Fatalf("expected exactly one append, got %d", got)
	}
	if len(hist.turns) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(hist.turns))
	}
	if hist.turns[0].Role != datatypes.RoleUser || hist.turns[1].Role != datatypes.RoleAssistant {
		t.Errorf("turn roles wrong: %q, %q", hist.turns[0].Role, hist.turns[1].Role)
	}
	if hist.turns[1].Content != "أحدث حلقة لدينا" {
		t.Errorf("assistant turn must hold the full answer, got %q", hist.turns[1].Content)
	}

	select {
	case event := <-sub.Events():
		if event.Collection != "conversations:"+chatID {
			t.Errorf("change event collection %q", event.Collection)
		}
	default:
		t.Error("expected a change event after persistence")
	}
}

func TestHandleChat_NoChatIDSkipsPersistence(t *testing.T) {
	backend := &fakeBackend{
		generate: func(ctx context.Context, model string, onChunk generation.ChunkFunc) error {
			return onChunk("hi")
		},
	}
	hist := &fakeHistory{}
	p := newTestPipeline(t, backend, hist)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat",
		strings.NewReader(chatBody("ما هي أحدث حلقة؟", "")))
	req.Header.Set("Content-Type", "application/json")
	chatRouter(p).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := hist.appendCount(); got != 0 {
		t.Errorf("id-less request must not persist, got %d appends", got)
	}
}

func TestHandleChat_DisconnectMidStreamSkipsPersistence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fakeBackend{
		generate: func(ctx context.Context, model string, onChunk generation.ChunkFunc) error {
			for i := 0; i < 10; i++ {
				if err := onChunk(fmt.Sprintf("chunk%d ", i)); err != nil {
					return err
				}
				if i == 1 {
					// Client goes away after the second chunk.
					cancel()
				}
			}
			return nil
		},
	}
	hist := &fakeHistory{}
	p := newTestPipeline(t, backend, hist)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat",
		strings.NewReader(chatBody("ما هي أحدث حلقة؟", chatID))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	chatRouter(p).ServeHTTP(w, req)

	if got := hist.appendCount(); got != 0 {
		t.Errorf("disconnected stream must never persist, got %d appends", got)
	}
	if got := backend.attemptCount(); got != 1 {
		t.Errorf("cancellation must not trigger a fallback attempt, got %d", got)
	}
}

func TestHandleChat_GenerationFailureBeforeOutputIs500(t *testing.T) {
	backend := &fakeBackend{
		models: []string{"other-model"},
		generate: func(ctx context.Context, model string, onChunk generation.ChunkFunc) error {
			return errors.New("upstream down")
		},
	}
	hist := &fakeHistory{}
	p := newTestPipeline(t, backend, hist)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat",
		strings.NewReader(chatBody("ما هي أحدث حلقة؟", chatID)))
	req.Header.Set("Content-Type", "application/json")
	chatRouter(p).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("500 must carry the JSON error shape, got %s", w.Body.String())
	}
	if got := backend.attemptCount(); got != 2 {
		t.Errorf("expected primary plus one fallback attempt, got %d", got)
	}
	if got := hist.appendCount(); got != 0 {
		t.Errorf("failed generation must not persist, got %d appends", got)
	}
}

func TestHandleChat_InvalidBodyIs400(t *testing.T) {
	p := newTestPipeline(t, &fakeBackend{}, &fakeHistory{})
	r := chatRouter(p)

	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"not json", `answer please`},
		{"bad chat id", chatBody("hello", "not-a-uuid")},
		{"assistant-only messages", `{"messages":[{"role":"assistant","content":"hi"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/assistant/chat",
				strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("400 must carry the JSON error shape, got %s", w.Body.String())
			}
		})
	}
}
