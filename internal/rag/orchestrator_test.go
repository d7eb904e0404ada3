package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kindred-finance/kindred/internal/analyzer"
	"github.com/kindred-finance/kindred/internal/generate"
	"github.com/kindred-finance/kindred/internal/models"
)

type searchCall struct {
	query string
	k     int
}

type spyRetriever struct {
	results []models.RetrievedPassage
	err     error
	calls   []searchCall
}

func (s *spyRetriever) Search(_ context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	s.calls = append(s.calls, searchCall{query: query, k: k})
	return s.results, s.err
}

type memStore struct {
	conversationID string
	userID         string
	messages       []models.Message
	writes         int
}

func (m *memStore) StoreConversation(_ context.Context, conversationID, userID string, messages []models.Message) error {
	m.conversationID = conversationID
	m.userID = userID
	m.messages = messages
	m.writes++
	return nil
}

func closePassages() []models.RetrievedPassage {
	return retrieved(0.3, 0.5, 0.6)
}

func TestRespondHappyPath(t *testing.T) {
	retrieverSpy := &spyRetriever{results: closePassages()}
	backend := generate.NewMockBackend("Here is a solid savings plan.")
	store := &memStore{}
	o := NewOrchestrator(retrieverSpy, backend, WithHistoryStore(store))

	res := o.Respond(context.Background(), Turn{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "How should I save for retirement?",
	})

	if res.Response != "Here is a solid savings plan." {
		t.Errorf("response = %q", res.Response)
	}
	if res.Escalate {
		t.Error("benign query escalated")
	}
	if res.RequiresWebSearch {
		t.Error("close passages should not require web search")
	}
	if !res.ContextUsed {
		t.Error("context should be marked used")
	}

	// Retrieval for generation plus the metadata re-run, both at depth 5.
	if len(retrieverSpy.calls) != 2 {
		t.Fatalf("search calls = %d, want 2", len(retrieverSpy.calls))
	}
	for _, c := range retrieverSpy.calls {
		if c.k != 5 {
			t.Errorf("non-streaming search depth = %d, want 5", c.k)
		}
	}

	// Turn persisted: original history plus user and assistant messages.
	if store.writes != 1 {
		t.Fatalf("store writes = %d, want 1", store.writes)
	}
	if len(store.messages) != 2 {
		t.Fatalf("stored messages = %d, want 2", len(store.messages))
	}
	if store.messages[0].Role != models.RoleUser || store.messages[1].Role != models.RoleAssistant {
		t.Errorf("stored roles = %s, %s", store.messages[0].Role, store.messages[1].Role)
	}
}

func TestRespondEscalationShortCircuits(t *testing.T) {
	retrieverSpy := &spyRetriever{results: closePassages()}
	backend := generate.NewMockBackend("should never be used")
	o := NewOrchestrator(retrieverSpy, backend)

	res := o.Respond(context.Background(), Turn{Query: "I want to end my life"})

	if !res.Escalate || res.EscalationType != analyzer.KindDanger {
		t.Fatalf("escalation = (%v, %s), want (true, DANGER)", res.Escalate, res.EscalationType)
	}
	if res.Response != EscalationMessage(analyzer.KindDanger) {
		t.Errorf("response = %q, want the fixed escalation message", res.Response)
	}
	if len(retrieverSpy.calls) != 0 {
		t.Error("escalation must not reach retrieval")
	}
	if len(backend.Calls) != 0 {
		t.Error("escalation must not reach the backend")
	}
}

func TestRespondRedirectNeverCallsBackend(t *testing.T) {
	retrieverSpy := &spyRetriever{results: retrieved(0.95, 1.1)} // nothing contextual
	backend := generate.NewMockBackend("should never be used")
	o := NewOrchestrator(retrieverSpy, backend)

	history := []models.Message{
		msg(models.RoleUser, "How should I start saving for retirement?"),
		msg(models.RoleAssistant, substantialReply()),
	}
	res := o.Respond(context.Background(), Turn{Query: "who won the game last night", History: history})

	if !strings.Contains(res.Response, "How should I start saving for retirement?") {
		t.Errorf("redirect should reference earlier questions:\n%s", res.Response)
	}
	if len(backend.Calls) != 0 {
		t.Error("redirect must not reach the backend")
	}
	if res.ContextUsed {
		t.Error("redirect uses no context")
	}
}

func TestRespondFirstMessageBypassesGate(t *testing.T) {
	retrieverSpy := &spyRetriever{results: retrieved(0.95)} // not contextual
	backend := generate.NewMockBackend("welcome answer")
	o := NewOrchestrator(retrieverSpy, backend)

	// Empty history: first message proceeds to generation even off-topic.
	res := o.Respond(context.Background(), Turn{Query: "who won the game last night"})
	if res.Response != "welcome answer" {
		t.Errorf("first message should generate, got %q", res.Response)
	}

	// A single stored user message still counts as first.
	res = o.Respond(context.Background(), Turn{
		Query:   "who won the game last night",
		History: []models.Message{msg(models.RoleUser, "hello there")},
	})
	if res.Response != "welcome answer" {
		t.Errorf("single-user-message history should generate, got %q", res.Response)
	}
}

func TestRespondBackendFailureReturnsApology(t *testing.T) {
	retrieverSpy := &spyRetriever{results: closePassages()}
	backend := &generate.MockBackend{Err: errors.New("backend down")}
	o := NewOrchestrator(retrieverSpy, backend)

	res := o.Respond(context.Background(), Turn{Query: "How should I save for retirement?"})
	if res.Response != ApologyMessage {
		t.Errorf("response = %q, want apology", res.Response)
	}
}

func TestRespondRetrievalFailureDegradesToNoContext(t *testing.T) {
	retrieverSpy := &spyRetriever{err: errors.New("embedder offline")}
	backend := generate.NewMockBackend("best-effort answer")
	o := NewOrchestrator(retrieverSpy, backend)

	res := o.Respond(context.Background(), Turn{Query: "How should I save for retirement?"})
	if res.Response != "best-effort answer" {
		t.Errorf("response = %q, want generation to proceed", res.Response)
	}
	if res.ContextUsed {
		t.Error("no context should be marked used")
	}
	if len(backend.Calls) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(backend.Calls))
	}
	if !strings.Contains(backend.Calls[0], NoContextPlaceholder) {
		t.Error("prompt should carry the no-context placeholder")
	}
}

func TestRespondWebSearchFlag(t *testing.T) {
	retrieverSpy := &spyRetriever{results: retrieved(0.8, 0.9)} // weak but contextual
	backend := generate.NewMockBackend("thin answer")
	o := NewOrchestrator(retrieverSpy, backend)

	res := o.Respond(context.Background(), Turn{Query: "niche question about rare bonds?"})
	if !res.RequiresWebSearch {
		t.Error("uniformly weak retrieval should request a web search")
	}

	// Second pass with results supplied must not request another search.
	res = o.Respond(context.Background(), Turn{
		Query:      "niche question about rare bonds?",
		WebResults: "1. Some result",
	})
	if res.RequiresWebSearch {
		t.Error("web results supplied, flag must clear")
	}
	if !strings.Contains(backend.Calls[len(backend.Calls)-1], "1. Some result") {
		t.Error("web results missing from the second-pass prompt")
	}
}

func TestRespondStream(t *testing.T) {
	retrieverSpy := &spyRetriever{results: closePassages()}
	backend := generate.NewMockBackend("streamed answer text")
	store := &memStore{}
	o := NewOrchestrator(retrieverSpy, backend, WithHistoryStore(store))

	var chunks []string
	res := o.RespondStream(context.Background(), Turn{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "How should I save for retirement?",
	}, func(s string) { chunks = append(chunks, s) })

	joined := strings.Join(chunks, "")
	if joined != "streamed answer text" {
		t.Errorf("emitted = %q", joined)
	}
	if res.Response != joined {
		t.Errorf("result response %q != emitted %q", res.Response, joined)
	}
	if len(chunks) < 2 {
		t.Errorf("expected multiple fragments, got %d", len(chunks))
	}

	// Streaming retrieves at depth 7, once.
	if len(retrieverSpy.calls) != 1 || retrieverSpy.calls[0].k != 7 {
		t.Errorf("search calls = %+v, want one call at depth 7", retrieverSpy.calls)
	}
	if store.writes != 1 {
		t.Errorf("store writes = %d, want 1", store.writes)
	}
}

func TestRespondStreamEscalationSingleChunk(t *testing.T) {
	retrieverSpy := &spyRetriever{}
	backend := generate.NewMockBackend("never")
	o := NewOrchestrator(retrieverSpy, backend)

	var chunks []string
	res := o.RespondStream(context.Background(), Turn{Query: "my partner has beaten me"},
		func(s string) { chunks = append(chunks, s) })

	if !res.Escalate || res.EscalationType != analyzer.KindAbuse {
		t.Fatalf("escalation = (%v, %s)", res.Escalate, res.EscalationType)
	}
	if len(chunks) != 1 || chunks[0] != EscalationMessage(analyzer.KindAbuse) {
		t.Errorf("escalation should emit exactly the fixed message, got %v", chunks)
	}
	if len(retrieverSpy.calls) != 0 || len(backend.Calls) != 0 {
		t.Error("escalation must not reach retrieval or generation")
	}
}

func TestRespondStreamBackendFailureEmitsApology(t *testing.T) {
	retrieverSpy := &spyRetriever{results: closePassages()}
	backend := &generate.MockBackend{Err: errors.New("down")}
	o := NewOrchestrator(retrieverSpy, backend)

	var chunks []string
	res := o.RespondStream(context.Background(), Turn{Query: "How do I budget better?"},
		func(s string) { chunks = append(chunks, s) })

	if len(chunks) != 1 || chunks[0] != ApologyMessage {
		t.Errorf("chunks = %v, want single apology", chunks)
	}
	if res.Response != ApologyMessage {
		t.Errorf("response = %q", res.Response)
	}
}

func TestPersistAppendsToHistory(t *testing.T) {
	retrieverSpy := &spyRetriever{results: closePassages()}
	backend := generate.NewMockBackend("next answer")
	store := &memStore{}
	o := NewOrchestrator(retrieverSpy, backend, WithHistoryStore(store))

	history := []models.Message{
		msg(models.RoleUser, "How do I start a budget?"),
		msg(models.RoleAssistant, substantialReply()),
	}
	o.Respond(context.Background(), Turn{
		UserID:         "u1",
		ConversationID: "c1",
		Query:          "What about tracking subscriptions?",
		History:        history,
	})

	if len(store.messages) != 4 {
		t.Fatalf("stored messages = %d, want 4", len(store.messages))
	}
	if store.messages[2].Content != "What about tracking subscriptions?" {
		t.Errorf("current user message not appended: %q", store.messages[2].Content)
	}
	if store.messages[3].Content != "next answer" {
		t.Errorf("assistant reply not appended: %q", store.messages[3].Content)
	}
}

func TestPrimaryQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is a Roth IRA?", "What is a Roth IRA?"},
		{"What is a 401k? And how do I open one?", "What is a 401k?"},
		{"budget tips", "budget tips?"},
		{"  spaced out?  ", "spaced out?"},
	}
	for _, tt := range tests {
		if got := primaryQuery(tt.in); got != tt.want {
			t.Errorf("primaryQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
