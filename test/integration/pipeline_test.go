// Package integration runs the full chat pipeline against real storage and a
// real vector index, with mock embedding and generation backends.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kindred-finance/kindred/internal/chunker"
	"github.com/kindred-finance/kindred/internal/embedding"
	"github.com/kindred-finance/kindred/internal/extract"
	"github.com/kindred-finance/kindred/internal/generate"
	"github.com/kindred-finance/kindred/internal/index"
	"github.com/kindred-finance/kindred/internal/ingest"
	"github.com/kindred-finance/kindred/internal/models"
	"github.com/kindred-finance/kindred/internal/rag"
	"github.com/kindred-finance/kindred/internal/storage"
)

type pipeline struct {
	index        *index.Index
	backend      *generate.MockBackend
	storage      *storage.SQLiteStorage
	orchestrator *rag.Orchestrator
	userID       string
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ix := index.New(embedding.NewMockEmbedder(32))
	backend := generate.NewMockBackend("A budget starts with tracking your spending.")
	orch := rag.NewOrchestrator(ix, backend, rag.WithHistoryStore(store))

	id, err := store.CreateUser(context.Background(), "Joan", "joan@example.com", "")
	if err != nil {
		t.Fatal(err)
	}

	return &pipeline{
		index:        ix,
		backend:      backend,
		storage:      store,
		orchestrator: orch,
		userID:       strconv.FormatInt(id, 10),
	}
}

// ingestCorpus writes the given documents into a temp corpus directory and
// runs them through extraction, chunking, and indexing.
func (p *pipeline) ingestCorpus(t *testing.T, docs map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	ck, err := chunker.New(200, 20)
	if err != nil {
		t.Fatal(err)
	}
	ig := ingest.NewIngester(extract.NewExtractor(), ck, p.index)
	if _, err := ig.IngestDirectory(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
}

func TestPipeline_GroundedTurn(t *testing.T) {
	p := newPipeline(t)
	p.ingestCorpus(t, map[string]string{
		"budgeting.md": "How do I start a budget? Track income and expenses for a month.",
	})

	// The mock embedder is deterministic, so an identical query retrieves its
	// own passage at distance zero and the turn stays grounded.
	turn := rag.Turn{
		UserID:         p.userID,
		ConversationID: "conv-grounded",
		Query:          "How do I start a budget? Track income and expenses for a month.",
	}
	result := p.orchestrator.Respond(context.Background(), turn)

	if result.Escalate {
		t.Error("benign turn escalated")
	}
	if result.RequiresWebSearch {
		t.Error("grounded turn requested web search")
	}
	if !result.ContextUsed {
		t.Error("retrieved context not used")
	}
	if result.Response != "A budget starts with tracking your spending." {
		t.Errorf("response = %q", result.Response)
	}
	if len(p.backend.Calls) != 1 {
		t.Fatalf("backend calls = %d", len(p.backend.Calls))
	}
	if !strings.Contains(p.backend.Calls[0], "budgeting.md") {
		t.Error("prompt missing the source attribution")
	}

	messages, err := p.storage.GetConversation(context.Background(), "conv-grounded", p.userID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(messages) != 2 || messages[0].Role != models.RoleUser || messages[1].Role != models.RoleAssistant {
		t.Errorf("persisted turn = %+v", messages)
	}
}

func TestPipeline_EscalationBypassesRetrieval(t *testing.T) {
	p := newPipeline(t)

	result := p.orchestrator.Respond(context.Background(), rag.Turn{
		UserID:         p.userID,
		ConversationID: "conv-crisis",
		Query:          "My partner has beaten me and I am scared",
	})
	if !result.Escalate || result.EscalationType != "ABUSE" {
		t.Fatalf("escalation = (%v, %s)", result.Escalate, result.EscalationType)
	}
	if len(p.backend.Calls) != 0 {
		t.Error("escalation reached the generation backend")
	}

	// The escalation message is still persisted as the assistant turn.
	messages, err := p.storage.GetConversation(context.Background(), "conv-crisis", p.userID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != result.Response {
		t.Errorf("persisted escalation = %+v", messages)
	}
}

func TestPipeline_OffTopicRedirect(t *testing.T) {
	p := newPipeline(t)
	// Empty index: nothing retrieves, so a follow-up turn redirects.

	history := []models.Message{
		models.NewMessage(models.RoleUser, "How much should I contribute to retirement each month?"),
		models.NewMessage(models.RoleAssistant, strings.Repeat("Contribute what you can afford after essentials. ", 3)),
	}
	result := p.orchestrator.Respond(context.Background(), rag.Turn{
		UserID:         p.userID,
		ConversationID: "conv-redirect",
		Query:          "zzqx vvwp unrelated gibberish prompt",
		History:        history,
	})

	if len(p.backend.Calls) != 0 {
		t.Error("off-topic turn reached the generation backend")
	}
	if !strings.Contains(result.Response, "you got me there") {
		t.Errorf("redirect response = %q", result.Response)
	}
	if !strings.Contains(result.Response, "How much should I contribute") {
		t.Error("redirect should list the earlier meaningful question")
	}
}

func TestPipeline_StreamingMatchesResponse(t *testing.T) {
	p := newPipeline(t)
	p.ingestCorpus(t, map[string]string{
		"invest.md": "Index funds spread risk across many companies.",
	})

	var streamed strings.Builder
	result := p.orchestrator.RespondStream(context.Background(), rag.Turn{
		UserID:         p.userID,
		ConversationID: "conv-stream",
		Query:          "Index funds spread risk across many companies.",
	}, func(chunk string) {
		streamed.WriteString(chunk)
	})

	if streamed.String() != result.Response {
		t.Errorf("streamed %q, result %q", streamed.String(), result.Response)
	}
	if result.Response != "A budget starts with tracking your spending." {
		t.Errorf("response = %q", result.Response)
	}

	messages, err := p.storage.GetConversation(context.Background(), "conv-stream", p.userID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(messages) != 2 {
		t.Errorf("persisted messages = %d", len(messages))
	}
}

func TestPipeline_ConversationAccumulates(t *testing.T) {
	p := newPipeline(t)
	p.ingestCorpus(t, map[string]string{
		"saving.txt": "An emergency fund covers three to six months of expenses.",
	})
	ctx := context.Background()
	query := "An emergency fund covers three to six months of expenses."

	first := p.orchestrator.Respond(ctx, rag.Turn{
		UserID: p.userID, ConversationID: "conv-multi", Query: query,
	})
	if first.Response == "" {
		t.Fatal("empty first response")
	}

	history, err := p.storage.GetConversation(ctx, "conv-multi", p.userID)
	if err != nil {
		t.Fatal(err)
	}
	p.orchestrator.Respond(ctx, rag.Turn{
		UserID: p.userID, ConversationID: "conv-multi", Query: query, History: history,
	})

	messages, err := p.storage.GetConversation(ctx, "conv-multi", p.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 4 {
		t.Fatalf("messages after two turns = %d, want 4", len(messages))
	}
	// Second prompt should carry the first turn as prior conversation.
	second := p.backend.Calls[len(p.backend.Calls)-1]
	if !strings.Contains(second, "Previous Conversation:") || strings.Contains(second, "No previous conversation.") {
		t.Error("second prompt missing the prior turn")
	}
}
