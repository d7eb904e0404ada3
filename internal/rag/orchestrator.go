package rag

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kindred-finance/kindred/internal/analyzer"
	"github.com/kindred-finance/kindred/internal/generate"
	"github.com/kindred-finance/kindred/internal/models"
)

// Retrieval depths. Streaming retrieves deeper; the non-streaming path keeps
// the shallower depth and re-runs retrieval once more for the web-search flag.
// Both constants deliberately preserve long-standing client-visible behavior.
const (
	kStream  = 7
	kRespond = 5
)

// defaultGenerationTimeout bounds a single backend call.
const defaultGenerationTimeout = 120 * time.Second

// Retriever finds the k nearest passages for a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error)
}

// HistoryStore persists the conversation after a turn. Write failures are
// logged, never surfaced to the user.
type HistoryStore interface {
	StoreConversation(ctx context.Context, conversationID, userID string, messages []models.Message) error
}

// Turn is one user message plus the conversation state it arrives with.
// History holds the stored conversation and must NOT include the current
// message; the orchestrator appends it.
type Turn struct {
	UserID         string
	ConversationID string
	Query          string
	History        []models.Message
	Profile        *models.UserProfile
	// WebResults is the formatted web-search block from a previous pass,
	// empty on the first pass.
	WebResults string
}

// Result is the outcome of one turn.
type Result struct {
	Response          string
	Escalate          bool
	EscalationType    analyzer.Kind
	RequiresWebSearch bool
	ContextUsed       bool
}

// Orchestrator runs the full response pipeline for a turn: sensitivity check,
// retrieval, context gating, prompt composition, and generation.
type Orchestrator struct {
	retriever Retriever
	backend   generate.Backend
	analyzer  *analyzer.Analyzer
	gate      Gate
	composer  Composer
	store     HistoryStore
	timeout   time.Duration
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGate overrides the default gate thresholds.
func WithGate(g Gate) Option {
	return func(o *Orchestrator) { o.gate = g }
}

// WithAnalyzer overrides the default query analyzer.
func WithAnalyzer(a *analyzer.Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

// WithHistoryStore enables best-effort conversation persistence.
func WithHistoryStore(s HistoryStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithGenerationTimeout bounds each backend call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator wires the pipeline around a retriever and a generation
// backend.
func NewOrchestrator(retriever Retriever, backend generate.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever: retriever,
		backend:   backend,
		analyzer:  analyzer.New(),
		gate:      NewGate(),
		timeout:   defaultGenerationTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var questionSplit = regexp.MustCompile(`[?]\s+`)

// primaryQuery returns the first question of a compound query, suffixed with
// "?" when the input lacked one.
func primaryQuery(query string) string {
	query = strings.TrimSpace(query)
	for _, p := range questionSplit.Split(query, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasSuffix(p, "?") {
			p += "?"
		}
		return p
	}
	return query
}

// isFirstMessage reports whether the stored history represents a brand-new
// conversation. A single stored user message still counts as first.
func isFirstMessage(history []models.Message) bool {
	if len(history) == 0 {
		return true
	}
	return len(history) == 1 && history[0].Role == models.RoleUser
}

// Respond runs one non-streaming turn.
func (o *Orchestrator) Respond(ctx context.Context, turn Turn) Result {
	result := o.run(ctx, turn, nil)
	o.persist(ctx, turn, result.Response)
	return result
}

// RespondStream runs one streaming turn, invoking emit for every response
// fragment as it arrives. The accumulated text is returned in the Result and
// persisted even when the client aborts mid-stream.
func (o *Orchestrator) RespondStream(ctx context.Context, turn Turn, emit func(string)) Result {
	result := o.run(ctx, turn, emit)
	o.persist(ctx, turn, result.Response)
	return result
}

// run executes the pipeline. A nil emit selects the non-streaming path.
func (o *Orchestrator) run(ctx context.Context, turn Turn, emit func(string)) Result {
	query := strings.TrimSpace(turn.Query)

	if kind, sensitive := o.analyzer.DetectSensitive(query); sensitive {
		msg := EscalationMessage(kind)
		o.logger.Warn("sensitive query escalated",
			zap.String("conversation_id", turn.ConversationID),
			zap.String("kind", string(kind)))
		o.deliver(emit, msg)
		return Result{Response: msg, Escalate: true, EscalationType: kind}
	}

	k := kRespond
	if emit != nil {
		k = kStream
	}
	main := primaryQuery(query)
	passages, err := o.retriever.Search(ctx, main, k)
	if err != nil {
		o.logger.Warn("retrieval failed, continuing without context", zap.Error(err))
		passages = nil
	}

	if !o.gate.IsContextual(passages) && !isFirstMessage(turn.History) {
		msg := RedirectResponse(ExtractMeaningful(turn.History, 3))
		o.deliver(emit, msg)
		return Result{Response: msg}
	}

	contextBlock := o.composer.BuildContext(passages)
	needsWeb := o.gate.NeedsWebSearch(passages)
	prompt := o.composer.Compose(query, contextBlock, turn.History, turn.Profile, needsWeb, turn.WebResults)

	var response string
	if emit != nil {
		response = o.generateStream(ctx, prompt, emit)
	} else {
		response = o.generate(ctx, prompt)
	}

	requiresWeb := o.requiresWebSearch(ctx, main, emit == nil, needsWeb) && turn.WebResults == ""
	return Result{
		Response:          response,
		RequiresWebSearch: requiresWeb,
		ContextUsed:       len(passages) > 0,
	}
}

// requiresWebSearch computes the web-search flag. The non-streaming path
// re-runs retrieval at its own depth for this, matching historical behavior;
// the streaming path reuses the gate decision already made.
func (o *Orchestrator) requiresWebSearch(ctx context.Context, main string, rerun, needsWeb bool) bool {
	if !rerun {
		return needsWeb
	}
	passages, err := o.retriever.Search(ctx, main, kRespond)
	if err != nil {
		return needsWeb
	}
	return o.gate.NeedsWebSearch(passages)
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	response, err := o.backend.Generate(ctx, prompt, generate.DefaultSampling)
	if err != nil {
		o.logger.Error("generation failed", zap.Error(err))
		return ApologyMessage
	}
	return response
}

func (o *Orchestrator) generateStream(ctx context.Context, prompt string, emit func(string)) string {
	gctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	frags, err := o.backend.Stream(gctx, prompt, generate.DefaultSampling)
	if err != nil {
		o.logger.Error("generation failed", zap.Error(err))
		emit(ApologyMessage)
		return ApologyMessage
	}

	var sb strings.Builder
	for frag := range frags {
		if frag.Err != nil {
			// Client abort is not a backend failure; keep the partial text.
			if ctx.Err() != nil {
				break
			}
			o.logger.Error("stream failed", zap.Error(frag.Err))
			emit(ApologyMessage)
			sb.WriteString(ApologyMessage)
			break
		}
		emit(frag.Text)
		sb.WriteString(frag.Text)
		if ctx.Err() != nil {
			break
		}
	}
	return sb.String()
}

// deliver pushes a fixed message through the streaming callback when present.
func (o *Orchestrator) deliver(emit func(string), msg string) {
	if emit != nil {
		emit(msg)
	}
}

// persist appends the turn to history and writes it back. Failures are
// logged only; the response already reached the user. The write uses a
// detached context so a client abort cannot lose the partial transcript.
func (o *Orchestrator) persist(ctx context.Context, turn Turn, response string) {
	if o.store == nil || turn.ConversationID == "" {
		return
	}
	messages := make([]models.Message, 0, len(turn.History)+2)
	messages = append(messages, turn.History...)
	messages = append(messages,
		models.NewMessage(models.RoleUser, turn.Query),
		models.NewMessage(models.RoleAssistant, response),
	)
	if err := o.store.StoreConversation(context.WithoutCancel(ctx), turn.ConversationID, turn.UserID, messages); err != nil {
		o.logger.Error("failed to store conversation",
			zap.String("conversation_id", turn.ConversationID),
			zap.Error(err))
	}
}
