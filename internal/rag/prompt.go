package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kindred-finance/kindred/internal/models"
)

const (
	// contextRelevanceCutoff keeps only close passages in the prompt; when
	// none qualify the best three are used anyway.
	contextRelevanceCutoff = 0.8
	// maxContextPassages caps the knowledge-base block.
	maxContextPassages = 5
	// historyWindow is the number of trailing messages included in the prompt.
	historyWindow = 6
)

// Composer renders the full generation prompt from retrieval results,
// conversation history, profile data, and optional web-search output.
type Composer struct{}

// BuildContext renders the knowledge-base block: passages sorted by distance
// ascending, filtered to the relevant ones, capped, and numbered per source.
func (Composer) BuildContext(passages []models.RetrievedPassage) string {
	if len(passages) == 0 {
		return NoContextPlaceholder
	}

	sorted := make([]models.RetrievedPassage, len(passages))
	copy(sorted, passages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	var relevant []models.RetrievedPassage
	for _, p := range sorted {
		if p.Distance < contextRelevanceCutoff {
			relevant = append(relevant, p)
		}
	}
	if len(relevant) == 0 {
		if len(sorted) > 3 {
			relevant = sorted[:3]
		} else {
			relevant = sorted
		}
	}
	if len(relevant) > maxContextPassages {
		relevant = relevant[:maxContextPassages]
	}

	var parts []string
	for i, p := range relevant {
		text := strings.TrimSpace(p.Passage.Text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Source %d from %s]:\n%s\n", i+1, p.Passage.SourceDocument, text))
	}
	if len(parts) == 0 {
		return NoContextPlaceholder
	}
	return strings.Join(parts, "\n---\n")
}

// buildHistory renders the trailing conversation window as User/Assistant lines.
func (Composer) buildHistory(history []models.Message) string {
	if len(history) == 0 {
		return ""
	}
	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	lines := make([]string, 0, len(recent))
	for _, msg := range recent {
		speaker := "Assistant"
		if msg.Role == models.RoleUser {
			speaker = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// buildProfile renders the sparse user profile; empty fields are skipped and
// an empty profile produces no block at all.
func (Composer) buildProfile(profile *models.UserProfile) string {
	if profile == nil {
		return ""
	}
	var parts []string
	if profile.Age > 0 {
		parts = append(parts, fmt.Sprintf("Age: %d", profile.Age))
	}
	if profile.IncomeRange != "" {
		parts = append(parts, "Income Range: "+profile.IncomeRange)
	}
	if profile.MaritalStatus != "" {
		parts = append(parts, "Marital Status: "+profile.MaritalStatus)
	}
	if profile.EmploymentStatus != "" {
		parts = append(parts, "Employment: "+profile.EmploymentStatus)
	}
	if profile.Education != "" {
		parts = append(parts, "Education: "+profile.Education)
	}
	if len(parts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nUser Profile:\n")
	for i, part := range parts {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- " + part)
	}
	return sb.String()
}

// buildWebInfo renders the web-search block: the formatted results when a
// search ran, or an honesty note when one was needed but nothing came back.
func (Composer) buildWebInfo(needsWebSearch bool, webResults string) string {
	switch {
	case needsWebSearch && webResults != "":
		return fmt.Sprintf("\n\nAdditional Information from Web Search:\n%s\n", webResults)
	case needsWebSearch:
		return "\n\nNote: The requested information is not fully available in the knowledge base. Provide a helpful answer based on your knowledge while indicating limitations.\n"
	default:
		return ""
	}
}

// Compose assembles the full prompt sent to the generation backend.
func (c Composer) Compose(query, context string, history []models.Message, profile *models.UserProfile, needsWebSearch bool, webResults string) string {
	historyContext := c.buildHistory(history)
	if historyContext == "" {
		historyContext = "No previous conversation."
	}

	return fmt.Sprintf(`%s

Based on the following context from the knowledge base, please answer the user's question about women's finance.

Context from Knowledge Base:
%s
%s
%s

Previous Conversation:
%s

User Question: %s

Instructions:
- Provide a helpful, empathetic, and accurate answer
- Use proper markdown formatting with **bold** for emphasis
- Structure your response with clear paragraphs and bullet points
- If you need more information, ask 1-2 specific clarifying questions
- If information is not fully available, be honest and suggest next steps
- Format for readability with proper line breaks

Now provide your response:`,
		SystemPrompt,
		context,
		c.buildWebInfo(needsWebSearch, webResults),
		c.buildProfile(profile),
		historyContext,
		query,
	)
}
