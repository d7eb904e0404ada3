package rag

import (
	"strings"

	"github.com/kindred-finance/kindred/internal/models"
)

// questionWords mark a user message as a question even without a "?".
var questionWords = []string{
	"what", "how", "why", "when", "where", "can", "should", "do", "does", "is", "are",
}

// ExtractMeaningful returns up to limit recent user questions that received a
// substantial assistant reply. A message counts when it is longer than 10
// characters, looks like a question, and the following assistant message is
// longer than 50 characters.
func ExtractMeaningful(history []models.Message, limit int) []string {
	var meaningful []string
	for i := 0; i+1 < len(history); i++ {
		msg := history[i]
		if msg.Role != models.RoleUser {
			continue
		}
		next := history[i+1]
		var reply string
		if next.Role == models.RoleAssistant {
			reply = next.Content
		}

		question := strings.TrimSpace(msg.Content)
		if question == "" || len(question) <= 10 || len(reply) <= 50 {
			continue
		}
		if !looksLikeQuestion(question) {
			continue
		}
		meaningful = append(meaningful, question)
	}

	if limit > 0 && len(meaningful) > limit {
		meaningful = meaningful[len(meaningful)-limit:]
	}
	return meaningful
}

func looksLikeQuestion(s string) bool {
	if strings.Contains(s, "?") {
		return true
	}
	lower := strings.ToLower(s)
	for _, w := range questionWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
