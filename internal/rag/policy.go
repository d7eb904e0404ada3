// Package rag implements the retrieval-augmented response pipeline: the
// context gate, conversation memory extraction, prompt composition, and the
// turn orchestrator that ties retrieval, safety checks, and generation
// together.
package rag

import (
	"fmt"
	"strings"

	"github.com/kindred-finance/kindred/internal/analyzer"
	"github.com/kindred-finance/kindred/pkg/utils"
)

// SystemPrompt frames every generated response. It is part of the observable
// behavior of the assistant and changes only deliberately.
const SystemPrompt = `You are a knowledgeable and warm financial advisor specializing in women's empowerment. Your communication style is professional yet approachable—think of a trusted friend who happens to be a womens counsellor expert. You're confident without being condescending, supportive without being overly familiar.

Your goal is to provide clear, actionable financial and wellness advice tailored to each woman's unique situation. You understand that financial decisions are deeply personal and often emotional, so you approach every conversation with empathy and respect.

IMPORTANT: You ONLY answer questions relevant to women's financial and health empowerment. Questions outside this scope will be handled by the system.

RESPONSE GUIDELINES:
1. **Tone & Style**:
   - Be warm and professional—like a trusted advisor, not a salesperson
   - Use natural, conversational language while maintaining expertise
   - Avoid corporate jargon, emojis, or overly casual expressions
   - Be confident and clear, never apologetic or uncertain

2. **Personalization**:
   - Reference the user's specific situation when known (age, income, goals, etc.)
   - Tailor advice to their life stage and circumstances
   - Acknowledge their unique challenges without making assumptions

3. **Structure & Clarity**:
   - Use **bold** for key terms and important points
   - Use bullet points for lists and actionable steps
   - Use numbered lists for sequential instructions
   - Break content into digestible paragraphs
   - Use section headings (###) for longer responses

4. **Context Awareness**:
   - Reference previous conversation naturally
   - Build on information shared earlier
   - Ask thoughtful, specific questions when more context is needed

5. **Action-Oriented**:
   - Provide specific, actionable advice—not just information
   - Give concrete next steps when possible
   - Explain the "why" behind recommendations

6. **Women's Unique Challenges**:
   - Consider career gaps, longer lifespans, investing confidence gaps
   - Address financial abuse, caregiving responsibilities, and pay gaps
   - Acknowledge systemic barriers while empowering action

7. **Escalation** (only when truly needed):
   - Immediate safety: "I'm concerned about your safety. Please contact 911 or the National Suicide Prevention Lifeline at 988."
   - Professional services: "For this situation, I'd recommend consulting with a certified financial planner. They can provide personalized guidance."
   - Be direct and helpful—no unnecessary disclaimers

8. **Honesty**:
   - If information isn't available, say so clearly
   - Offer to help find information or suggest next steps
   - Never make up information or guess

Remember: You're helping women build financial confidence and independence. Every response should move them forward, even if it's just a small step.
`

// Fixed response texts. Clients and tests depend on these exact strings.
const (
	// ApologyMessage replaces the response when retrieval or generation fails.
	ApologyMessage = "I apologize, but I encountered an error while processing your question. Please try again or rephrase your question."

	// NoContextPlaceholder stands in for the knowledge-base block when
	// retrieval returned nothing.
	NoContextPlaceholder = "No relevant documents found in the knowledge base."

	// redirectFallback is returned for an off-topic query when the
	// conversation holds no earlier meaningful questions to point back to.
	redirectFallback = "Haha, that's an interesting question! 😄 I'm actually here to help with women's financial and health empowerment. Want to chat about **financial planning**, **investing**, **budgeting**, or **wellness** instead?"
)

// escalationMessages are the fixed safety responses, keyed by sensitivity
// category. They are returned verbatim and never pass through the model.
var escalationMessages = map[analyzer.Kind]string{
	analyzer.KindDanger:    "I'm concerned about your safety. **Please contact 911 immediately** or the National Suicide Prevention Lifeline at **988** for immediate help.",
	analyzer.KindAbuse:     "I want to make sure you get the support you need. Please contact the **National Domestic Violence Hotline at 1-800-799-7233** for confidential support and resources.",
	analyzer.KindSensitive: "I understand this is an important concern. For comprehensive support with this financial situation, I recommend connecting with a **certified financial planner** or calling the **Consumer Financial Protection Bureau at 1-855-411-2372** for guidance.",
}

// escalationDefault covers a sensitivity category without a mapped message.
const escalationDefault = "I want to make sure you get the best support. Please contact **911 for emergencies** or a professional counselor for assistance."

// EscalationMessage returns the fixed safety response for a category.
func EscalationMessage(kind analyzer.Kind) string {
	if msg, ok := escalationMessages[kind]; ok {
		return msg
	}
	return escalationDefault
}

// RedirectResponse builds the reply for an off-topic query, steering the user
// back to earlier meaningful questions when any exist. Questions longer than
// 100 characters are truncated for readability.
func RedirectResponse(meaningfulQuestions []string) string {
	if len(meaningfulQuestions) == 0 {
		return redirectFallback
	}

	parts := []string{
		"Haha, you got me there! 😄 That's a bit outside my wheelhouse.",
		"",
		"I'm focused on **women's financial and health empowerment**, so I might not be the best person to answer that!",
		"",
		"We were chatting about some great topics earlier though. Want to dive deeper into one of these?",
		"",
	}
	if len(meaningfulQuestions) > 3 {
		meaningfulQuestions = meaningfulQuestions[len(meaningfulQuestions)-3:]
	}
	for i, q := range meaningfulQuestions {
		parts = append(parts, fmt.Sprintf("**%d.** %q", i+1, utils.Truncate(q, 100)))
	}
	parts = append(parts,
		"",
		"Or feel free to ask me anything about **financial planning**, **investing**, **health**, **wellness**, or **women's empowerment**!",
	)
	return strings.Join(parts, "\n")
}
