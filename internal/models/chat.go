package models

import "fmt"

// ChatRequest is the body of POST /api/chat and /api/chat/stream.
// UserID is a string for frontend compatibility and parsed server-side.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// Validate checks required fields.
func (r *ChatRequest) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Escalate       bool   `json:"escalate"`
	EscalationType string `json:"escalation_type,omitempty"`
}

// StreamChunk is one server-sent event frame of a streaming chat reply.
// Intermediate frames carry Chunk with Done=false; the final frame carries
// Done=true plus the turn metadata.
type StreamChunk struct {
	Chunk          string `json:"chunk,omitempty"`
	Done           bool   `json:"done"`
	Error          bool   `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Escalate       *bool  `json:"escalate,omitempty"`
	EscalationType string `json:"escalation_type,omitempty"`
}
