package models

import "time"

// Sender values as stored and as returned by the history endpoint. The
// generator-facing role mapping (ai -> assistant) happens at the LLM boundary.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}
