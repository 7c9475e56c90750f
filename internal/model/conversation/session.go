package conversation

import "time"

// Session captures a transient voice conversation.
type Session struct {
	ID        string    `json:"id"`
	VoiceID   string    `json:"voiceId,omitempty"`
	Language  string    `json:"language,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
