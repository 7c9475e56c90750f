package conversation

import "time"

// Turn persists individual exchanges for audit/debug.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"` // user | assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
