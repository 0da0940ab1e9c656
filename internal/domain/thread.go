package domain

import "time"

type (
	ThreadID  string
	MessageID string
)

type ThreadStatus string

const (
	ThreadOpen   ThreadStatus = "OPEN"
	ThreadClosed ThreadStatus = "CLOSED"
)

type Thread struct {
	ID            ThreadID     `json:"id"`
	Participants  []UserID     `json:"participants"`
	Status        ThreadStatus `json:"status"`
	LastMessage   MessageID    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time    `json:"lastMessageAt,omitempty"`
}

// HasParticipant reports membership; participant sets are small (usually two).
func (t *Thread) HasParticipant(id UserID) bool {
	for _, p := range t.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except the given one.
func (t *Thread) OtherParticipants(except UserID) []UserID {
	out := make([]UserID, 0, len(t.Participants))
	for _, p := range t.Participants {
		if p != except {
			out = append(out, p)
		}
	}
	return out
}

type Message struct {
	ID        MessageID `json:"id"`
	Thread    ThreadID  `json:"threadId"`
	Sender    UserID    `json:"sender"`
	Text      string    `json:"message"`
	HasRead   bool      `json:"hasRead"`
	CreatedAt time.Time `json:"createdAt"`
}
