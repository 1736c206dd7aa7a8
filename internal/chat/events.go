package chat

import "time"

const (
	EventNewMessage        = "new_message"
	EventMessagesRead      = "messages_read"
	EventUserTyping        = "user_typing"
	EventUserStatusChanged = "user_status_changed"
)

// Event is the envelope pushed to a live connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventSink is one identity's live connection as seen by the core. Writes may
// come from any goroutine; implementations serialize them.
type EventSink interface {
	SendEvent(event Event) error
}

// MessagePayload is the wire form of a message, pushed with new_message and
// echoed in send acknowledgments.
type MessagePayload struct {
	ID           string         `json:"id"`
	MatchID      string         `json:"match_id"`
	SenderID     string         `json:"sender_id"`
	Body         string         `json:"body"`
	Status       DeliveryStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
	ReadAt       *time.Time     `json:"read_at,omitempty"`
	ClientTempID string         `json:"client_temp_id,omitempty"`
}

// MessagesReadPayload notifies a sender which of its messages were just read.
type MessagesReadPayload struct {
	MatchID    string    `json:"match_id"`
	MessageIDs []string  `json:"message_ids"`
	ReadBy     string    `json:"read_by"`
	ReadAt     time.Time `json:"read_at"`
}

// TypingPayload relays ephemeral typing state to the counterpart.
type TypingPayload struct {
	MatchID  string `json:"match_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// StatusPayload announces an online/offline change to matched counterparts.
type StatusPayload struct {
	UserID    string    `json:"user_id"`
	IsOnline  bool      `json:"is_online"`
	Timestamp time.Time `json:"timestamp"`
}

func messagePayload(message Message, clientTempID string) MessagePayload {
	return MessagePayload{
		ID:           message.ID,
		MatchID:      message.MatchID,
		SenderID:     message.SenderID,
		Body:         message.Body,
		Status:       message.Status,
		CreatedAt:    message.CreatedAt,
		DeliveredAt:  message.DeliveredAt,
		ReadAt:       message.ReadAt,
		ClientTempID: clientTempID,
	}
}
