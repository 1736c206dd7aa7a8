package chat

import "time"

// DeliveryStatus tracks the sent -> delivered -> read lifecycle of a message.
// Transitions are monotonic; read is reachable directly from sent when the
// recipient already has the conversation open.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Match is a confirmed mutual pairing between two identities. Rows are created
// by the external matching service and deleted on unmatch or block; message
// and receipt rows cascade with them.
type Match struct {
	ID        string    `gorm:"column:match_id;primaryKey;size:36;not null"`
	UserAID   string    `gorm:"column:user_a_id;size:190;not null;uniqueIndex:uk_match_pair;index"`
	UserBID   string    `gorm:"column:user_b_id;size:190;not null;uniqueIndex:uk_match_pair;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Match) TableName() string {
	return "matches"
}

// HasParticipant reports whether userID is one of the two paired identities.
func (m Match) HasParticipant(userID string) bool {
	return userID == m.UserAID || userID == m.UserBID
}

// Counterpart resolves the other side of the pair for a participant.
func (m Match) Counterpart(userID string) (string, bool) {
	switch userID {
	case m.UserAID:
		return m.UserBID, true
	case m.UserBID:
		return m.UserAID, true
	default:
		return "", false
	}
}

// Message ids are ULIDs issued from a single monotonic source, so id order is
// persistence order within a conversation.
type Message struct {
	ID          string         `gorm:"column:message_id;primaryKey;size:26;not null"`
	MatchID     string         `gorm:"column:match_id;size:36;not null;index:idx_message_match"`
	SenderID    string         `gorm:"column:sender_id;size:190;not null"`
	Body        string         `gorm:"column:body;size:2000;not null"`
	Status      DeliveryStatus `gorm:"column:status;size:16;not null;default:sent"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	DeliveredAt *time.Time     `gorm:"column:delivered_at"`
	ReadAt      *time.Time     `gorm:"column:read_at"`
}

func (Message) TableName() string {
	return "messages"
}

// ReadReceipt records that a reader saw a message. At most one row exists per
// (message, reader) pair; inserts are conflict-free so repeated mark-read
// calls stay idempotent.
type ReadReceipt struct {
	MessageID string    `gorm:"column:message_id;primaryKey;size:26;not null"`
	ReaderID  string    `gorm:"column:reader_id;primaryKey;size:190;not null"`
	ReadAt    time.Time `gorm:"column:read_at;not null"`
}

func (ReadReceipt) TableName() string {
	return "read_receipts"
}

// PresenceRecord is the durable shadow of the in-memory registry, queried by
// the synchronous HTTP surface. Rows are cleared to offline, never deleted.
type PresenceRecord struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Online     bool      `gorm:"column:online;not null"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null"`
}

func (PresenceRecord) TableName() string {
	return "presence_records"
}
