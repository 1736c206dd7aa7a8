package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// SendResult is the acknowledgment returned to the sender: the persisted
// message with its resolved status, plus the echoed client temp id for
// optimistic-copy reconciliation.
type SendResult struct {
	Message      Message
	ClientTempID string
}

// Send runs the delivery pipeline for one message: validate, persist with
// status sent, then either emit to the counterpart's live connection and
// advance to delivered, or fall back to an asynchronous push. The client temp
// id is echo-only; the server-assigned id is authoritative.
func (s *Service) Send(ctx context.Context, senderID, matchID, body, clientTempID string) (SendResult, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return SendResult{}, invalidArgument("message body must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > s.maxBody {
		return SendResult{}, invalidArgument("message body exceeds the permitted length")
	}

	participation, err := s.Authorize(ctx, senderID, matchID)
	if err != nil {
		return SendResult{}, err
	}

	messageID, err := s.ids.NewID()
	if err != nil {
		return SendResult{}, unavailable("message id generation failed", err)
	}
	message := Message{
		ID:        messageID,
		MatchID:   matchID,
		SenderID:  senderID,
		Body:      trimmed,
		Status:    StatusSent,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logger.Error("message persist failed",
			zap.String("sender_id", senderID),
			zap.String("match_id", matchID),
			zap.Error(err))
		return SendResult{}, unavailable("message could not be stored", err)
	}

	if sink, live := s.registry.Sink(participation.Counterpart); live {
		if delivered, ok := s.deliverLive(ctx, message, sink); ok {
			return SendResult{Message: delivered, ClientTempID: clientTempID}, nil
		}
	}

	s.dispatchPush(participation.Counterpart, message)
	return SendResult{Message: message, ClientTempID: clientTempID}, nil
}

// deliverLive emits the message to the recipient's connection and advances
// sent -> delivered. A failed write means the connection is effectively gone;
// the message stays sent and the caller falls back to push. The status update
// is guarded so a concurrent mark-read is never rolled back.
func (s *Service) deliverLive(ctx context.Context, message Message, sink EventSink) (Message, bool) {
	deliveredAt := s.clock().UTC()
	delivered := message
	delivered.Status = StatusDelivered
	delivered.DeliveredAt = &deliveredAt

	if err := sink.SendEvent(Event{Type: EventNewMessage, Payload: messagePayload(delivered, "")}); err != nil {
		s.logger.Warn("live delivery failed, deferring to push",
			zap.String("match_id", message.MatchID),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return Message{}, false
	}

	err := s.db.WithContext(ctx).Model(&Message{}).
		Where("message_id = ? AND status = ?", message.ID, StatusSent).
		Updates(map[string]any{"status": StatusDelivered, "delivered_at": deliveredAt}).Error
	if err != nil {
		// The recipient already has the message; only the bookkeeping lagged.
		s.logger.Error("delivered status update failed",
			zap.String("match_id", message.MatchID),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
	return delivered, true
}
