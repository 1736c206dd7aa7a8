package chat

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadResult reports which messages a mark-read call newly transitioned.
type ReadResult struct {
	MatchID    string
	MessageIDs []string
	ReadAt     time.Time
}

// MarkRead transitions the counterpart's unread messages to read and records
// one receipt per message. With no explicit ids it covers every unread
// message authored by the other participant; an explicit set is restricted
// the same way, so a reader can never mark its own messages. The operation is
// idempotent: a repeat call finds nothing unread, inserts no receipt, and
// notifies nobody. When messages were newly marked and the original sender is
// live, it receives a messages_read event; an offline sender reconciles
// through history instead.
func (s *Service) MarkRead(ctx context.Context, readerID, matchID string, messageIDs []string) (ReadResult, error) {
	participation, err := s.Authorize(ctx, readerID, matchID)
	if err != nil {
		return ReadResult{}, err
	}

	readAt := s.clock().UTC()
	var marked []string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&Message{}).
			Where("match_id = ? AND sender_id <> ? AND status <> ?", matchID, readerID, StatusRead)
		if len(messageIDs) > 0 {
			query = query.Where("message_id IN ?", messageIDs)
		}
		if err := query.Order("message_id").Pluck("message_id", &marked).Error; err != nil {
			return err
		}
		if len(marked) == 0 {
			return nil
		}

		result := tx.Model(&Message{}).
			Where("message_id IN ? AND status <> ?", marked, StatusRead).
			Updates(map[string]any{"status": StatusRead, "read_at": readAt})
		if result.Error != nil {
			return result.Error
		}

		receipts := make([]ReadReceipt, 0, len(marked))
		for _, id := range marked {
			receipts = append(receipts, ReadReceipt{
				MessageID: id,
				ReaderID:  readerID,
				ReadAt:    readAt,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts).Error
	})
	if txErr != nil {
		s.logger.Error("mark read failed",
			zap.String("reader_id", readerID),
			zap.String("match_id", matchID),
			zap.Error(txErr))
		return ReadResult{}, unavailable("read state could not be stored", txErr)
	}

	result := ReadResult{MatchID: matchID, MessageIDs: marked, ReadAt: readAt}
	if len(marked) == 0 {
		return result, nil
	}

	if sink, live := s.registry.Sink(participation.Counterpart); live {
		event := Event{
			Type: EventMessagesRead,
			Payload: MessagesReadPayload{
				MatchID:    matchID,
				MessageIDs: marked,
				ReadBy:     readerID,
				ReadAt:     readAt,
			},
		}
		if err := sink.SendEvent(event); err != nil {
			s.logger.Debug("read receipt event dropped",
				zap.String("match_id", matchID),
				zap.String("sender_id", participation.Counterpart),
				zap.Error(err))
		}
	}
	return result, nil
}
