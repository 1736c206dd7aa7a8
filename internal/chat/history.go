package chat

import "context"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// History returns a page of conversation messages in descending id order,
// newest first. Because ids are monotonic ULIDs, id order is persistence
// order; beforeID pages toward older messages. This is the synchronous
// fallback surface and the reconnect reconciliation path for read state.
func (s *Service) History(ctx context.Context, userID, matchID, beforeID string, limit int) ([]Message, error) {
	if _, err := s.Authorize(ctx, userID, matchID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	query := s.db.WithContext(ctx).Where("match_id = ?", matchID)
	if beforeID != "" {
		query = query.Where("message_id < ?", beforeID)
	}

	var messages []Message
	if err := query.Order("message_id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, unavailable("history lookup failed", err)
	}
	return messages, nil
}
