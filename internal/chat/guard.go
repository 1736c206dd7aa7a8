package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Participation is the proof that an identity may act on a conversation.
type Participation struct {
	Match       Match
	UserID      string
	Counterpart string
}

// Authorize is the sole authorization boundary for conversation operations.
// It denies with NOT_FOUND when the match does not exist and with
// PERMISSION_DENIED when userID is neither participant.
func (s *Service) Authorize(ctx context.Context, userID, matchID string) (Participation, error) {
	if userID == "" {
		return Participation{}, forbidden("identity is required")
	}
	if matchID == "" {
		return Participation{}, invalidArgument("match id is required")
	}

	var match Match
	err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Take(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Participation{}, notFound("match not found")
	}
	if err != nil {
		return Participation{}, unavailable("match lookup failed", err)
	}

	counterpart, ok := match.Counterpart(userID)
	if !ok {
		return Participation{}, forbidden("not a participant of this match")
	}
	return Participation{
		Match:       match,
		UserID:      userID,
		Counterpart: counterpart,
	}, nil
}
