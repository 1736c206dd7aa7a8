package chat

import (
	"context"
	"sync"
	"time"
)

// TypingState is ephemeral by design: last write wins, nothing is persisted,
// and a process restart forgets all of it.
type TypingState struct {
	IsTyping  bool
	UpdatedAt time.Time
}

type typingKey struct {
	matchID string
	userID  string
}

type typingTable struct {
	mu     sync.Mutex
	states map[typingKey]TypingState
}

func newTypingTable() typingTable {
	return typingTable{states: make(map[typingKey]TypingState)}
}

func (t *typingTable) set(key typingKey, state TypingState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[key] = state
}

func (t *typingTable) get(key typingKey) (TypingState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[key]
	return state, ok
}

// SetTyping upserts the caller's typing state for a conversation and relays
// it to the counterpart when one is connected. A relay to an offline
// counterpart is dropped silently; a late "stopped typing" is acceptable
// to lose.
func (s *Service) SetTyping(ctx context.Context, userID, matchID string, isTyping bool) error {
	participation, err := s.Authorize(ctx, userID, matchID)
	if err != nil {
		return err
	}

	s.typing.set(typingKey{matchID: matchID, userID: userID}, TypingState{
		IsTyping:  isTyping,
		UpdatedAt: s.clock().UTC(),
	})

	sink, live := s.registry.Sink(participation.Counterpart)
	if !live {
		return nil
	}
	event := Event{
		Type: EventUserTyping,
		Payload: TypingPayload{
			MatchID:  matchID,
			UserID:   userID,
			IsTyping: isTyping,
		},
	}
	// Best effort: a dead connection is the disconnect path's problem.
	_ = sink.SendEvent(event)
	return nil
}

// Typing exposes the current ephemeral state for a participant.
func (s *Service) Typing(matchID, userID string) (TypingState, bool) {
	return s.typing.get(typingKey{matchID: matchID, userID: userID})
}
