package chat

import (
	"context"
	"testing"
)

func TestSetTypingRelaysToLiveCounterpart(t *testing.T) {
	fixture := newServiceFixture(t)
	seedMatch(t, fixture.db, "match-1", "alice", "bob")

	bobSink := &stubSink{}
	fixture.registry.MarkOnline("bob", "conn-bob", bobSink)

	if err := fixture.service.SetTyping(context.Background(), "alice", "match-1", true); err != nil {
		t.Fatalf("set typing failed: %v", err)
	}

	events := bobSink.eventsOfType(EventUserTyping)
	if len(events) != 1 {
		t.Fatalf("expected one typing event, got %d", len(events))
	}
	payload := events[0].Payload.(TypingPayload)
	if payload.UserID != "alice" || !payload.IsTyping {
		t.Fatalf("unexpected typing payload: %#v", payload)
	}

	state, ok := fixture.service.Typing("match-1", "alice")
	if !ok || !state.IsTyping {
		t.Fatalf("typing state should be recorded, got %#v", state)
	}
}

func TestSetTypingDroppedForOfflineCounterpart(t *testing.T) {
	fixture := newServiceFixture(t)
	seedMatch(t, fixture.db, "match-1", "alice", "bob")

	if err := fixture.service.SetTyping(context.Background(), "alice", "match-1", true); err != nil {
		t.Fatalf("set typing failed: %v", err)
	}
	if err := fixture.service.SetTyping(context.Background(), "alice", "match-1", false); err != nil {
		t.Fatalf("clearing typing failed: %v", err)
	}

	state, ok := fixture.service.Typing("match-1", "alice")
	if !ok || state.IsTyping {
		t.Fatalf("last write should win, got %#v", state)
	}
}

func TestSetTypingRejectsNonParticipant(t *testing.T) {
	fixture := newServiceFixture(t)
	seedMatch(t, fixture.db, "match-1", "alice", "bob")

	err := fixture.service.SetTyping(context.Background(), "mallory", "match-1", true)
	if CodeOf(err) != CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
}

func TestTypingStateDoesNotSurviveServiceRestart(t *testing.T) {
	fixture := newServiceFixture(t)
	seedMatch(t, fixture.db, "match-1", "alice", "bob")
	sendMessages(t, fixture, "alice", "match-1", "hello")
	fixture.notifier.waitForCall(t)

	if err := fixture.service.SetTyping(context.Background(), "alice", "match-1", true); err != nil {
		t.Fatalf("set typing failed: %v", err)
	}

	// A new service over the same database models a process restart.
	restarted, err := NewService(ServiceConfig{
		Database: fixture.db,
		Registry: NewRegistry(),
	})
	if err != nil {
		t.Fatalf("failed to restart service: %v", err)
	}

	if _, ok := restarted.Typing("match-1", "alice"); ok {
		t.Fatalf("typing state must not survive a restart")
	}

	messages, err := restarted.History(context.Background(), "bob", "match-1", "", 0)
	if err != nil {
		t.Fatalf("history after restart failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("durable messages must survive a restart, got %d", len(messages))
	}
}
