package server

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/emberworks/ember-backend/internal/chat"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []chat.Event
}

func (s *recordingSink) SendEvent(event chat.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) countOfType(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, event := range s.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

func newDispatchFixture(t *testing.T) (*routerFixture, *realtimeHandler) {
	t.Helper()
	fixture := newRouterFixture(t)
	realtime := newRealtimeHandler(fixture.validator, fixture.chat, zap.NewNop())
	return fixture, realtime
}

func TestDispatchSendMessageEchoesClientTempID(t *testing.T) {
	fixture, realtime := newDispatchFixture(t)
	fixture.seedMatch(t, "match-1", "alice", "bob")

	recipient := &recordingSink{}
	if _, _, err := fixture.chat.Connect(context.Background(), "bob", "conn-bob", recipient); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ack := realtime.dispatch("alice", operationFrame{
		Op:           opSendMessage,
		MatchID:      "match-1",
		Text:         "hello",
		ClientTempID: "temp-42",
	})
	if !ack.OK {
		t.Fatalf("expected ok ack, got %#v", ack)
	}

	payload, ok := ack.Data.(chat.MessagePayload)
	if !ok {
		t.Fatalf("expected message payload, got %T", ack.Data)
	}
	if payload.ClientTempID != "temp-42" {
		t.Fatalf("client temp id must round-trip to the sender, got %q", payload.ClientTempID)
	}
	if payload.Status != chat.StatusDelivered {
		t.Fatalf("expected delivered status for a live recipient, got %q", payload.Status)
	}
	if recipient.countOfType(chat.EventNewMessage) != 1 {
		t.Fatalf("recipient should have received the message event")
	}
}

func TestDispatchSendMessageReportsValidationFailures(t *testing.T) {
	fixture, realtime := newDispatchFixture(t)
	fixture.seedMatch(t, "match-1", "alice", "bob")

	ack := realtime.dispatch("alice", operationFrame{Op: opSendMessage, MatchID: "match-1", Text: "   "})
	if ack.OK {
		t.Fatalf("expected a failed ack for an empty body")
	}
	if ack.Code != string(chat.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %q", ack.Code)
	}
}

func TestDispatchMarkRead(t *testing.T) {
	fixture, realtime := newDispatchFixture(t)
	fixture.seedMatch(t, "match-1", "alice", "bob")
	if _, err := fixture.chat.Send(context.Background(), "alice", "match-1", "hello", ""); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	ack := realtime.dispatch("bob", operationFrame{Op: opMarkRead, MatchID: "match-1"})
	if !ack.OK {
		t.Fatalf("expected ok ack, got %#v", ack)
	}
	response, ok := ack.Data.(markReadResponsePayload)
	if !ok {
		t.Fatalf("expected mark read payload, got %T", ack.Data)
	}
	if response.Count != 1 {
		t.Fatalf("expected one message marked, got %d", response.Count)
	}
}

func TestDispatchTypingAndHeartbeat(t *testing.T) {
	fixture, realtime := newDispatchFixture(t)
	fixture.seedMatch(t, "match-1", "alice", "bob")

	if ack := realtime.dispatch("alice", operationFrame{Op: opTyping, MatchID: "match-1", IsTyping: true}); !ack.OK {
		t.Fatalf("typing should ack ok, got %#v", ack)
	}
	if ack := realtime.dispatch("alice", operationFrame{Op: opHeartbeat}); !ack.OK {
		t.Fatalf("heartbeat should ack ok, got %#v", ack)
	}
}

func TestDispatchOnlineStatus(t *testing.T) {
	fixture, realtime := newDispatchFixture(t)
	if _, _, err := fixture.chat.Connect(context.Background(), "bob", "conn-bob", &recordingSink{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ack := realtime.dispatch("alice", operationFrame{Op: opGetOnlineStatus, UserIDs: []string{"bob", "carol"}})
	if !ack.OK {
		t.Fatalf("expected ok ack, got %#v", ack)
	}
	statuses, ok := ack.Data.([]chat.PresenceStatus)
	if !ok {
		t.Fatalf("expected presence statuses, got %T", ack.Data)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected two statuses, got %d", len(statuses))
	}
	if !statuses[0].IsOnline || statuses[1].IsOnline {
		t.Fatalf("expected bob online and carol offline, got %#v", statuses)
	}
}

func TestDispatchRejectsUnknownOperation(t *testing.T) {
	_, realtime := newDispatchFixture(t)

	ack := realtime.dispatch("alice", operationFrame{Op: "self_destruct"})
	if ack.OK {
		t.Fatalf("unknown operations must fail")
	}
	if ack.Code != string(chat.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %q", ack.Code)
	}
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/ws", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before upgrade, got %d", recorder.Code)
	}
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/ws?token=forged", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before upgrade, got %d", recorder.Code)
	}
}
