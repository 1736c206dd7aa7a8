package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Match{}, &Message{}, &ReadReceipt{}, &PresenceRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedMatch(t *testing.T, db *gorm.DB, matchID, userA, userB string) {
	t.Helper()
	match := Match{ID: matchID, UserAID: userA, UserBID: userB}
	if err := db.Create(&match).Error; err != nil {
		t.Fatalf("failed to seed match: %v", err)
	}
}

// tickingClock hands out strictly increasing timestamps so ordering
// assertions are deterministic.
type tickingClock struct {
	mu   sync.Mutex
	next time.Time
}

func newTickingClock(start time.Time) *tickingClock {
	return &tickingClock{next: start}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Millisecond)
	return now
}

type stubSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *stubSink) SendEvent(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *stubSink) eventsOfType(eventType string) []Event {
	matched := make([]Event, 0)
	for _, event := range s.Events() {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type notifyCall struct {
	RecipientID string
	Title       string
	Body        string
	Data        map[string]string
}

// channelNotifier records push dispatches on a channel so tests can wait for
// the detached goroutine.
type channelNotifier struct {
	calls chan notifyCall
	err   error
}

func newChannelNotifier() *channelNotifier {
	return &channelNotifier{calls: make(chan notifyCall, 8)}
}

func (n *channelNotifier) Notify(_ context.Context, recipientID, title, body string, data map[string]string) error {
	n.calls <- notifyCall{RecipientID: recipientID, Title: title, Body: body, Data: data}
	return n.err
}

func (n *channelNotifier) waitForCall(t *testing.T) notifyCall {
	t.Helper()
	select {
	case call := <-n.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a push dispatch within deadline")
		return notifyCall{}
	}
}

func (n *channelNotifier) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case call := <-n.calls:
		t.Fatalf("unexpected push dispatch: %#v", call)
	case <-time.After(100 * time.Millisecond):
	}
}

type serviceFixture struct {
	service  *Service
	registry *Registry
	notifier *channelNotifier
	clock    *tickingClock
	db       *gorm.DB
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := openTestDB(t)
	registry := NewRegistry()
	notifier := newChannelNotifier()
	clock := newTickingClock(time.Unix(1700000000, 0).UTC())

	service, err := NewService(ServiceConfig{
		Database: db,
		Registry: registry,
		Notifier: notifier,
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return &serviceFixture{
		service:  service,
		registry: registry,
		notifier: notifier,
		clock:    clock,
		db:       db,
	}
}

func (f *serviceFixture) messageByID(t *testing.T, id string) Message {
	t.Helper()
	var message Message
	if err := f.db.Where("message_id = ?", id).Take(&message).Error; err != nil {
		t.Fatalf("failed to load message %s: %v", id, err)
	}
	return message
}

func (f *serviceFixture) receiptCount(t *testing.T, messageID string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&ReadReceipt{}).Where("message_id = ?", messageID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count receipts: %v", err)
	}
	return count
}
