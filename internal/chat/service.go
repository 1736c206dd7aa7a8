package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMaxBodyLength = 2000
	notifyTimeout        = 5 * time.Second
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingRegistry = errors.New("presence registry is required")
	noOpLogger         = zap.NewNop()
)

// Notifier is the push collaborator: best-effort delivery to a recipient's
// registered device endpoints. Failures are reported, never thrown across the
// send path.
type Notifier interface {
	Notify(ctx context.Context, recipientID, title, body string, data map[string]string) error
}

// NopNotifier drops every notification. Used in tests and when no push
// transport is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, string, map[string]string) error {
	return nil
}

// Directory resolves display names for push notification titles. Identity
// records are owned by the external provisioning service; the core only
// reads them.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ServiceConfig wires the messaging core to its collaborators.
type ServiceConfig struct {
	Database      *gorm.DB
	Registry      *Registry
	Notifier      Notifier
	Directory     Directory
	Clock         func() time.Time
	IDProvider    IDProvider
	Logger        *zap.Logger
	MaxBodyLength int
}

// Service implements message delivery, read receipts, typing relay, and
// presence broadcast for matched pairs.
type Service struct {
	db        *gorm.DB
	registry  *Registry
	notifier  Notifier
	directory Directory
	clock     func() time.Time
	ids       IDProvider
	logger    *zap.Logger
	maxBody   int

	typing typingTable
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewULIDProvider(clock)
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	maxBody := cfg.MaxBodyLength
	if maxBody <= 0 {
		maxBody = defaultMaxBodyLength
	}
	return &Service{
		db:        cfg.Database,
		registry:  cfg.Registry,
		notifier:  notifier,
		directory: cfg.Directory,
		clock:     clock,
		ids:       ids,
		logger:    logger,
		maxBody:   maxBody,
		typing:    newTypingTable(),
	}, nil
}

// Registry exposes the presence registry for transport wiring.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Connect records a live connection for userID, persists the durable presence
// flag, and announces the change to matched counterparts. The displaced sink
// from an earlier connection of the same identity is returned so the
// transport can close it.
func (s *Service) Connect(ctx context.Context, userID, connID string, sink EventSink) (EventSink, bool, error) {
	displaced, hadPrevious := s.registry.MarkOnline(userID, connID, sink)

	now := s.clock().UTC()
	if err := s.persistPresence(ctx, userID, true, now); err != nil {
		s.logger.Error("presence persist failed",
			zap.String("user_id", userID),
			zap.Bool("online", true),
			zap.Error(err))
	}

	if !hadPrevious {
		s.broadcastPresence(ctx, userID, true, now)
	}
	return displaced, hadPrevious, nil
}

// Disconnect clears the presence slot when connID is still authoritative.
// A stale disconnect (the identity reconnected elsewhere first) changes
// nothing and broadcasts nothing.
func (s *Service) Disconnect(ctx context.Context, userID, connID string) error {
	if !s.registry.MarkOffline(userID, connID) {
		return nil
	}

	now := s.clock().UTC()
	if err := s.persistPresence(ctx, userID, false, now); err != nil {
		s.logger.Error("presence persist failed",
			zap.String("user_id", userID),
			zap.Bool("online", false),
			zap.Error(err))
	}

	s.broadcastPresence(ctx, userID, false, now)
	return nil
}

func (s *Service) persistPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	record := PresenceRecord{UserID: userID, Online: online, LastSeenAt: at}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"online", "last_seen_at"}),
		}).
		Create(&record).Error
}

// broadcastPresence fans the status change out to every matched counterpart
// that currently holds a live connection. Presence is best-effort: offline
// counterparts and failed writes are skipped, never queued.
func (s *Service) broadcastPresence(ctx context.Context, userID string, online bool, at time.Time) {
	var matches []Match
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Find(&matches).Error
	if err != nil {
		s.logger.Error("presence broadcast lookup failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	event := Event{
		Type: EventUserStatusChanged,
		Payload: StatusPayload{
			UserID:    userID,
			IsOnline:  online,
			Timestamp: at,
		},
	}
	for _, match := range matches {
		counterpart, ok := match.Counterpart(userID)
		if !ok {
			continue
		}
		sink, live := s.registry.Sink(counterpart)
		if !live {
			continue
		}
		if err := sink.SendEvent(event); err != nil {
			s.logger.Debug("presence event dropped",
				zap.String("user_id", userID),
				zap.String("counterpart_id", counterpart),
				zap.Error(err))
		}
	}
}

// PresenceStatus answers a get_online_status query for one identity.
type PresenceStatus struct {
	UserID     string     `json:"user_id"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// OnlineStatus resolves liveness from the registry and last-seen timestamps
// from the durable presence records.
func (s *Service) OnlineStatus(ctx context.Context, userIDs []string) ([]PresenceStatus, error) {
	if len(userIDs) == 0 {
		return nil, invalidArgument("at least one user id is required")
	}

	var records []PresenceRecord
	if err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&records).Error; err != nil {
		return nil, unavailable("presence lookup failed", err)
	}
	lastSeen := make(map[string]time.Time, len(records))
	for _, record := range records {
		lastSeen[record.UserID] = record.LastSeenAt
	}

	statuses := make([]PresenceStatus, 0, len(userIDs))
	for _, userID := range userIDs {
		status := PresenceStatus{
			UserID:   userID,
			IsOnline: s.registry.IsOnline(userID),
		}
		if seen, ok := lastSeen[userID]; ok {
			seenCopy := seen
			status.LastSeenAt = &seenCopy
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// dispatchPush hands a notification to the push collaborator on a detached
// goroutine. A failed push is logged and never reaches the sender's
// acknowledgment.
func (s *Service) dispatchPush(recipientID string, message Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		title := "New message"
		if s.directory != nil {
			if name, err := s.directory.DisplayName(ctx, message.SenderID); err == nil && name != "" {
				title = fmt.Sprintf("New message from %s", name)
			}
		}
		err := s.notifier.Notify(ctx, recipientID, title, preview(message.Body), map[string]string{
			"match_id":   message.MatchID,
			"message_id": message.ID,
		})
		if err != nil {
			s.logger.Warn("push dispatch failed",
				zap.String("recipient_id", recipientID),
				zap.String("match_id", message.MatchID),
				zap.String("message_id", message.ID),
				zap.Error(err))
		}
	}()
}

const previewLength = 80

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength]) + "…"
}
