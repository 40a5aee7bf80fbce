package notifications

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/identifier"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/users"
)

const (
	opServiceNew = "notifications.service.new"
	opRecord     = "notifications.record"
	opListInbox  = "notifications.list_inbox"
)

const defaultStoreTimeout = 5 * time.Second

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUsers      = errors.New("users service is required")
	errUnknownAction     = errors.New("unknown fan-out action")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the fan-out consumer.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   identifier.Provider
	Users        *users.Service
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// Service persists fan-out events as notification records and serves inbox
// reads. Persistence is best-effort: failures are logged, never surfaced to
// the action that triggered the event.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   identifier.Provider
	users        *users.Service
	logger       *zap.Logger
	storeTimeout time.Duration
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, faults.New(faults.KindInternal, opServiceNew, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, faults.New(faults.KindInternal, opServiceNew, errMissingIDProvider)
	}
	if cfg.Users == nil {
		return nil, faults.New(faults.KindInternal, opServiceNew, errMissingUsers)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Service{
		db:           cfg.Database,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		users:        cfg.Users,
		logger:       logger,
		storeTimeout: timeout,
	}, nil
}

// Record persists a single fan-out event. Events addressed to unknown
// recipients are dropped with a log line; the caller never sees that as a
// failure.
func (s *Service) Record(ctx context.Context, event fanout.Event) error {
	if !event.Action.Valid() {
		return faults.New(faults.KindValidation, opRecord, errUnknownAction)
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	exists, err := s.users.Exists(ctx, event.RecipientID)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Warn("notification dropped for unknown recipient",
			zap.String("operation", opRecord),
			zap.String("recipient_id", event.RecipientID),
			zap.String("action", string(event.Action)))
		return nil
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return faults.New(faults.KindInternal, opRecord, err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock().UTC()
	}
	record := Notification{
		ID:               id,
		RecipientID:      event.RecipientID,
		ActorID:          event.ActorID,
		Action:           event.Action,
		RedirectTo:       event.RedirectTo,
		CreatedAtSeconds: occurredAt.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opRecord, "notification_insert_failed", err,
			zap.String("recipient_id", event.RecipientID))
		return faults.FromStore(opRecord, err)
	}
	return nil
}

// Run consumes the bus until the context is cancelled or the bus closes.
// Each event is recorded independently; one failure never stops the loop.
func (s *Service) Run(ctx context.Context, bus *fanout.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-bus.Events():
			if !ok {
				return
			}
			if err := s.Record(ctx, event); err != nil {
				s.logError(opRecord, "event_record_failed", err)
			}
		}
	}
}

// InboxEntry pairs a stored notification with the acting user's public
// identity.
type InboxEntry struct {
	Notification Notification
	Actor        users.ShortProfile
}

// ListInbox returns the recipient's notifications most-recent-first. Reading
// marks nothing; the inbox has no read state.
func (s *Service) ListInbox(ctx context.Context, userID string) ([]InboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var records []Notification
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at_s DESC, id DESC").
		Find(&records).Error; err != nil {
		s.logError(opListInbox, "query_failed", err, zap.String("user_id", userID))
		return nil, faults.FromStore(opListInbox, err)
	}

	actorIDs := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if _, ok := seen[record.ActorID]; ok {
			continue
		}
		seen[record.ActorID] = struct{}{}
		actorIDs = append(actorIDs, record.ActorID)
	}
	actors, err := s.users.ShortProfiles(ctx, actorIDs)
	if err != nil {
		return nil, err
	}

	entries := make([]InboxEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, InboxEntry{
			Notification: record,
			Actor:        actors[record.ActorID],
		})
	}
	return entries, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notifications service error", attrs...)
}
