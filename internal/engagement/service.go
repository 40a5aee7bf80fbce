package engagement

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/identifier"
)

const (
	opServiceNew    = "engagement.service.new"
	opAddLike       = "engagement.add_like"
	opRemoveLike    = "engagement.remove_like"
	opLikeQuery     = "engagement.like_query"
	opAddComment    = "engagement.add_comment"
	opEditComment   = "engagement.edit_comment"
	opDeleteComment = "engagement.delete_comment"
	opCommentQuery  = "engagement.comment_query"
)

const defaultStoreTimeout = 5 * time.Second

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the engagement tracker.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   identifier.Provider
	Events       fanout.Publisher
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// Service manages like and comment edges on chunks and emits the fan-out
// events they trigger.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   identifier.Provider
	events       fanout.Publisher
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
		events:       cfg.Events,
		logger:       logger,
		storeTimeout: timeout,
	}, nil
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// AddLike adds the user to the chunk's liker set. The insert is an atomic
// set-add, so repeated calls converge to a single membership and only the
// call that created the row notifies the author. Self-likes never notify.
func (s *Service) AddLike(ctx context.Context, chunkID, userID string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	chunk, err := s.loadChunk(ctx, opAddLike, chunkID)
	if err != nil {
		return false, err
	}

	like := Like{
		ChunkID:          chunkID,
		UserID:           userID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like)
	if result.Error != nil {
		return false, s.storeFault(opAddLike, "like_insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil // already liked
	}

	if userID != chunk.AuthorID {
		s.publish(fanout.Event{
			RecipientID: chunk.AuthorID,
			ActorID:     userID,
			Action:      fanout.ActionLike,
			RedirectTo:  "/chunks/" + chunk.Slug,
			OccurredAt:  s.clock().UTC(),
		})
	}
	return true, nil
}

// RemoveLike removes the user from the chunk's liker set; removing an absent
// membership is a no-op and nothing is emitted.
func (s *Service) RemoveLike(ctx context.Context, chunkID, userID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).
		Where("chunk_id = ? AND user_id = ?", chunkID, userID).
		Delete(&Like{}).Error; err != nil {
		return s.storeFault(opRemoveLike, "like_delete_failed", err)
	}
	return nil
}

// Liked reports whether the user is in the chunk's liker set.
func (s *Service) Liked(ctx context.Context, chunkID, userID string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&Like{}).
		Where("chunk_id = ? AND user_id = ?", chunkID, userID).
		Count(&count).Error; err != nil {
		return false, s.storeFault(opLikeQuery, "like_lookup_failed", err)
	}
	return count > 0, nil
}

// LikeCount returns the size of the chunk's liker set.
func (s *Service) LikeCount(ctx context.Context, chunkID string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&Like{}).
		Where("chunk_id = ?", chunkID).
		Count(&count).Error; err != nil {
		return 0, s.storeFault(opLikeQuery, "like_count_failed", err)
	}
	return count, nil
}

// ListLikerIDs returns the liker set in like order.
func (s *Service) ListLikerIDs(ctx context.Context, chunkID string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var ids []string
	if err := s.db.WithContext(ctx).Model(&Like{}).
		Select("user_id").
		Where("chunk_id = ?", chunkID).
		Order("created_at_s ASC").
		Find(&ids).Error; err != nil {
		return nil, s.storeFault(opLikeQuery, "like_query_failed", err)
	}
	return ids, nil
}

// AddComment creates a comment on the chunk and notifies the chunk's author
// unless the commenter is the author.
func (s *Service) AddComment(ctx context.Context, chunkID, authorID, content string) (*Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, faults.Validation(opAddComment, "content", "can't be blank")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	chunk, err := s.loadChunk(ctx, opAddComment, chunkID)
	if err != nil {
		return nil, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, s.storeFault(opAddComment, "id_generation_failed", err)
	}
	now := s.clock().UTC().Unix()
	comment := Comment{
		ID:               id,
		ChunkID:          chunkID,
		AuthorID:         authorID,
		Content:          content,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, s.storeFault(opAddComment, "comment_insert_failed", err)
	}

	if authorID != chunk.AuthorID {
		s.publish(fanout.Event{
			RecipientID: chunk.AuthorID,
			ActorID:     authorID,
			Action:      fanout.ActionComment,
			RedirectTo:  "/chunks/" + chunk.Slug,
			OccurredAt:  s.clock().UTC(),
		})
	}
	return &comment, nil
}

// EditComment replaces the comment's content. Only the comment's author may
// edit it; edits never re-trigger fan-out.
func (s *Service) EditComment(ctx context.Context, commentID, callerID, newContent string) (*Comment, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, faults.Validation(opEditComment, "content", "can't be blank")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var comment Comment
	if err := s.db.WithContext(ctx).
		Where("id = ?", commentID).
		Take(&comment).Error; err != nil {
		return nil, s.storeFault(opEditComment, "comment_lookup_failed", err)
	}
	if comment.AuthorID != callerID {
		return nil, faults.Forbidden(opEditComment)
	}

	comment.Content = newContent
	comment.UpdatedAtSeconds = s.clock().UTC().Unix()
	if err := s.db.WithContext(ctx).Save(&comment).Error; err != nil {
		return nil, s.storeFault(opEditComment, "comment_update_failed", err)
	}
	return &comment, nil
}

// DeleteComment removes the comment record, and with it the membership in
// the chunk's comment set. The comment's author and the chunk's author may
// both delete.
func (s *Service) DeleteComment(ctx context.Context, chunkID, commentID, callerID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var comment Comment
	if err := s.db.WithContext(ctx).
		Where("id = ? AND chunk_id = ?", commentID, chunkID).
		Take(&comment).Error; err != nil {
		return s.storeFault(opDeleteComment, "comment_lookup_failed", err)
	}

	if comment.AuthorID != callerID {
		chunk, err := s.loadChunk(ctx, opDeleteComment, chunkID)
		if err != nil {
			return err
		}
		if chunk.AuthorID != callerID {
			return faults.Forbidden(opDeleteComment)
		}
	}

	if err := s.db.WithContext(ctx).
		Where("id = ?", commentID).
		Delete(&Comment{}).Error; err != nil {
		return s.storeFault(opDeleteComment, "comment_delete_failed", err)
	}
	return nil
}

// ListComments returns the chunk's comments oldest first plus the total count.
func (s *Service) ListComments(ctx context.Context, chunkID string) ([]Comment, int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var total int64
	if err := s.db.WithContext(ctx).Model(&Comment{}).
		Where("chunk_id = ?", chunkID).
		Count(&total).Error; err != nil {
		return nil, 0, s.storeFault(opCommentQuery, "comment_count_failed", err)
	}

	var records []Comment
	if err := s.db.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		Order("created_at_s ASC").
		Find(&records).Error; err != nil {
		return nil, 0, s.storeFault(opCommentQuery, "comment_query_failed", err)
	}
	return records, total, nil
}

// CommentCount returns the size of the chunk's comment set.
func (s *Service) CommentCount(ctx context.Context, chunkID string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&Comment{}).
		Where("chunk_id = ?", chunkID).
		Count(&count).Error; err != nil {
		return 0, s.storeFault(opCommentQuery, "comment_count_failed", err)
	}
	return count, nil
}

func (s *Service) loadChunk(ctx context.Context, operation, chunkID string) (*chunks.Chunk, error) {
	var chunk chunks.Chunk
	if err := s.db.WithContext(ctx).
		Where("id = ?", chunkID).
		Take(&chunk).Error; err != nil {
		return nil, s.storeFault(operation, "chunk_lookup_failed", err)
	}
	return &chunk, nil
}

func (s *Service) publish(event fanout.Event) {
	if s.events == nil {
		return
	}
	if !s.events.Publish(event) {
		s.logger.Warn("fanout event dropped",
			zap.String("action", string(event.Action)),
			zap.String("recipient_id", event.RecipientID))
	}
}

func (s *Service) storeFault(operation, reason string, err error) error {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(operation, reason, err)
	}
	return faults.FromStore(operation, err)
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
	s.logger.Error("engagement service error", attrs...)
}
