package chunks

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/identifier"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/users"
)

const (
	opServiceNew    = "chunks.service.new"
	opCreate        = "chunks.create"
	opUpdateContent = "chunks.update_content"
	opDelete        = "chunks.delete"
	opGetChunk      = "chunks.get"
	opListChunks    = "chunks.list"
	opChunkTags     = "chunks.tags"
)

const defaultStoreTimeout = 5 * time.Second

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingIDProvider   = errors.New("id provider is required")
	errMissingSlugProvider = errors.New("slug provider is required")
	noOpLogger             = zap.NewNop()
)

// ServiceConfig describes the dependencies of the content store.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   identifier.Provider
	SlugProvider SlugProvider
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// Service manages the chunk lifecycle: creation, content updates with tag
// re-derivation, deletion with engagement cascade, and feed queries.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   identifier.Provider
	slugProvider SlugProvider
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
	if cfg.SlugProvider == nil {
		return nil, faults.New(faults.KindInternal, opServiceNew, errMissingSlugProvider)
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
		slugProvider: cfg.SlugProvider,
		logger:       logger,
		storeTimeout: timeout,
	}, nil
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Create stores a fresh chunk for the author, deriving its tag set and
// assigning a unique slug. ReplyOn, when set, must reference an existing
// chunk.
func (s *Service) Create(ctx context.Context, authorID, content string, replyOn *string) (*Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, faults.Validation(opCreate, "content", "can't be blank")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if replyOn != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Chunk{}).
			Where("id = ?", *replyOn).
			Count(&count).Error; err != nil {
			return nil, s.storeFault(opCreate, "reply_lookup_failed", err)
		}
		if count == 0 {
			return nil, faults.Validation(opCreate, "replyOn", "references a nonexistent chunk")
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, s.storeFault(opCreate, "id_generation_failed", err)
	}
	slug, err := s.slugProvider.NewSlug()
	if err != nil {
		return nil, s.storeFault(opCreate, "slug_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	chunk := Chunk{
		ID:               id,
		AuthorID:         authorID,
		Content:          content,
		ReplyOn:          replyOn,
		Slug:             slug,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&chunk).Error; err != nil {
			return err
		}
		return insertTags(tx, chunk.ID, ExtractTags(content))
	})
	if txErr != nil {
		return nil, s.storeFault(opCreate, "chunk_insert_failed", txErr)
	}
	return &chunk, nil
}

// UpdateContent replaces the content and recomputes the tag set in a single
// transaction. Authorship is enforced by the caller.
func (s *Service) UpdateContent(ctx context.Context, chunkID, newContent string) (*Chunk, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, faults.Validation(opUpdateContent, "content", "can't be blank")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var updated Chunk
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", chunkID).
			Take(&updated).Error; err != nil {
			return err
		}
		updated.Content = newContent
		updated.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		if err := tx.Where("chunk_id = ?", chunkID).Delete(&ChunkTag{}).Error; err != nil {
			return err
		}
		return insertTags(tx, chunkID, ExtractTags(newContent))
	})
	if txErr != nil {
		return nil, s.storeFault(opUpdateContent, "chunk_update_failed", txErr)
	}
	return &updated, nil
}

// Delete removes the chunk together with its tags, like edges, and comments
// in one transaction (cascade policy). Replies referencing the chunk keep
// their dangling reference resolved to nothing.
func (s *Service) Delete(ctx context.Context, chunkID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", chunkID).Delete(&Chunk{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("chunk_id = ?", chunkID).Delete(&ChunkTag{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM likes WHERE chunk_id = ?", chunkID).Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM comments WHERE chunk_id = ?", chunkID).Error
	})
	if txErr != nil {
		return s.storeFault(opDelete, "chunk_delete_failed", txErr)
	}
	return nil
}

// GetBySlug loads a chunk by its external slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Chunk, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var chunk Chunk
	if err := s.db.WithContext(ctx).
		Where("slug = ?", strings.TrimSpace(slug)).
		Take(&chunk).Error; err != nil {
		return nil, s.storeFault(opGetChunk, "chunk_lookup_failed", err)
	}
	return &chunk, nil
}

// GetByID loads a chunk by its internal identifier.
func (s *Service) GetByID(ctx context.Context, chunkID string) (*Chunk, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var chunk Chunk
	if err := s.db.WithContext(ctx).
		Where("id = ?", chunkID).
		Take(&chunk).Error; err != nil {
		return nil, s.storeFault(opGetChunk, "chunk_lookup_failed", err)
	}
	return &chunk, nil
}

// Tags returns the chunk's tag list in extraction order.
func (s *Service) Tags(ctx context.Context, chunkID string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var tags []string
	if err := s.db.WithContext(ctx).Model(&ChunkTag{}).
		Select("tag").
		Where("chunk_id = ?", chunkID).
		Order("position ASC").
		Find(&tags).Error; err != nil {
		return nil, s.storeFault(opChunkTags, "tag_query_failed", err)
	}
	return tags, nil
}

// Filter narrows List results by author handle and/or tag membership.
type Filter struct {
	AuthorHandle string
	Tags         []string
	Limit        int
	Offset       int
}

// List returns chunks matching the filter, newest first, plus the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]Chunk, int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Model(&Chunk{})
	if filter.AuthorHandle != "" {
		var author users.User
		err := s.db.WithContext(ctx).
			Where("handle = ?", strings.TrimSpace(filter.AuthorHandle)).
			Take(&author).Error
		if err != nil {
			return nil, 0, s.storeFault(opListChunks, "author_lookup_failed", err)
		}
		query = query.Where("author_id = ?", author.ID)
	}
	if len(filter.Tags) > 0 {
		query = query.Where("id IN (?)", s.db.Model(&ChunkTag{}).
			Select("chunk_id").
			Where("tag IN ?", filter.Tags))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, s.storeFault(opListChunks, "count_failed", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var records []Chunk
	if err := query.
		Order("created_at_s DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&records).Error; err != nil {
		return nil, 0, s.storeFault(opListChunks, "query_failed", err)
	}
	return records, total, nil
}

func insertTags(tx *gorm.DB, chunkID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]ChunkTag, 0, len(tags))
	for position, tag := range tags {
		rows = append(rows, ChunkTag{ChunkID: chunkID, Position: position, Tag: tag})
	}
	return tx.Create(&rows).Error
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
	s.logger.Error("chunks service error", attrs...)
}
