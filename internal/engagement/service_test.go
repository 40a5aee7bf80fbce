package engagement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
)

type countingIDGenerator struct {
	prefix string
	next   int
}

func (g *countingIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (p *recordingPublisher) Publish(event fanout.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return true
}

func (p *recordingPublisher) recorded() []fanout.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fanout.Event(nil), p.events...)
}

func newTestService(t *testing.T, events fanout.Publisher) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:engagement_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&chunks.Chunk{}, &Like{}, &Comment{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1750000600, 0).UTC() },
		IDProvider: &countingIDGenerator{prefix: "comment"},
		Events:     events,
	})
	if err != nil {
		t.Fatalf("failed to construct engagement service: %v", err)
	}
	return service, db
}

func seedChunk(t *testing.T, db *gorm.DB, id, authorID, slug string) {
	t.Helper()
	chunk := chunks.Chunk{
		ID:       id,
		AuthorID: authorID,
		Content:  "seeded",
		Slug:     slug,
	}
	if err := db.Create(&chunk).Error; err != nil {
		t.Fatalf("failed to seed chunk: %v", err)
	}
}

func TestAddLikeIsIdempotent(t *testing.T) {
	events := &recordingPublisher{}
	service, _ := newTestService(t, events)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	ctx := context.Background()
	added, err := service.AddLike(ctx, "chunk-1", "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !added {
		t.Fatalf("first like should add a membership")
	}

	added, err = service.AddLike(ctx, "chunk-1", "user-2")
	if err != nil {
		t.Fatalf("repeated like must not fail: %v", err)
	}
	if added {
		t.Fatalf("repeated like must not add a second membership")
	}

	count, err := service.LikeCount(ctx, "chunk-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("liker set must stay identical after repeated likes, got %d", count)
	}

	recorded := events.recorded()
	if len(recorded) != 1 {
		t.Fatalf("expected exactly one like event, got %d", len(recorded))
	}
	if recorded[0].Action != fanout.ActionLike || recorded[0].RecipientID != "author-1" {
		t.Fatalf("unexpected event %#v", recorded[0])
	}
	if recorded[0].RedirectTo != "/chunks/abc123" {
		t.Fatalf("expected redirect to the chunk, got %s", recorded[0].RedirectTo)
	}
}

func TestAddLikeSuppressesSelfNotification(t *testing.T) {
	events := &recordingPublisher{}
	service, _ := newTestService(t, events)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	added, err := service.AddLike(context.Background(), "chunk-1", "author-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !added {
		t.Fatalf("self-like still adds the membership")
	}
	if len(events.recorded()) != 0 {
		t.Fatalf("self-like must not notify")
	}
}

func TestAddLikeMissingChunk(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.AddLike(context.Background(), "no-such-chunk", "user-2")
	if faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveLikeRoundTripAndIdempotence(t *testing.T) {
	service, _ := newTestService(t, nil)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	ctx := context.Background()
	if _, err := service.AddLike(ctx, "chunk-1", "user-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.RemoveLike(ctx, "chunk-1", "user-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	liked, err := service.Liked(ctx, "chunk-1", "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if liked {
		t.Fatalf("expected membership removed")
	}

	if err := service.RemoveLike(ctx, "chunk-1", "user-2"); err != nil {
		t.Fatalf("removing an absent membership must be a no-op, got %v", err)
	}
}

func TestAddCommentNotifiesChunkAuthor(t *testing.T) {
	events := &recordingPublisher{}
	service, _ := newTestService(t, events)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	comment, err := service.AddComment(context.Background(), "chunk-1", "user-2", "great chunk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.ID == "" || comment.ChunkID != "chunk-1" {
		t.Fatalf("unexpected comment %#v", comment)
	}

	recorded := events.recorded()
	if len(recorded) != 1 {
		t.Fatalf("expected one comment event, got %d", len(recorded))
	}
	if recorded[0].Action != fanout.ActionComment || recorded[0].ActorID != "user-2" {
		t.Fatalf("unexpected event %#v", recorded[0])
	}
}

func TestAddCommentSuppressesSelfNotification(t *testing.T) {
	events := &recordingPublisher{}
	service, _ := newTestService(t, events)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	if _, err := service.AddComment(context.Background(), "chunk-1", "author-1", "my own chunk"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events.recorded()) != 0 {
		t.Fatalf("commenting on one's own chunk must not notify")
	}
}

func TestAddCommentValidation(t *testing.T) {
	service, _ := newTestService(t, nil)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	if _, err := service.AddComment(context.Background(), "chunk-1", "user-2", "  "); faults.KindOf(err) != faults.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := service.AddComment(context.Background(), "missing", "user-2", "text"); faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEditCommentAuthorOnly(t *testing.T) {
	events := &recordingPublisher{}
	service, _ := newTestService(t, events)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	ctx := context.Background()
	comment, err := service.AddComment(ctx, "chunk-1", "user-2", "original")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventsBefore := len(events.recorded())

	updated, err := service.EditComment(ctx, comment.ID, "user-2", "edited")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Content != "edited" {
		t.Fatalf("expected content replaced, got %s", updated.Content)
	}
	if len(events.recorded()) != eventsBefore {
		t.Fatalf("edits must not re-trigger fan-out")
	}

	if _, err := service.EditComment(ctx, comment.ID, "author-1", "hijack"); faults.KindOf(err) != faults.KindForbidden {
		t.Fatalf("expected forbidden for non-author edit, got %v", err)
	}
	if _, err := service.EditComment(ctx, "missing", "user-2", "text"); faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteCommentPermissions(t *testing.T) {
	service, _ := newTestService(t, nil)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")

	ctx := context.Background()

	tests := []struct {
		name     string
		caller   string
		expected faults.Kind
	}{
		{name: "comment-author", caller: "user-2", expected: ""},
		{name: "chunk-author", caller: "author-1", expected: ""},
		{name: "stranger", caller: "user-3", expected: faults.KindForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comment, err := service.AddComment(ctx, "chunk-1", "user-2", "target")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			err = service.DeleteComment(ctx, "chunk-1", comment.ID, tt.caller)
			if tt.expected == "" {
				if err != nil {
					t.Fatalf("expected delete to succeed, got %v", err)
				}
				var count int64
				if err := service.db.Model(&Comment{}).Where("id = ?", comment.ID).Count(&count).Error; err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if count != 0 {
					t.Fatalf("expected comment removed from the chunk's set")
				}
				return
			}
			if faults.KindOf(err) != tt.expected {
				t.Fatalf("expected %s, got %v", tt.expected, err)
			}
			// cleanup so the next subtest starts fresh
			if err := service.DeleteComment(ctx, "chunk-1", comment.ID, "user-2"); err != nil {
				t.Fatalf("cleanup failed: %v", err)
			}
		})
	}
}

func TestDeleteCommentWrongChunk(t *testing.T) {
	service, _ := newTestService(t, nil)
	seedChunk(t, service.db, "chunk-1", "author-1", "abc123")
	seedChunk(t, service.db, "chunk-2", "author-1", "def456")

	comment, err := service.AddComment(context.Background(), "chunk-1", "user-2", "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = service.DeleteComment(context.Background(), "chunk-2", comment.ID, "user-2")
	if faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not found for mismatched chunk, got %v", err)
	}
}

func TestListCommentsOrderedOldestFirst(t *testing.T) {
	service, db := newTestService(t, nil)
	seedChunk(t, db, "chunk-1", "author-1", "abc123")

	seeded := []Comment{
		{ID: "c-1", ChunkID: "chunk-1", AuthorID: "user-2", Content: "first", CreatedAtSeconds: 100},
		{ID: "c-2", ChunkID: "chunk-1", AuthorID: "user-3", Content: "second", CreatedAtSeconds: 200},
	}
	for i := range seeded {
		if err := db.Create(&seeded[i]).Error; err != nil {
			t.Fatalf("failed to seed comment: %v", err)
		}
	}

	records, total, err := service.ListComments(context.Background(), "chunk-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("expected both comments, got %d/%d", len(records), total)
	}
	if records[0].ID != "c-1" || records[1].ID != "c-2" {
		t.Fatalf("expected oldest-first ordering, got %#v", records)
	}
}
