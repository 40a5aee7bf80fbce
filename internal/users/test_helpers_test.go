package users

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/credentials"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
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

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &Follow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, events fanout.Publisher) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1750000600, 0).UTC() },
		IDProvider: &countingIDGenerator{prefix: "user"},
		Hasher:     credentials.NewPasswordHasher(credentials.PasswordHasherConfig{}),
		Events:     events,
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	return service, db
}

func mustRegister(t *testing.T, service *Service, handle string) *User {
	t.Helper()
	user, err := service.Register(context.Background(), RegistrationInput{
		Name:     handle,
		Handle:   handle,
		Email:    handle + "@example.com",
		Password: "pass-" + handle,
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", handle, err)
	}
	return user
}
