package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
)

func TestApplyMigrationsStripsTagHashPrefix(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&chunks.ChunkTag{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	seeded := []chunks.ChunkTag{
		{ChunkID: "chunk-1", Position: 0, Tag: "#legacy"},
		{ChunkID: "chunk-1", Position: 1, Tag: "modern"},
	}
	for i := range seeded {
		if err := database.Create(&seeded[i]).Error; err != nil {
			testContext.Fatalf("failed to insert tag: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored chunks.ChunkTag
	if err := database.Where("chunk_id = ? AND position = ?", "chunk-1", 0).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload tag: %v", err)
	}
	if stored.Tag != "legacy" {
		testContext.Fatalf("expected hash prefix stripped, got %q", stored.Tag)
	}

	if err := database.Where("chunk_id = ? AND position = ?", "chunk-1", 1).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload tag: %v", err)
	}
	if stored.Tag != "modern" {
		testContext.Fatalf("expected bare tag untouched, got %q", stored.Tag)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationStripTagHashPrefix).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("reapplying migrations must be a no-op: %v", err)
	}
}
