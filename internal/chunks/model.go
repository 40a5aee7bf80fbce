package chunks

// Chunk models a user-authored post, optionally a reply to another chunk.
// The slug is the opaque external identifier; the id stays internal. A chunk
// never references itself through ReplyOn.
type Chunk struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null"`
	AuthorID         string  `gorm:"column:author_id;size:190;not null;index:idx_chunks_author"`
	Content          string  `gorm:"column:content;type:text;not null"`
	ReplyOn          *string `gorm:"column:reply_on;size:190"`
	Slug             string  `gorm:"column:slug;size:190;not null;uniqueIndex:idx_chunks_slug"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null;index:idx_chunks_created"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Chunk) TableName() string {
	return "chunks"
}

// ChunkTag is one derived hashtag of a chunk, ordered by extraction position.
// Rows are replaced wholesale whenever the content changes.
type ChunkTag struct {
	ChunkID  string `gorm:"column:chunk_id;primaryKey;size:190;not null"`
	Position int    `gorm:"column:position;primaryKey;not null"`
	Tag      string `gorm:"column:tag;size:190;not null;index:idx_chunk_tags_tag"`
}

// TableName provides the explicit table binding for GORM.
func (ChunkTag) TableName() string {
	return "chunk_tags"
}
