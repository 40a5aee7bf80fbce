package engagement

// Like is one membership in a chunk's liker set. The composite primary key
// makes repeated likes by the same user collapse into a single row.
type Like struct {
	ChunkID          string `gorm:"column:chunk_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_likes_user"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return "likes"
}

// Comment models a user comment owned by a chunk. Deleting the row removes
// the id from the chunk's comment set; there is no separate membership list.
type Comment struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	ChunkID          string `gorm:"column:chunk_id;size:190;not null;index:idx_comments_chunk"`
	AuthorID         string `gorm:"column:author_id;size:190;not null"`
	Content          string `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}
