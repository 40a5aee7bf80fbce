package notifications

import "github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"

// Notification is an immutable engagement record appended to the recipient's
// inbox. There is no read/unread state; inbox reads are non-destructive.
type Notification struct {
	ID               string        `gorm:"column:id;primaryKey;size:190;not null"`
	RecipientID      string        `gorm:"column:recipient_id;size:190;not null;index:idx_notifications_recipient,priority:1"`
	ActorID          string        `gorm:"column:actor_id;size:190;not null"`
	Action           fanout.Action `gorm:"column:action;size:32;not null"`
	RedirectTo       string        `gorm:"column:redirect_to;size:512;not null;default:''"`
	CreatedAtSeconds int64         `gorm:"column:created_at_s;not null;index:idx_notifications_recipient,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}
