package users

import (
	"errors"
	"fmt"
	"strings"
)

// Gender enumerates the profile gender options.
type Gender string

const (
	GenderMale        Gender = "Male"
	GenderFemale      Gender = "Female"
	GenderUnspecified Gender = "Unspecified"
)

// Valid reports whether the value is one of the known options.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnspecified:
		return true
	}
	return false
}

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("users: invalid user id")
	// ErrInvalidHandle indicates that a handle is empty or exceeds storage bounds.
	ErrInvalidHandle = errors.New("users: invalid handle")
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Handle represents a validated unique user handle.
type Handle string

// NewHandle validates raw input and returns a Handle.
func NewHandle(rawInput string) (Handle, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHandle)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidHandle, maxIdentifierLength)
	}
	if strings.ContainsAny(trimmed, " \t\n") {
		return "", fmt.Errorf("%w: contains whitespace", ErrInvalidHandle)
	}
	return Handle(trimmed), nil
}

// String returns the underlying handle string.
func (h Handle) String() string {
	return string(h)
}

// User models a registered account. Accounts are never hard-deleted; the
// owned-chunks, followers, and following sets are relational projections over
// the chunks and follows tables.
type User struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Name             string `gorm:"column:name;size:190;not null;default:''"`
	Handle           string `gorm:"column:handle;size:190;not null;uniqueIndex:idx_users_handle"`
	Email            string `gorm:"column:email;size:190;not null;uniqueIndex:idx_users_email"`
	Bio              string `gorm:"column:bio;type:text;not null;default:''"`
	Gender           Gender `gorm:"column:gender;size:32;not null;default:'Unspecified'"`
	BirthdaySeconds  *int64 `gorm:"column:birthday_s"`
	ProfilePic       string `gorm:"column:profile_pic;size:512;not null;default:''"`
	PassSalt         string `gorm:"column:pass_salt;size:190;not null;default:''"`
	PassHash         string `gorm:"column:pass_hash;size:190;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Follow is one logical follow edge. Both the follower's following set and
// the followee's followers set are views of this single row, so the two
// memberships can never diverge.
type Follow struct {
	FollowerID       string `gorm:"column:follower_id;primaryKey;size:190;not null;index:idx_follows_followee,priority:2"`
	FolloweeID       string `gorm:"column:followee_id;primaryKey;size:190;not null;index:idx_follows_followee,priority:1"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Follow) TableName() string {
	return "follows"
}

// ShortProfile is the public identity summary exposed to other users.
type ShortProfile struct {
	ID         string
	Handle     string
	ProfilePic string
	Followers  int64
}
