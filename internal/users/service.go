package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/identifier"
)

const (
	opServiceNew     = "users.service.new"
	opRegister       = "users.register"
	opAuthenticate   = "users.authenticate"
	opGetUser        = "users.get"
	opUpdateProfile  = "users.update_profile"
	opListUsers      = "users.list"
	opShortProfiles  = "users.short_profiles"
	opFollowerCounts = "users.follower_counts"
)

const defaultStoreTimeout = 5 * time.Second

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingHasher     = errors.New("password hasher is required")
	noOpLogger           = zap.NewNop()
)

// PasswordHasher is the credential derivation dependency.
type PasswordHasher interface {
	HashPassword(plaintext string) (saltHex string, hashHex string, err error)
	VerifyPassword(saltHex, hashHex, supplied string) bool
}

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   identifier.Provider
	Hasher       PasswordHasher
	Events       fanout.Publisher
	Logger       *zap.Logger
	StoreTimeout time.Duration
}

// Service manages user accounts and the follow graph.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   identifier.Provider
	hasher       PasswordHasher
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
	if cfg.Hasher == nil {
		return nil, faults.New(faults.KindInternal, opServiceNew, errMissingHasher)
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
		hasher:       cfg.Hasher,
		events:       cfg.Events,
		logger:       logger,
		storeTimeout: timeout,
	}, nil
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// RegistrationInput carries the fields supplied at sign-up.
type RegistrationInput struct {
	Name     string
	Handle   string
	Email    string
	Password string
}

// Register creates a new account with a freshly derived credential.
func (s *Service) Register(ctx context.Context, input RegistrationInput) (*User, error) {
	handle, err := NewHandle(input.Handle)
	if err != nil {
		return nil, faults.Validation(opRegister, "handle", "is invalid")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, faults.Validation(opRegister, "email", "is invalid")
	}
	if input.Password == "" {
		return nil, faults.Validation(opRegister, "password", "can't be blank")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var taken int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("handle = ?", handle.String()).
		Count(&taken).Error; err != nil {
		return nil, s.storeFault(opRegister, "handle_lookup_failed", err)
	}
	if taken > 0 {
		return nil, faults.Validation(opRegister, "handle", "is already taken")
	}
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("email = ?", email).
		Count(&taken).Error; err != nil {
		return nil, s.storeFault(opRegister, "email_lookup_failed", err)
	}
	if taken > 0 {
		return nil, faults.Validation(opRegister, "email", "is already taken")
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, s.storeFault(opRegister, "id_generation_failed", err)
	}
	salt, hash, err := s.hasher.HashPassword(input.Password)
	if err != nil {
		return nil, s.storeFault(opRegister, "credential_derivation_failed", err)
	}

	now := s.clock().UTC().Unix()
	user := User{
		ID:               id,
		Name:             strings.TrimSpace(input.Name),
		Handle:           handle.String(),
		Email:            email,
		Gender:           GenderUnspecified,
		PassSalt:         salt,
		PassHash:         hash,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, s.storeFault(opRegister, "user_insert_failed", err)
	}
	return &user, nil
}

// Authenticate verifies an email/password pair. Failures are reported as
// field-scoped credential errors, never as opaque faults.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var user User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.TrimSpace(email)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, faults.InvalidCredential(opAuthenticate, "email", "is not registered")
	}
	if err != nil {
		return nil, s.storeFault(opAuthenticate, "user_lookup_failed", err)
	}
	if !s.hasher.VerifyPassword(user.PassSalt, user.PassHash, password) {
		return nil, faults.InvalidCredential(opAuthenticate, "password", "is incorrect")
	}
	return &user, nil
}

// GetByID loads a user record by its identifier.
func (s *Service) GetByID(ctx context.Context, userID string) (*User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var user User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error; err != nil {
		return nil, s.storeFault(opGetUser, "user_lookup_failed", err)
	}
	return &user, nil
}

// GetByHandle loads a user record by its unique handle.
func (s *Service) GetByHandle(ctx context.Context, handle string) (*User, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var user User
	if err := s.db.WithContext(ctx).
		Where("handle = ?", strings.TrimSpace(handle)).
		Take(&user).Error; err != nil {
		return nil, s.storeFault(opGetUser, "user_lookup_failed", err)
	}
	return &user, nil
}

// Exists reports whether a user id refers to a registered account.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Count(&count).Error; err != nil {
		return false, s.storeFault(opGetUser, "user_lookup_failed", err)
	}
	return count > 0, nil
}

// ProfileUpdate carries optional profile field changes; nil means unchanged.
type ProfileUpdate struct {
	Name            *string
	Bio             *string
	Gender          *Gender
	BirthdaySeconds *int64
	ProfilePic      *string
}

// UpdateProfile applies the supplied profile changes to the caller's record.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*User, error) {
	if update.Gender != nil && !update.Gender.Valid() {
		return nil, faults.Validation(opUpdateProfile, "gender", "is not a valid option")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	changes := map[string]interface{}{}
	if update.Name != nil {
		changes["name"] = strings.TrimSpace(*update.Name)
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}
	if update.Gender != nil {
		changes["gender"] = *update.Gender
	}
	if update.BirthdaySeconds != nil {
		changes["birthday_s"] = *update.BirthdaySeconds
	}
	if update.ProfilePic != nil {
		changes["profile_pic"] = strings.TrimSpace(*update.ProfilePic)
	}
	if len(changes) > 0 {
		changes["updated_at_s"] = s.clock().UTC().Unix()
		result := s.db.WithContext(ctx).Model(&User{}).
			Where("id = ?", userID).
			Updates(changes)
		if result.Error != nil {
			return nil, s.storeFault(opUpdateProfile, "user_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, faults.NotFound(opUpdateProfile, "user")
		}
	}
	return s.GetByID(ctx, userID)
}

// Filter narrows List results. Handle matches exactly; FollowersOf and
// FollowingOf reference another user's handle.
type Filter struct {
	Handle      string
	FollowersOf string
	FollowingOf string
	Limit       int
	Offset      int
}

// List returns users matching the filter, newest first, plus the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]User, int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Model(&User{})
	if filter.Handle != "" {
		query = query.Where("handle = ?", strings.TrimSpace(filter.Handle))
	}
	if filter.FollowersOf != "" {
		followee, err := s.GetByHandle(ctx, filter.FollowersOf)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("id IN (?)", s.db.Model(&Follow{}).
			Select("follower_id").
			Where("followee_id = ?", followee.ID))
	}
	if filter.FollowingOf != "" {
		follower, err := s.GetByHandle(ctx, filter.FollowingOf)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("id IN (?)", s.db.Model(&Follow{}).
			Select("followee_id").
			Where("follower_id = ?", follower.ID))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, s.storeFault(opListUsers, "count_failed", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var records []User
	if err := query.
		Order("created_at_s DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&records).Error; err != nil {
		return nil, 0, s.storeFault(opListUsers, "query_failed", err)
	}
	return records, total, nil
}

// ShortProfiles resolves public identity summaries for a set of user ids.
func (s *Service) ShortProfiles(ctx context.Context, userIDs []string) (map[string]ShortProfile, error) {
	if len(userIDs) == 0 {
		return map[string]ShortProfile{}, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var records []User
	if err := s.db.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&records).Error; err != nil {
		return nil, s.storeFault(opShortProfiles, "query_failed", err)
	}

	counts, err := s.followerCounts(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]ShortProfile, len(records))
	for _, record := range records {
		profiles[record.ID] = ShortProfile{
			ID:         record.ID,
			Handle:     record.Handle,
			ProfilePic: record.ProfilePic,
			Followers:  counts[record.ID],
		}
	}
	return profiles, nil
}

func (s *Service) followerCounts(ctx context.Context, userIDs []string) (map[string]int64, error) {
	type followerCount struct {
		FolloweeID string
		Total      int64
	}
	var rows []followerCount
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Select("followee_id", "COUNT(*) AS total").
		Where("followee_id IN ?", userIDs).
		Group("followee_id").
		Find(&rows).Error; err != nil {
		return nil, s.storeFault(opFollowerCounts, "count_failed", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.FolloweeID] = row.Total
	}
	return counts, nil
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
	s.logger.Error("users service error", attrs...)
}
