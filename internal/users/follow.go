package users

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/fanout"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
)

const (
	opFollow        = "users.follow"
	opUnfollow      = "users.unfollow"
	opIsFollowing   = "users.is_following"
	opFollowCounts  = "users.follow_counts"
	opListFollowers = "users.list_followers"
	opListFollowing = "users.list_following"
)

// Follow records a follow edge from follower to followee. The edge is a
// single row, so both set memberships commit or fail together. Re-following
// an existing edge is a no-op and emits no event.
func (s *Service) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return faults.Validation(opFollow, "followee", "cannot follow yourself")
	}

	follower, err := s.GetByID(ctx, followerID)
	if err != nil {
		return err
	}
	if _, err := s.GetByID(ctx, followeeID); err != nil {
		return err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	edge := Follow{
		FollowerID:       followerID,
		FolloweeID:       followeeID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edge)
	if result.Error != nil {
		return s.storeFault(opFollow, "edge_insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil // edge already present
	}

	s.publish(fanout.Event{
		RecipientID: followeeID,
		ActorID:     followerID,
		Action:      fanout.ActionFollow,
		RedirectTo:  "/users/" + follower.Handle,
		OccurredAt:  s.clock().UTC(),
	})
	return nil
}

// Unfollow removes the follow edge; removing an absent edge is a no-op.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&Follow{}).Error; err != nil {
		return s.storeFault(opUnfollow, "edge_delete_failed", err)
	}
	return nil
}

// IsFollowing reports whether a follows b. Pure query, no mutation.
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, s.storeFault(opIsFollowing, "edge_lookup_failed", err)
	}
	return count > 0, nil
}

// FollowerCount returns how many users follow the given user.
func (s *Service) FollowerCount(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Where("followee_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, s.storeFault(opFollowCounts, "follower_count_failed", err)
	}
	return count, nil
}

// FollowingCount returns how many users the given user follows.
func (s *Service) FollowingCount(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Where("follower_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, s.storeFault(opFollowCounts, "following_count_failed", err)
	}
	return count, nil
}

// ListFollowers returns short profiles of the users following userID.
func (s *Service) ListFollowers(ctx context.Context, userID string) ([]ShortProfile, error) {
	return s.edgeProfiles(ctx, opListFollowers, "follower_id", "followee_id", userID)
}

// ListFollowing returns short profiles of the users userID follows.
func (s *Service) ListFollowing(ctx context.Context, userID string) ([]ShortProfile, error) {
	return s.edgeProfiles(ctx, opListFollowing, "followee_id", "follower_id", userID)
}

func (s *Service) edgeProfiles(ctx context.Context, operation, selectColumn, whereColumn, userID string) ([]ShortProfile, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var ids []string
	if err := s.db.WithContext(ctx).Model(&Follow{}).
		Select(selectColumn).
		Where(whereColumn+" = ?", userID).
		Order("created_at_s DESC").
		Find(&ids).Error; err != nil {
		return nil, s.storeFault(operation, "edge_query_failed", err)
	}

	profiles, err := s.ShortProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	ordered := make([]ShortProfile, 0, len(ids))
	for _, id := range ids {
		if profile, ok := profiles[id]; ok {
			ordered = append(ordered, profile)
		}
	}
	return ordered, nil
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
