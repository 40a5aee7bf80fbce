package server

import (
	"context"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/engagement"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/notifications"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/users"
)

type shortUserPayload struct {
	ID         string `json:"id"`
	Handle     string `json:"handle"`
	ProfilePic string `json:"profile_pic"`
	Followers  int64  `json:"followers"`
}

type authUserPayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Handle           string `json:"handle"`
	Email            string `json:"email"`
	Bio              string `json:"bio"`
	Gender           string `json:"gender"`
	BirthdaySeconds  *int64 `json:"birthday_s"`
	ProfilePic       string `json:"profile_pic"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

type authResponsePayload struct {
	User  authUserPayload `json:"user"`
	Token string          `json:"token"`
}

type profilePayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Handle           string `json:"handle"`
	Bio              string `json:"bio"`
	Gender           string `json:"gender"`
	ProfilePic       string `json:"profile_pic"`
	Followers        int64  `json:"followers"`
	Following        int64  `json:"following"`
	IsFollowing      bool   `json:"is_following"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

type commentPayload struct {
	ID               string           `json:"id"`
	Author           shortUserPayload `json:"author"`
	Content          string           `json:"content"`
	CreatedAtSeconds int64            `json:"created_at_s"`
	UpdatedAtSeconds int64            `json:"updated_at_s"`
}

type chunkPayload struct {
	ID               string             `json:"id"`
	Slug             string             `json:"slug"`
	Author           shortUserPayload   `json:"author"`
	Content          string             `json:"content"`
	ReplyOn          *chunkPayload      `json:"reply_on"`
	Tags             []string           `json:"tags,omitempty"`
	Likes            int64              `json:"likes"`
	Comments         int64              `json:"comments"`
	IsLiked          bool               `json:"is_liked"`
	Likers           []shortUserPayload `json:"likers,omitempty"`
	CommentList      []commentPayload   `json:"comment_list,omitempty"`
	CreatedAtSeconds int64              `json:"created_at_s"`
	UpdatedAtSeconds int64              `json:"updated_at_s"`
}

type notificationPayload struct {
	ID               string           `json:"id"`
	Actor            shortUserPayload `json:"actor"`
	Action           string           `json:"action"`
	RedirectTo       string           `json:"redirect_to"`
	CreatedAtSeconds int64            `json:"created_at_s"`
}

func shortUserView(profile users.ShortProfile) shortUserPayload {
	return shortUserPayload{
		ID:         profile.ID,
		Handle:     profile.Handle,
		ProfilePic: profile.ProfilePic,
		Followers:  profile.Followers,
	}
}

func authUserView(user *users.User) authUserPayload {
	return authUserPayload{
		ID:               user.ID,
		Name:             user.Name,
		Handle:           user.Handle,
		Email:            user.Email,
		Bio:              user.Bio,
		Gender:           string(user.Gender),
		BirthdaySeconds:  user.BirthdaySeconds,
		ProfilePic:       user.ProfilePic,
		CreatedAtSeconds: user.CreatedAtSeconds,
	}
}

func (h *httpHandler) profileView(ctx context.Context, user *users.User, viewerID string) (profilePayload, error) {
	followers, err := h.users.FollowerCount(ctx, user.ID)
	if err != nil {
		return profilePayload{}, err
	}
	following, err := h.users.FollowingCount(ctx, user.ID)
	if err != nil {
		return profilePayload{}, err
	}
	isFollowing := false
	if viewerID != "" && viewerID != user.ID {
		isFollowing, err = h.users.IsFollowing(ctx, viewerID, user.ID)
		if err != nil {
			return profilePayload{}, err
		}
	}
	return profilePayload{
		ID:               user.ID,
		Name:             user.Name,
		Handle:           user.Handle,
		Bio:              user.Bio,
		Gender:           string(user.Gender),
		ProfilePic:       user.ProfilePic,
		Followers:        followers,
		Following:        following,
		IsFollowing:      isFollowing,
		CreatedAtSeconds: user.CreatedAtSeconds,
	}, nil
}

func (h *httpHandler) shortUserViewByID(ctx context.Context, userID string) (shortUserPayload, error) {
	profiles, err := h.users.ShortProfiles(ctx, []string{userID})
	if err != nil {
		return shortUserPayload{}, err
	}
	return shortUserView(profiles[userID]), nil
}

// shortChunkView builds the compact chunk projection. The reply target is
// rendered at most one level deep; a dangling reference renders as null.
func (h *httpHandler) shortChunkView(ctx context.Context, chunk *chunks.Chunk, viewerID string, withReply bool) (chunkPayload, error) {
	author, err := h.shortUserViewByID(ctx, chunk.AuthorID)
	if err != nil {
		return chunkPayload{}, err
	}
	likes, err := h.engagement.LikeCount(ctx, chunk.ID)
	if err != nil {
		return chunkPayload{}, err
	}
	comments, err := h.engagement.CommentCount(ctx, chunk.ID)
	if err != nil {
		return chunkPayload{}, err
	}
	isLiked := false
	if viewerID != "" {
		isLiked, err = h.engagement.Liked(ctx, chunk.ID, viewerID)
		if err != nil {
			return chunkPayload{}, err
		}
	}

	payload := chunkPayload{
		ID:               chunk.ID,
		Slug:             chunk.Slug,
		Author:           author,
		Content:          chunk.Content,
		Likes:            likes,
		Comments:         comments,
		IsLiked:          isLiked,
		CreatedAtSeconds: chunk.CreatedAtSeconds,
		UpdatedAtSeconds: chunk.UpdatedAtSeconds,
	}
	if withReply && chunk.ReplyOn != nil {
		parent, err := h.chunks.GetByID(ctx, *chunk.ReplyOn)
		switch {
		case err == nil:
			parentView, err := h.shortChunkView(ctx, parent, viewerID, false)
			if err != nil {
				return chunkPayload{}, err
			}
			payload.ReplyOn = &parentView
		case faults.KindOf(err) != faults.KindNotFound:
			return chunkPayload{}, err
		}
	}
	return payload, nil
}

func (h *httpHandler) fullChunkView(ctx context.Context, chunk *chunks.Chunk, viewerID string) (chunkPayload, error) {
	payload, err := h.shortChunkView(ctx, chunk, viewerID, true)
	if err != nil {
		return chunkPayload{}, err
	}

	tags, err := h.chunks.Tags(ctx, chunk.ID)
	if err != nil {
		return chunkPayload{}, err
	}
	payload.Tags = tags

	likerIDs, err := h.engagement.ListLikerIDs(ctx, chunk.ID)
	if err != nil {
		return chunkPayload{}, err
	}
	likers, err := h.users.ShortProfiles(ctx, likerIDs)
	if err != nil {
		return chunkPayload{}, err
	}
	payload.Likers = make([]shortUserPayload, 0, len(likerIDs))
	for _, id := range likerIDs {
		if profile, ok := likers[id]; ok {
			payload.Likers = append(payload.Likers, shortUserView(profile))
		}
	}

	records, _, err := h.engagement.ListComments(ctx, chunk.ID)
	if err != nil {
		return chunkPayload{}, err
	}
	payload.CommentList, err = h.commentViews(ctx, records)
	if err != nil {
		return chunkPayload{}, err
	}
	return payload, nil
}

func (h *httpHandler) commentViews(ctx context.Context, records []engagement.Comment) ([]commentPayload, error) {
	authorIDs := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if _, ok := seen[record.AuthorID]; ok {
			continue
		}
		seen[record.AuthorID] = struct{}{}
		authorIDs = append(authorIDs, record.AuthorID)
	}
	authors, err := h.users.ShortProfiles(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	views := make([]commentPayload, 0, len(records))
	for _, record := range records {
		views = append(views, commentPayload{
			ID:               record.ID,
			Author:           shortUserView(authors[record.AuthorID]),
			Content:          record.Content,
			CreatedAtSeconds: record.CreatedAtSeconds,
			UpdatedAtSeconds: record.UpdatedAtSeconds,
		})
	}
	return views, nil
}

func notificationViews(entries []notifications.InboxEntry) []notificationPayload {
	views := make([]notificationPayload, 0, len(entries))
	for _, entry := range entries {
		views = append(views, notificationPayload{
			ID:               entry.Notification.ID,
			Actor:            shortUserView(entry.Actor),
			Action:           string(entry.Notification.Action),
			RedirectTo:       entry.Notification.RedirectTo,
			CreatedAtSeconds: entry.Notification.CreatedAtSeconds,
		})
	}
	return views
}
