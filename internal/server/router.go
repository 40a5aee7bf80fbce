package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SilverbirchLabs/chunkfeed/backend/internal/chunks"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/credentials"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/engagement"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/faults"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/notifications"
	"github.com/SilverbirchLabs/chunkfeed/backend/internal/users"
)

const userIDContextKey = "chunkfeed_user_id"

var (
	errMissingTokenIssuer   = errors.New("token issuer dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingChunksService = errors.New("chunks service dependency required")
	errMissingEngagement    = errors.New("engagement service dependency required")
	errMissingNotifications = errors.New("notifications service dependency required")
)

// Dependencies wires the domain services into the HTTP surface.
type Dependencies struct {
	Tokens        *credentials.TokenIssuer
	Users         *users.Service
	Chunks        *chunks.Service
	Engagement    *engagement.Service
	Notifications *notifications.Service
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router serving the public API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Chunks == nil {
		return nil, errMissingChunksService
	}
	if deps.Engagement == nil {
		return nil, errMissingEngagement
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.Tokens,
		users:         deps.Users,
		chunks:        deps.Chunks,
		engagement:    deps.Engagement,
		notifications: deps.Notifications,
		logger:        logger,
	}

	public := router.Group("/api")
	public.Use(handler.identifyRequest)
	public.POST("/users", handler.handleRegister)
	public.POST("/users/login", handler.handleLogin)
	public.GET("/users", handler.handleListUsers)
	public.GET("/users/:handle", handler.handleGetProfile)
	public.GET("/chunks", handler.handleListChunks)
	public.GET("/chunks/:slug", handler.handleGetChunk)
	public.GET("/chunks/:slug/comment", handler.handleListComments)
	public.GET("/chunks/:slug/like", handler.handleListLikers)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users/me", handler.handleCurrentUser)
	protected.PUT("/users/me", handler.handleUpdateProfile)
	protected.POST("/users/:handle/follow", handler.handleFollow)
	protected.DELETE("/users/:handle/follow", handler.handleUnfollow)
	protected.POST("/chunks", handler.handleCreateChunk)
	protected.PUT("/chunks/:slug", handler.handleUpdateChunk)
	protected.DELETE("/chunks/:slug", handler.handleDeleteChunk)
	protected.POST("/chunks/:slug/comment", handler.handleAddComment)
	protected.PUT("/chunks/:slug/comment/:id", handler.handleEditComment)
	protected.DELETE("/chunks/:slug/comment/:id", handler.handleDeleteComment)
	protected.POST("/chunks/:slug/like", handler.handleAddLike)
	protected.DELETE("/chunks/:slug/like", handler.handleRemoveLike)
	protected.GET("/notifications", handler.handleListNotifications)

	return router, nil
}

type httpHandler struct {
	tokens        *credentials.TokenIssuer
	users         *users.Service
	chunks        *chunks.Service
	engagement    *engagement.Service
	notifications *notifications.Service
	logger        *zap.Logger
}

// identifyRequest resolves an optional bearer token so public reads can
// personalize their payloads. Invalid tokens are ignored, never rejected.
func (h *httpHandler) identifyRequest(c *gin.Context) {
	if claims, err := h.tokens.VerifyToken(bearerToken(c)); err == nil {
		c.Set(userIDContextKey, claims.UserID())
	}
	c.Next()
}

// authorizeRequest rejects requests without a valid bearer token.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errors": gin.H{"token": "is missing"}})
		return
	}
	claims, err := h.tokens.VerifyToken(token)
	if err != nil {
		h.logger.Warn("token verification failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"errors": gin.H{"token": "is invalid"}})
		return
	}
	c.Set(userIDContextKey, claims.UserID())
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (h *httpHandler) respondFault(c *gin.Context, err error) {
	kind := faults.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case faults.KindValidation:
		status = http.StatusBadRequest
	case faults.KindInvalidCredential, faults.KindUnauthorized:
		status = http.StatusUnauthorized
	case faults.KindForbidden:
		status = http.StatusForbidden
	case faults.KindNotFound:
		status = http.StatusNotFound
	case faults.KindStoreTimeout:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	fields := faults.FieldsOf(err)
	if len(fields) == 0 {
		c.JSON(status, gin.H{"error": string(kind)})
		return
	}
	c.JSON(status, gin.H{"errors": fields})
}

type registerRequestPayload struct {
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegistrationInput{
		Name:     request.Name,
		Handle:   request.Handle,
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		h.respondFault(c, err)
		return
	}
	token, err := h.tokens.IssueToken(user.ID, user.Handle)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, authResponsePayload{User: authUserView(user), Token: token})
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	token, err := h.tokens.IssueToken(user.ID, user.Handle)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponsePayload{User: authUserView(user), Token: token})
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, authUserView(user))
}

type profileUpdatePayload struct {
	Name            *string `json:"name"`
	Bio             *string `json:"bio"`
	Gender          *string `json:"gender"`
	BirthdaySeconds *int64  `json:"birthday_s"`
	ProfilePic      *string `json:"profile_pic"`
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request profileUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}

	update := users.ProfileUpdate{
		Name:            request.Name,
		Bio:             request.Bio,
		BirthdaySeconds: request.BirthdaySeconds,
		ProfilePic:      request.ProfilePic,
	}
	if request.Gender != nil {
		gender := users.Gender(*request.Gender)
		update.Gender = &gender
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), c.GetString(userIDContextKey), update)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, authUserView(user))
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	filter := users.Filter{
		Handle:      c.Query("handle"),
		FollowersOf: c.Query("followers_of"),
		FollowingOf: c.Query("following_of"),
		Limit:       queryInt(c, "limit"),
		Offset:      queryInt(c, "offset"),
	}
	records, total, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		h.respondFault(c, err)
		return
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	profiles, err := h.users.ShortProfiles(c.Request.Context(), ids)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	views := make([]shortUserPayload, 0, len(records))
	for _, record := range records {
		views = append(views, shortUserView(profiles[record.ID]))
	}
	c.JSON(http.StatusOK, gin.H{"users": views, "total": total})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	user, err := h.users.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	profile, err := h.profileView(c.Request.Context(), user, c.GetString(userIDContextKey))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleFollow(c *gin.Context) {
	followee, err := h.users.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	if err := h.users.Follow(c.Request.Context(), c.GetString(userIDContextKey), followee.ID); err != nil {
		h.respondFault(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUnfollow(c *gin.Context) {
	followee, err := h.users.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	if err := h.users.Unfollow(c.Request.Context(), c.GetString(userIDContextKey), followee.ID); err != nil {
		h.respondFault(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type chunkRequestPayload struct {
	Content string  `json:"content"`
	ReplyOn *string `json:"reply_on"`
}

func (h *httpHandler) handleCreateChunk(c *gin.Context) {
	var request chunkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}

	chunk, err := h.chunks.Create(c.Request.Context(), c.GetString(userIDContextKey), request.Content, request.ReplyOn)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	view, err := h.fullChunkView(c.Request.Context(), chunk, c.GetString(userIDContextKey))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleGetChunk(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	view, err := h.fullChunkView(c.Request.Context(), chunk, c.GetString(userIDContextKey))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleListChunks(c *gin.Context) {
	filter := chunks.Filter{
		AuthorHandle: c.Query("author"),
		Limit:        queryInt(c, "limit"),
		Offset:       queryInt(c, "offset"),
	}
	if tag := c.Query("tag"); tag != "" {
		filter.Tags = []string{tag}
	}
	records, total, err := h.chunks.List(c.Request.Context(), filter)
	if err != nil {
		h.respondFault(c, err)
		return
	}

	viewerID := c.GetString(userIDContextKey)
	views := make([]chunkPayload, 0, len(records))
	for i := range records {
		view, err := h.shortChunkView(c.Request.Context(), &records[i], viewerID, true)
		if err != nil {
			h.respondFault(c, err)
			return
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"chunks": views, "total": total})
}

func (h *httpHandler) handleUpdateChunk(c *gin.Context) {
	chunk, err := h.loadOwnedChunk(c)
	if err != nil {
		h.respondFault(c, err)
		return
	}

	var request chunkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}
	updated, err := h.chunks.UpdateContent(c.Request.Context(), chunk.ID, request.Content)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	view, err := h.fullChunkView(c.Request.Context(), updated, c.GetString(userIDContextKey))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeleteChunk(c *gin.Context) {
	chunk, err := h.loadOwnedChunk(c)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	if err := h.chunks.Delete(c.Request.Context(), chunk.ID); err != nil {
		h.respondFault(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) loadOwnedChunk(c *gin.Context) (*chunks.Chunk, error) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		return nil, err
	}
	if chunk.AuthorID != c.GetString(userIDContextKey) {
		return nil, faults.Forbidden("server.chunk_ownership")
	}
	return chunk, nil
}

type commentRequestPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}

	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}
	comment, err := h.engagement.AddComment(c.Request.Context(), chunk.ID, c.GetString(userIDContextKey), request.Content)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	views, err := h.commentViews(c.Request.Context(), []engagement.Comment{*comment})
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusCreated, views[0])
}

func (h *httpHandler) handleEditComment(c *gin.Context) {
	if _, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug")); err != nil {
		h.respondFault(c, err)
		return
	}

	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"body": "is not valid JSON"}})
		return
	}
	comment, err := h.engagement.EditComment(c.Request.Context(), c.Param("id"), c.GetString(userIDContextKey), request.Content)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	views, err := h.commentViews(c.Request.Context(), []engagement.Comment{*comment})
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, views[0])
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	if err := h.engagement.DeleteComment(c.Request.Context(), chunk.ID, c.Param("id"), c.GetString(userIDContextKey)); err != nil {
		h.respondFault(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	records, total, err := h.engagement.ListComments(c.Request.Context(), chunk.ID)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	views, err := h.commentViews(c.Request.Context(), records)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": views, "total": total})
}

func (h *httpHandler) handleAddLike(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	if _, err := h.engagement.AddLike(c.Request.Context(), chunk.ID, c.GetString(userIDContextKey)); err != nil {
		h.respondFault(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRemoveLike(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	if err := h.engagement.RemoveLike(c.Request.Context(), chunk.ID, c.GetString(userIDContextKey)); err != nil {
		h.respondFault(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListLikers(c *gin.Context) {
	chunk, err := h.chunks.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	likerIDs, err := h.engagement.ListLikerIDs(c.Request.Context(), chunk.ID)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	profiles, err := h.users.ShortProfiles(c.Request.Context(), likerIDs)
	if err != nil {
		h.respondFault(c, err)
		return
	}
	views := make([]shortUserPayload, 0, len(likerIDs))
	for _, id := range likerIDs {
		if profile, ok := profiles[id]; ok {
			views = append(views, shortUserView(profile))
		}
	}
	c.JSON(http.StatusOK, gin.H{"likers": views, "total": len(views)})
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	entries, err := h.notifications.ListInbox(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notificationViews(entries)})
}

func queryInt(c *gin.Context, name string) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return value
}
