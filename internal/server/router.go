package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
	"github.com/MarcoPoloResearchLab/yapp/internal/feed"
	"github.com/MarcoPoloResearchLab/yapp/internal/metrics"
	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/reaction"
	"github.com/MarcoPoloResearchLab/yapp/internal/users"
	"github.com/MarcoPoloResearchLab/yapp/internal/wire"
)

const (
	authorContextKey = "yapp_author"
	jsonContentType  = "application/json; charset=utf-8"
)

var (
	errMissingValidator     = errors.New("session validator dependency required")
	errMissingPostsService  = errors.New("posts service dependency required")
	errMissingRealtime      = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionValidator validates bearer tokens.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

type Dependencies struct {
	Validator    SessionValidator
	PostsService *posts.Service
	UsersService *users.Service
	Realtime     *RealtimeDispatcher
	// Publisher defaults to Realtime; a RedisRelay fans out across replicas.
	Publisher RealtimePublisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Clock     func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Validator == nil {
		return nil, errMissingValidator
	}
	if deps.PostsService == nil {
		return nil, errMissingPostsService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = deps.Realtime
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}
	router.Use(corsMiddleware())

	handler := &httpHandler{
		validator:    deps.Validator,
		postsService: deps.PostsService,
		usersService: deps.UsersService,
		realtime:     deps.Realtime,
		publisher:    publisher,
		logger:       logger,
		clock:        clock,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/posts", handler.handleCreatePost)
	protected.GET("/posts", handler.handleListPosts)
	protected.GET("/posts/user/:email", handler.handleListPostsByAuthor)
	protected.GET("/posts/:id", handler.handleGetPost)
	protected.PUT("/posts/:id", handler.handleUpdatePost)
	protected.DELETE("/posts/:id", handler.handleDeletePost)
	protected.POST("/posts/:id/like", handler.toggleHandler(reaction.ActionLike))
	protected.POST("/posts/:id/dislike", handler.toggleHandler(reaction.ActionDislike))
	protected.PUT("/posts/:id/reaction", handler.handleSetReaction)
	protected.POST("/posts/:id/comments", handler.handleAddComment)
	protected.GET("/posts/:id/comments", handler.handleListComments)
	protected.GET("/stream", handler.handleStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	validator    SessionValidator
	postsService *posts.Service
	usersService *users.Service
	realtime     *RealtimeDispatcher
	publisher    RealtimePublisher
	logger       *zap.Logger
	clock        func() time.Time
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	author, ok := h.author(c)
	if !ok {
		return
	}
	var request wire.ContentRequest
	if !h.bind(c, &request) {
		return
	}
	content, err := posts.NewContent(request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.postsService.CreatePost(c.Request.Context(), author, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	post := toWirePost(view)
	h.publish(feed.EventPostCreated, post.ID, post)
	h.respond(c, http.StatusCreated, post)
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	views, err := h.postsService.ListPosts(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, toWirePosts(views))
}

func (h *httpHandler) handleListPostsByAuthor(c *gin.Context) {
	email, err := posts.NewEmail(c.Param("email"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	views, err := h.postsService.ListPostsByAuthor(c.Request.Context(), email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, toWirePosts(views))
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	postID, ok := h.postID(c)
	if !ok {
		return
	}
	view, err := h.postsService.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, toWirePost(view))
}

func (h *httpHandler) handleUpdatePost(c *gin.Context) {
	author, ok := h.author(c)
	if !ok {
		return
	}
	postID, ok := h.postID(c)
	if !ok {
		return
	}
	var request wire.UpdatePostRequest
	if !h.bind(c, &request) {
		return
	}
	update := posts.PostUpdate{LikedBy: request.LikedBy, DislikedBy: request.DislikedBy}
	if request.Content != nil {
		content, err := posts.NewContent(*request.Content)
		if err != nil {
			h.respondError(c, err)
			return
		}
		update.Content = &content
	}
	if update.Content == nil && update.LikedBy == nil && update.DislikedBy == nil {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_request"})
		return
	}
	view, err := h.postsService.UpdatePost(c.Request.Context(), author, postID, update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	post := toWirePost(view)
	h.publish(feed.EventPostUpdated, post.ID, post)
	h.respond(c, http.StatusOK, post)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	author, ok := h.author(c)
	if !ok {
		return
	}
	postID, ok := h.postID(c)
	if !ok {
		return
	}
	if err := h.postsService.DeletePost(c.Request.Context(), author, postID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(feed.EventPostDeleted, postID.String(), wire.PostDeleted{ID: postID.String()})
	h.respond(c, http.StatusOK, wire.DeletedResponse{Deleted: true})
}

func (h *httpHandler) toggleHandler(action reaction.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		author, ok := h.author(c)
		if !ok {
			return
		}
		postID, ok := h.postID(c)
		if !ok {
			return
		}
		var request wire.ToggleRequest
		if !h.bindOptional(c, &request) {
			return
		}
		if name := strings.TrimSpace(request.Name); name != "" {
			author.DisplayName = name
		}
		view, err := h.postsService.ToggleReaction(c.Request.Context(), author, postID, action)
		if err != nil {
			h.respondError(c, err)
			return
		}
		post := toWirePost(view)
		h.publish(feed.EventPostUpdated, post.ID, post)
		h.respond(c, http.StatusOK, post)
	}
}

func (h *httpHandler) handleSetReaction(c *gin.Context) {
	author, ok := h.author(c)
	if !ok {
		return
	}
	postID, ok := h.postID(c)
	if !ok {
		return
	}
	var request wire.ReactionRequest
	if !h.bind(c, &request) {
		return
	}
	state, err := reaction.ParseState(request.State)
	if err != nil {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_state"})
		return
	}
	view, err := h.postsService.SetReaction(c.Request.Context(), author, postID, state)
	if err != nil {
		h.respondError(c, err)
		return
	}
	post := toWirePost(view)
	h.publish(feed.EventPostUpdated, post.ID, post)
	h.respond(c, http.StatusOK, post)
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	author, ok := h.author(c)
	if !ok {
		return
	}
	postID, ok := h.postID(c)
	if !ok {
		return
	}
	var request wire.ContentRequest
	if !h.bind(c, &request) {
		return
	}
	content, err := posts.NewContent(request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	comment, err := h.postsService.AddComment(c.Request.Context(), author, postID, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := toWireComment(comment)
	h.publish(feed.EventCommentCreated, payload.PostID, payload)
	h.respond(c, http.StatusCreated, payload)
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	postID, ok := h.postID(c)
	if !ok {
		return
	}
	comments, err := h.postsService.ListComments(c.Request.Context(), postID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]wire.Comment, 0, len(comments))
	for _, comment := range comments {
		payload = append(payload, toWireComment(comment))
	}
	h.respond(c, http.StatusOK, payload)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	author, err := posts.NewAuthor(claims.Email(), claims.UserDisplayName)
	if err != nil {
		h.logger.Warn("token carries unusable identity", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.usersService != nil {
		profile, err := h.usersService.Record(c.Request.Context(), claims)
		if err != nil {
			h.logger.Warn("user directory update failed", zap.String("user_email", author.Email.String()), zap.Error(err))
		} else if author.DisplayName == "" {
			author.DisplayName = profile.DisplayName
		}
	}
	c.Set(authorContextKey, author)
	c.Next()
}

func (h *httpHandler) author(c *gin.Context) (posts.Author, bool) {
	value, exists := c.Get(authorContextKey)
	author, ok := value.(posts.Author)
	if !exists || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return posts.Author{}, false
	}
	return author, true
}

func (h *httpHandler) postID(c *gin.Context) (posts.PostID, bool) {
	postID, err := posts.NewPostID(c.Param("id"))
	if err != nil {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_post_id"})
		return "", false
	}
	return postID, true
}

// bind decodes a required JSON body.
func (h *httpHandler) bind(c *gin.Context, target any) bool {
	body, err := c.GetRawData()
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_request"})
		return false
	}
	if err := wire.JSON.Unmarshal(body, target); err != nil {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_request"})
		return false
	}
	return true
}

// bindOptional accepts an empty body.
func (h *httpHandler) bindOptional(c *gin.Context, target any) bool {
	body, err := c.GetRawData()
	if err != nil {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_request"})
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := wire.JSON.Unmarshal(body, target); err != nil {
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_request"})
		return false
	}
	return true
}

func (h *httpHandler) respond(c *gin.Context, status int, payload any) {
	body, err := wire.JSON.Marshal(payload)
	if err != nil {
		h.logger.Error("response encode failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "encode_failed"})
		return
	}
	c.Data(status, jsonContentType, body)
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		h.respond(c, http.StatusNotFound, wire.ErrorResponse{Error: "post_not_found"})
	case errors.Is(err, posts.ErrForbidden):
		h.respond(c, http.StatusForbidden, wire.ErrorResponse{Error: "forbidden"})
	case errors.Is(err, posts.ErrInvalidReactionSets):
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_reaction_sets"})
	case errors.Is(err, posts.ErrInvalidContent):
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_content"})
	case errors.Is(err, posts.ErrInvalidEmail):
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_email"})
	case errors.Is(err, posts.ErrInvalidPostID):
		h.respond(c, http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_post_id"})
	default:
		code := "internal_error"
		var serviceErr *posts.ServiceError
		if errors.As(err, &serviceErr) {
			code = serviceErr.Code()
		}
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
		h.respond(c, http.StatusInternalServerError, wire.ErrorResponse{Error: code})
	}
}

func (h *httpHandler) publish(eventType feed.EventType, postID string, payload any) {
	frame, err := wire.EncodeEvent(eventType, payload)
	if err != nil {
		h.logger.Error("realtime frame encode failed", zap.String("event", string(eventType)), zap.Error(err))
		return
	}
	h.publisher.Publish(RealtimeMessage{
		EventType: string(eventType),
		PostID:    postID,
		Frame:     frame,
		Timestamp: h.clock().UTC(),
	})
}

func toWirePost(view posts.PostView) wire.Post {
	comments := make([]wire.Comment, 0, len(view.Comments))
	for _, comment := range view.Comments {
		comments = append(comments, toWireComment(comment))
	}
	return wire.Post{
		ID:          view.Post.PostID,
		Content:     view.Post.Content,
		AuthorEmail: view.Post.AuthorEmail,
		AuthorName:  view.Post.AuthorName,
		CreatedAt:   wire.Timestamp(time.UnixMilli(view.Post.CreatedAtMillis)),
		LikedBy:     append([]string{}, view.LikedBy...),
		DislikedBy:  append([]string{}, view.DislikedBy...),
		Comments:    comments,
	}
}

func toWirePosts(views []posts.PostView) []wire.Post {
	payload := make([]wire.Post, 0, len(views))
	for _, view := range views {
		payload = append(payload, toWirePost(view))
	}
	return payload
}

func toWireComment(comment posts.Comment) wire.Comment {
	return wire.Comment{
		ID:          comment.CommentID,
		PostID:      comment.PostID,
		Content:     comment.Content,
		AuthorEmail: comment.AuthorEmail,
		AuthorName:  comment.AuthorName,
		CreatedAt:   wire.Timestamp(time.UnixMilli(comment.CreatedAtMillis)),
	}
}
