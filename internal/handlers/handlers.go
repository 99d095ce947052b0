package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/br0z1/social-media-app/internal/feed"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/storage"
	"github.com/br0z1/social-media-app/internal/telemetry"
)

// Headers exchanged with feed clients
const (
	SessionIDHeader = "X-Session-ID"
	ExhaustedHeader = "X-Feed-Exhausted"
)

// PostStore is what the handlers need from post storage. Both the
// repositories and the Redis post cache satisfy it.
type PostStore interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error)
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	posts    PostStore
	sessions *feed.Registry
	media    storage.MediaUploader
	events   *telemetry.FeedEvents
}

// NewHandlers creates a new handlers instance
func NewHandlers(posts PostStore, sessions *feed.Registry) *Handlers {
	return &Handlers{
		posts:    posts,
		sessions: sessions,
		events:   telemetry.NewFeedEvents(),
	}
}

// SetMediaUploader enables media attachments on post creation
func (h *Handlers) SetMediaUploader(media storage.MediaUploader) {
	h.media = media
}

// RegisterRoutes mounts the API under api. createLimit guards post creation.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, createLimit ...gin.HandlerFunc) {
	posts := api.Group("/posts")
	{
		posts.POST("/next-batch", h.NextBatch)
		posts.POST("/batch", h.GetPostsBatch)
		posts.GET("/:postId", h.GetPost)
		posts.POST("", append(createLimit, h.CreatePost)...)
	}

	sessions := api.Group("/feed/sessions")
	{
		sessions.POST("/:sessionId/activity", h.SessionActivity)
		sessions.PUT("/:sessionId/visible-range", h.UpdateVisibleRange)
		sessions.DELETE("/:sessionId", h.EndSession)
	}
}
