package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/br0z1/social-media-app/internal/errors"
	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/telemetry"
	"github.com/br0z1/social-media-app/internal/util"
)

const (
	// MaxBatchLookup bounds POST /api/posts/batch
	MaxBatchLookup = 100
	// MaxMediaFiles bounds attachments per post
	MaxMediaFiles = 4
	// MaxContentLength bounds post text
	MaxContentLength = 2000
	maxUploadBytes   = 64 << 20
)

type batchLookupRequest struct {
	PostIDs []string `json:"postIds" binding:"required"`
}

// GetPost returns one post
// GET /api/posts/:postId
func (h *Handlers) GetPost(c *gin.Context) {
	post, err := h.posts.GetPost(c.Request.Context(), c.Param("postId"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// GetPostsBatch resolves several post ids in request order; unknown ids are skipped
// POST /api/posts/batch
func (h *Handlers) GetPostsBatch(c *gin.Context) {
	var req batchLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "postIds is required")
		return
	}
	if len(req.PostIDs) > MaxBatchLookup {
		util.RespondValidationError(c, "postIds", fmt.Sprintf("at most %d ids per request", MaxBatchLookup))
		return
	}

	posts, err := h.posts.GetPosts(c.Request.Context(), req.PostIDs)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

// CreatePost stores a post at the author's location, uploading any media first
// POST /api/posts (multipart/form-data)
func (h *Handlers) CreatePost(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		util.RespondBadRequest(c, "expected multipart form data")
		return
	}

	post, apiErr := postFromForm(c)
	if apiErr != nil {
		util.RespondWithAPIError(c, apiErr)
		return
	}

	files := form.File["media"]
	if post.Content == "" && len(files) == 0 {
		util.RespondValidationError(c, "content", "content or media is required")
		return
	}
	if len(files) > MaxMediaFiles {
		util.RespondValidationError(c, "media", fmt.Sprintf("at most %d media files", MaxMediaFiles))
		return
	}
	for _, fh := range files {
		if err := util.ValidateFilename(fh.Filename); err != nil {
			util.RespondValidationError(c, "media", err.Error())
			return
		}
		mediaType := util.MediaTypeFor(fh.Filename)
		if mediaType == "" {
			util.RespondValidationError(c, "media", "unsupported media type: "+fh.Filename)
			return
		}
		if post.MediaType == "" || post.MediaType == models.MediaTypeNone {
			post.MediaType = mediaType
		}
	}
	if len(files) > 0 && h.media == nil {
		util.RespondWithAPIError(c, errors.ServiceUnavailable("media storage"))
		return
	}

	ctx, span := h.events.TraceCreatePost(c.Request.Context(), geo.BucketFor(post.Coordinates.Point()), len(files))

	keys, urls, err := h.uploadMedia(ctx, post.AuthorID, files)
	if err != nil {
		telemetry.EndWithError(span, err)
		logger.Log.Error("Media upload failed", zap.String("author_id", post.AuthorID), zap.Error(err))
		util.RespondWithAPIError(c, errors.ServiceUnavailable("media storage"))
		return
	}
	post.MediaURLs = urls

	if err := h.posts.CreatePost(ctx, post); err != nil {
		telemetry.EndWithError(span, err)
		h.discardMedia(ctx, keys)
		util.RespondError(c, err)
		return
	}
	telemetry.EndWithError(span, nil)

	logger.Log.Info("Post created",
		logger.WithPostID(post.PostID),
		logger.WithBucket(post.PartitionKey),
		zap.String("author_id", post.AuthorID),
		zap.Int("media", len(urls)),
	)
	c.JSON(http.StatusCreated, post)
}

// postFromForm reads and validates the text fields of a create request
func postFromForm(c *gin.Context) (*models.Post, *errors.APIError) {
	post := &models.Post{
		Content:            strings.TrimSpace(c.PostForm("content")),
		AuthorID:           strings.TrimSpace(c.PostForm("authorId")),
		AuthorUsername:     strings.TrimSpace(c.PostForm("authorUsername")),
		AuthorProfileImage: c.PostForm("authorProfileImage"),
		SubjectCategory:    strings.TrimSpace(c.PostForm("subjectCategory")),
	}

	if post.AuthorID == "" {
		return nil, errors.ValidationError("authorId", "authorId is required")
	}
	if post.AuthorUsername == "" {
		return nil, errors.ValidationError("authorUsername", "authorUsername is required")
	}
	if len(post.Content) > MaxContentLength {
		return nil, errors.ValidationError("content", fmt.Sprintf("content exceeds %d characters", MaxContentLength))
	}

	raw := c.PostForm("coordinates")
	if raw == "" {
		return nil, errors.ValidationError("coordinates", "coordinates are required")
	}
	var point geo.Point
	if err := json.Unmarshal([]byte(raw), &point); err != nil {
		return nil, errors.ValidationError("coordinates", "coordinates must be {\"lat\":..,\"lng\":..}")
	}
	if err := point.Validate(); err != nil {
		return nil, errors.FromError(err)
	}
	post.Coordinates = models.Coordinates{Lat: point.Lat, Lng: point.Lng}

	if level := c.PostForm("engagementLevel"); level != "" {
		parsed, err := models.ParseEngagementLevel(level)
		if err != nil || parsed == models.EngagementAny {
			return nil, errors.ValidationError("engagementLevel", "engagementLevel must be low, medium or high")
		}
		post.EngagementLevel = parsed
	}

	return post, nil
}

// uploadMedia uploads attachments concurrently, keeping form order. On
// failure anything already stored is removed again.
func (h *Handlers) uploadMedia(ctx context.Context, authorID string, files []*multipart.FileHeader) ([]string, []string, error) {
	if len(files) == 0 {
		return nil, nil, nil
	}

	keys := make([]string, len(files))
	urls := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, fh := range files {
		g.Go(func() error {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("open %s: %w", fh.Filename, err)
			}
			defer f.Close()

			result, err := h.media.UploadMedia(gctx, f, fh.Size, authorID, fh.Filename)
			if err != nil {
				return err
			}
			keys[i] = result.Key
			urls[i] = result.URL
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.discardMedia(ctx, keys)
		return nil, nil, err
	}
	return keys, urls, nil
}

func (h *Handlers) discardMedia(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := h.media.DeleteFile(ctx, key); err != nil {
			logger.Log.Warn("Failed to delete orphaned media", zap.String("key", key), zap.Error(err))
		}
	}
}
