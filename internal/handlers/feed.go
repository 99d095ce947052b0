package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/br0z1/social-media-app/internal/feed"
	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/telemetry"
	"github.com/br0z1/social-media-app/internal/util"
)

type nextBatchRequest struct {
	SessionID   string      `json:"sessionId"`
	SphereID    string      `json:"sphereId"`
	Coordinates *geo.Sphere `json:"coordinates"`
	Count       *int        `json:"count"`
}

type visibleRangeRequest struct {
	Start *int `json:"start" binding:"required"`
	End   *int `json:"end" binding:"required"`
}

// NextBatch returns the next posts for a viewing session
// POST /api/posts/next-batch
//
// The session comes from the body or the X-Session-ID header and is created
// on first use; its id is echoed back in X-Session-ID. Coordinates may be
// omitted to keep sampling the session's current sphere.
func (h *Handlers) NextBatch(c *gin.Context) {
	var req nextBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid request body")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.GetHeader(SessionIDHeader)
	}

	sphere, err := h.requestSphere(sessionID, req.Coordinates)
	if err != nil {
		util.RespondError(c, err)
		return
	}

	count := feed.TargetOnDeck
	if req.Count != nil {
		count = util.ClampInt(*req.Count, 1, feed.TargetOnDeck, feed.TargetOnDeck)
	}

	ctx, span := h.events.TraceNextBatch(c.Request.Context(), sessionID, sphere.Radius, count)

	manager, sessionID, err := h.sessions.Acquire(sessionID, req.SphereID, sphere)
	if err != nil {
		telemetry.EndWithError(span, err)
		util.RespondError(c, err)
		return
	}
	c.Header(SessionIDHeader, sessionID)

	posts, exhausted, err := manager.NextPosts(ctx, count)
	telemetry.EndWithResult(span, len(posts), exhausted, err)
	if err != nil {
		util.RespondError(c, err)
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}

	c.Header(ExhaustedHeader, strconv.FormatBool(exhausted))
	c.JSON(http.StatusOK, posts)
}

// requestSphere picks the sphere for a next-batch request
func (h *Handlers) requestSphere(sessionID string, coords *geo.Sphere) (geo.Sphere, error) {
	if coords != nil {
		return *coords, nil
	}
	if sessionID != "" {
		if manager, err := h.sessions.Get(sessionID); err == nil && manager.Session().State() != feed.StateUninitialized {
			return manager.Session().Sphere(), nil
		}
	}
	return geo.Sphere{}, fmt.Errorf("%w: coordinates are required", geo.ErrInvalidSphere)
}

// SessionActivity records a scroll or tap so the session keeps refilling
// POST /api/feed/sessions/:sessionId/activity
func (h *Handlers) SessionActivity(c *gin.Context) {
	manager, err := h.sessions.Get(c.Param("sessionId"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	manager.OnUserActivity()
	c.Status(http.StatusNoContent)
}

// UpdateVisibleRange tells the session which delivered positions are on screen
// PUT /api/feed/sessions/:sessionId/visible-range
func (h *Handlers) UpdateVisibleRange(c *gin.Context) {
	var req visibleRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondValidationError(c, "range", "start and end are required")
		return
	}

	manager, err := h.sessions.Get(c.Param("sessionId"))
	if err != nil {
		util.RespondError(c, err)
		return
	}
	if err := manager.UpdateVisibleRange(*req.Start, *req.End); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EndSession drops a viewing session and its background refills
// DELETE /api/feed/sessions/:sessionId
func (h *Handlers) EndSession(c *gin.Context) {
	if err := h.sessions.Remove(c.Param("sessionId")); err != nil {
		util.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
