package queue

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jukebox-queue-system/pkg/apperr"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the queue endpoints. admin guards staff actions.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, admin gin.HandlerFunc) {
	queue := r.Group("/queue")
	{
		queue.GET("", h.getQueue)
		queue.DELETE("/:id", admin, h.removeItem)
		queue.POST("/skip", admin, h.skip)
		queue.POST("/advance", admin, h.advance)
		queue.POST("/filler", admin, h.addFiller)
		queue.POST("/startup", admin, h.startDay)
	}

	r.GET("/reports/top-tracks", admin, h.topTracks)
}

func (h *Handler) getQueue(c *gin.Context) {
	var userID *uuid.UUID
	if id, err := uuid.Parse(c.GetString("user_id")); err == nil {
		userID = &id
	}

	entries, err := h.service.GetQueue(c.Request.Context(), userID, c.GetBool("is_admin"))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": entries})
}

func (h *Handler) removeItem(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid queue item id"})
		return
	}

	removed, err := h.service.RemoveItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, removed)
}

type SkipRequest struct {
	QueueItemID string `json:"queue_item_id" binding:"required,uuid"`
}

func (h *Handler) skip(c *gin.Context) {
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.SkipNowPlaying(c.Request.Context(), uuid.MustParse(req.QueueItemID))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"now_playing": result.NowPlaying})
}

func (h *Handler) advance(c *gin.Context) {
	result, err := h.service.Advance(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"now_playing": result.NowPlaying})
}

type FillerRequest struct {
	TrackID string `json:"track_id" binding:"required"`
}

func (h *Handler) addFiller(c *gin.Context) {
	var req FillerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.service.AddFiller(c.Request.Context(), req.TrackID)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) startDay(c *gin.Context) {
	if err := h.service.ResetForNewDay(c.Request.Context()); err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) topTracks(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	top, err := h.service.TopTracks(c.Request.Context(), limit)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": top})
}
