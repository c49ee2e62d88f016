package vote

import (
	"net/http"

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

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/votes", h.submitVote)
}

type VoteRequest struct {
	QueueItemID string `json:"queue_item_id" binding:"required,uuid"`
	IsUpvote    *bool  `json:"is_upvote" binding:"required"`
}

func (h *Handler) submitVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	userID, err := uuid.Parse(c.GetString("user_id")) // Set by auth middleware
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid user"})
		return
	}

	result, err := h.service.ApplyVote(c.Request.Context(), uuid.MustParse(req.QueueItemID), userID, *req.IsUpvote)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "vote": result})
}
