package rules

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jukebox-queue-system/pkg/apperr"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the rule endpoints. admin guards mutations.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, admin gin.HandlerFunc) {
	rules := r.Group("/rules")
	{
		rules.GET("", h.list)
		rules.PUT("/:name", admin, h.update)
	}
}

func (h *Handler) list(c *gin.Context) {
	rules, err := h.service.All(c.Request.Context())
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

type UpdateRuleRequest struct {
	Value       string `json:"value" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.service.Update(c.Request.Context(), c.Param("name"), req.Value, req.Description)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}
