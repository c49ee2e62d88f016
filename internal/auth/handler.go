package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/pkg/jwt"
	"github.com/jukebox-queue-system/pkg/models"
)

type UserStore interface {
	EnsureUser(ctx context.Context, id uuid.UUID, isAdmin bool) (*models.User, error)
}

type Handler struct {
	tokens        *jwt.Manager
	users         UserStore
	adminPasscode string
	secureCookie  bool
}

// NewHandler creates the session handler. An empty adminPasscode disables
// admin sessions.
func NewHandler(tokens *jwt.Manager, users UserStore, adminPasscode string, secureCookie bool) *Handler {
	return &Handler{
		tokens:        tokens,
		users:         users,
		adminPasscode: adminPasscode,
		secureCookie:  secureCookie,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/session", h.session)
	}
}

type SessionRequest struct {
	AdminPasscode string `json:"admin_passcode"`
}

// session issues a patron token, or an admin token when the passcode matches.
// A caller that already holds a valid token keeps its user id.
func (h *Handler) session(c *gin.Context) {
	var req SessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	isAdmin := false
	if req.AdminPasscode != "" {
		if h.adminPasscode == "" || subtle.ConstantTimeCompare([]byte(req.AdminPasscode), []byte(h.adminPasscode)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid passcode"})
			return
		}
		isAdmin = true
	}

	userID := uuid.New()
	if existing := tokenFromRequest(c); existing != "" {
		if claims, err := h.tokens.ValidateToken(existing); err == nil {
			if id, err := uuid.Parse(claims.UserID); err == nil {
				userID = id
			}
		}
	}

	if _, err := h.users.EnsureUser(c.Request.Context(), userID, isAdmin); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	token, err := h.tokens.GenerateToken(userID.String(), isAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	log.Debug().Str("user_id", userID.String()).Bool("is_admin", isAdmin).Msg("session issued")
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID, "is_admin": isAdmin})
}
