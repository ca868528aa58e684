package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sceneforge/internal/models"
)

const (
	sessionCookie = "session_token"
	ctxUserKey    = "user"
)

// requireLogin resolves the session cookie to a user or aborts with 401.
func (s *Server) requireLogin(c *gin.Context) {
	user, ok := s.sessionUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Set(ctxUserKey, user)
	c.Next()
}

func (s *Server) sessionUser(c *gin.Context) (*models.User, bool) {
	raw, err := c.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	token, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	user, err := s.db.GetSessionUser(c.Request.Context(), token)
	if err != nil {
		return nil, false
	}
	return user, true
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxUserKey).(*models.User)
}
