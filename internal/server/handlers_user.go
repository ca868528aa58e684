package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleUserLogs(c *gin.Context) {
	const op = "server.handleUserLogs"
	user := currentUser(c)

	logs, err := s.db.GetLogsByUserID(c.Request.Context(), user.ID)
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	result := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		result = append(result, gin.H{
			"log_id":    l.LogID,
			"user_id":   l.UserID,
			"activity":  l.Activity,
			"timestamp": l.Timestamp.Format(time.RFC3339),
			"username":  user.Username,
		})
	}
	c.JSON(http.StatusOK, result)
}
