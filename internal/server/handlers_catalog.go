package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	tutorialsCacheKey = "tutorials:all"
	catalogURLExpiry  = time.Hour
)

func (s *Server) handleLibraryModels(c *gin.Context) {
	const op = "server.handleLibraryModels"

	items, err := s.db.ListLibraryModels(c.Request.Context(), c.Query("category"))
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch library models"})
		return
	}

	result := make([]gin.H, 0, len(items))
	for _, m := range items {
		entry := gin.H{
			"id":             m.ID,
			"model_name":     m.Name,
			"model_category": m.Category,
			"model_key":      m.StorageKey,
			"description":    m.Description,
			"model_image":    nil,
		}
		if m.ImageKey != "" {
			u, err := s.thumbs.PresignedGet(c.Request.Context(), m.ImageKey, catalogURLExpiry)
			if err != nil {
				// A broken preview should not take down the whole listing.
				log.Printf("%s: presign %s: %v", op, m.ImageKey, err)
			} else {
				entry["model_image"] = u.String()
			}
		}
		result = append(result, entry)
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTutorials(c *gin.Context) {
	const op = "server.handleTutorials"

	if cached, ok := s.cache.Get(c.Request.Context(), tutorialsCacheKey); ok {
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	tutorials, err := s.db.ListTutorials(c.Request.Context())
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tutorials"})
		return
	}

	result := make([]gin.H, 0, len(tutorials))
	for _, t := range tutorials {
		entry := gin.H{
			"id":          t.ID,
			"title":       t.Title,
			"description": t.Description,
			"thumbnail":   nil,
		}
		if t.ThumbnailKey != "" {
			u, err := s.thumbs.PresignedGet(c.Request.Context(), t.ThumbnailKey, catalogURLExpiry)
			if err != nil {
				log.Printf("%s: presign %s: %v", op, t.ThumbnailKey, err)
			} else {
				entry["thumbnail"] = u.String()
			}
		}
		result = append(result, entry)
	}

	// The cache TTL matches the presigned URL expiry so cached entries never
	// outlive their links.
	if body, err := json.Marshal(result); err == nil {
		s.cache.Set(c.Request.Context(), tutorialsCacheKey, body, catalogURLExpiry)
	}
	c.JSON(http.StatusOK, result)
}
