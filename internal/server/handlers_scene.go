package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sceneforge/internal/scene"
)

type SaveSceneBody struct {
	SceneName     string          `json:"sceneName"`
	Objects       json.RawMessage `json:"objects"`
	SceneSettings json.RawMessage `json:"sceneSettings"`
	SceneID       int64           `json:"sceneId"`
	Thumbnail     string          `json:"thumbnail"` // optional base64 canvas snapshot
}

func (s *Server) handleSave(c *gin.Context) {
	const op = "server.handleSave"
	user := currentUser(c)

	var body SaveSceneBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.SceneName == "" || len(body.Objects) == 0 || len(body.SceneSettings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required data (sceneName, objects, or sceneSettings)"})
		return
	}

	var thumbnail []byte
	if body.Thumbnail != "" {
		raw := body.Thumbnail
		// canvas.toDataURL() prefixes the payload with "data:image/png;base64,"
		if i := strings.Index(raw, ","); i >= 0 && strings.HasPrefix(raw, "data:") {
			raw = raw[i+1:]
		}
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid thumbnail encoding"})
			return
		}
		thumbnail = decoded
	}

	res, err := s.scenes.Save(c.Request.Context(), user.ID, scene.SaveRequest{
		SceneID:       body.SceneID,
		SceneName:     body.SceneName,
		Objects:       body.Objects,
		SceneSettings: body.SceneSettings,
		Thumbnail:     thumbnail,
	})
	if errors.Is(err, scene.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scene not found or unauthorized"})
		return
	}
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save scene"})
		return
	}

	if err := s.db.CreateLog(c.Request.Context(), user.ID, fmt.Sprintf("saved scene %d", res.SceneID)); err != nil {
		log.Printf("%s: activity log: %v", op, err)
	}

	if res.Created {
		c.JSON(http.StatusCreated, gin.H{"message": "Scene saved successfully", "sceneId": res.SceneID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Scene updated successfully", "sceneId": res.SceneID})
}

func sceneIDParam(c *gin.Context) (int64, bool) {
	raw, ok := c.GetQuery("sceneId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sceneId is required"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sceneId must be an integer"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetScene(c *gin.Context) {
	const op = "server.handleGetScene"

	sceneID, ok := sceneIDParam(c)
	if !ok {
		return
	}

	payload, err := s.scenes.Payload(c.Request.Context(), sceneID)
	if errors.Is(err, scene.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scene not found"})
		return
	}
	if errors.Is(err, scene.ErrStorageInconsistent) {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scene storage is inconsistent"})
		return
	}
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve scene"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleGetSceneURL(c *gin.Context) {
	const op = "server.handleGetSceneURL"

	sceneID, ok := sceneIDParam(c)
	if !ok {
		return
	}

	detail, err := s.scenes.Detail(c.Request.Context(), sceneID)
	if errors.Is(err, scene.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scene not found"})
		return
	}
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve scene"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleScenes(c *gin.Context) {
	const op = "server.handleScenes"
	user := currentUser(c)

	entries, err := s.scenes.List(c.Request.Context(), user.ID)
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scenes"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleDeleteScene(c *gin.Context) {
	const op = "server.handleDeleteScene"
	user := currentUser(c)

	sceneID, ok := sceneIDParam(c)
	if !ok {
		return
	}

	err := s.scenes.Delete(c.Request.Context(), sceneID, user.ID)
	if errors.Is(err, scene.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scene not found or unauthorized"})
		return
	}
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete scene"})
		return
	}

	if err := s.db.CreateLog(c.Request.Context(), user.ID, fmt.Sprintf("deleted scene %d", sceneID)); err != nil {
		log.Printf("%s: activity log: %v", op, err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Scene deleted successfully"})
}
