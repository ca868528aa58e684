package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sceneforge/internal/cache"
	"sceneforge/internal/models"
	"sceneforge/internal/scene"
)

// Store is the slice of the relational store the handlers use directly;
// the scene workflow goes through the Scenes service instead.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateSession(ctx context.Context, userID int64, ttl time.Duration) (uuid.UUID, error)
	GetSessionUser(ctx context.Context, token uuid.UUID) (*models.User, error)
	DeleteSession(ctx context.Context, token uuid.UUID) error
	CreateLog(ctx context.Context, userID int64, activity string) error
	GetLogsByUserID(ctx context.Context, userID int64) ([]models.UserLog, error)
	ListLibraryModels(ctx context.Context, category string) ([]models.LibraryModel, error)
	ListTutorials(ctx context.Context) ([]models.Tutorial, error)
}

// Scenes is the scene service surface the handlers call.
type Scenes interface {
	Save(ctx context.Context, userID int64, req scene.SaveRequest) (scene.SaveResult, error)
	Payload(ctx context.Context, sceneID int64) (json.RawMessage, error)
	Detail(ctx context.Context, sceneID int64) (*scene.Detail, error)
	List(ctx context.Context, userID int64) ([]scene.ListEntry, error)
	Delete(ctx context.Context, sceneID, userID int64) error
}

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	db     Store
	scenes Scenes
	thumbs scene.BlobStore
	cache  cache.Cache
}

func NewServer(cfg *models.Config, db Store, scenes Scenes, thumbs scene.BlobStore, c cache.Cache) *Server {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{cfg: cfg, router: r, db: db, scenes: scenes, thumbs: thumbs, cache: c}

	r.POST("/auth/register", s.handleRegister)
	r.POST("/auth/signin", s.handleSignin)
	r.POST("/auth/logout", s.requireLogin, s.handleLogout)
	r.GET("/auth/check", s.handleCheck)

	r.POST("/save", s.requireLogin, s.handleSave)
	r.GET("/get-scene", s.requireLogin, s.handleGetScene)
	r.GET("/get-scene-url", s.requireLogin, s.handleGetSceneURL)
	r.GET("/scenes", s.requireLogin, s.handleScenes)
	r.DELETE("/delete-scene", s.requireLogin, s.handleDeleteScene)

	r.GET("/library/models", s.handleLibraryModels)
	r.GET("/tutorials", s.requireLogin, s.handleTutorials)
	r.GET("/user/logs", s.requireLogin, s.handleUserLogs)

	return s
}

func (s *Server) Start() error {
	return s.router.Run(s.cfg.ServerAddr)
}
