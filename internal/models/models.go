// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                int64  `db:"id"`
	Username          string `db:"username"`
	PasswordHash      string `db:"password"`
	Email             string `db:"email"`
	SubscriptionLevel string `db:"subscription_level"` // free, pro, studio
}

type Session struct {
	Token     uuid.UUID `db:"token"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type Scene struct {
	SceneID    int64     `db:"scene_id"`
	UserID     int64     `db:"user_id"`
	BucketName string    `db:"bucket_name"`
	StorageKey string    `db:"storage_key"`
	SceneName  string    `db:"scene_name"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// SceneSummary is the list-endpoint projection of a scene. It is what gets
// serialized into the per-user list cache entry, so the json tags matter.
type SceneSummary struct {
	SceneID      int64     `json:"scene_id"`
	SceneName    string    `json:"scene_name"`
	UpdatedAt    time.Time `json:"updated_at"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
}

type UserLog struct {
	LogID     int64     `db:"log_id"`
	UserID    int64     `db:"user_id"`
	Activity  string    `db:"activity"`
	Timestamp time.Time `db:"timestamp"`
}

type LibraryModel struct {
	ID          int64  `db:"id"`
	Name        string `db:"model_name"`
	Category    string `db:"model_category"`
	StorageKey  string `db:"model_key"`
	ImageKey    string `db:"model_image"`
	Description string `db:"description"`
}

type Tutorial struct {
	ID           int64     `db:"id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	ThumbnailKey string    `db:"thumbnail_key"`
	CreatedAt    time.Time `db:"created_at"`
}
