// internal/storage/scenes.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sceneforge/internal/models"
)

// CreateScene inserts a new scene row and invokes upload with the generated
// scene id so the caller can write the payload blob and hand back the derived
// storage key. The row is committed with that key; if the upload fails the
// whole insert is rolled back and no scene exists.
func (s *Storage) CreateScene(ctx context.Context, userID int64, sceneName, bucketName string, upload func(sceneID int64) (string, error)) (int64, error) {
	const op = "storage.CreateScene"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}
	defer tx.Rollback(ctx)

	var sceneID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO scenes (user_id, bucket_name, scene_name, storage_key)
		 VALUES ($1, $2, $3, '') RETURNING scene_id`,
		userID, bucketName, sceneName).Scan(&sceneID)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}

	key, err := upload(sceneID)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE scenes SET storage_key = $2 WHERE scene_id = $1`, sceneID, key); err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}
	return sceneID, nil
}

// UpdateScene renames and touches a scene owned by userID. The conditional
// UPDATE doubles as the ownership check: zero affected rows means the scene
// does not exist or belongs to someone else, and upload is never invoked.
// The row lock held until commit serializes concurrent saves of one scene.
func (s *Storage) UpdateScene(ctx context.Context, sceneID, userID int64, sceneName string, upload func() error) error {
	const op = "storage.UpdateScene"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE scenes SET scene_name = $3, updated_at = now()
		 WHERE scene_id = $1 AND user_id = $2`,
		sceneID, userID, sceneName)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := upload(); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) GetScene(ctx context.Context, sceneID int64) (*models.Scene, error) {
	const op = "storage.GetScene"

	var sc models.Scene
	err := s.pool.QueryRow(ctx,
		`SELECT scene_id, user_id, bucket_name, storage_key, scene_name, created_at, updated_at
		 FROM scenes WHERE scene_id = $1`, sceneID).
		Scan(&sc.SceneID, &sc.UserID, &sc.BucketName, &sc.StorageKey, &sc.SceneName, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &sc, nil
}

// GetOwnedScene returns the scene and its thumbnail key (empty when no
// thumbnail was ever uploaded), or ErrNotFound when the scene is absent or
// owned by another user.
func (s *Storage) GetOwnedScene(ctx context.Context, sceneID, userID int64) (*models.Scene, string, error) {
	const op = "storage.GetOwnedScene"

	var sc models.Scene
	var thumbKey *string
	err := s.pool.QueryRow(ctx,
		`SELECT s.scene_id, s.user_id, s.bucket_name, s.storage_key, s.scene_name, s.created_at, s.updated_at, t.image_key
		 FROM scenes s LEFT JOIN scene_thumbnails t ON s.scene_id = t.scene_id
		 WHERE s.scene_id = $1 AND s.user_id = $2`, sceneID, userID).
		Scan(&sc.SceneID, &sc.UserID, &sc.BucketName, &sc.StorageKey, &sc.SceneName, &sc.CreatedAt, &sc.UpdatedAt, &thumbKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %v", op, err)
	}
	if thumbKey == nil {
		return &sc, "", nil
	}
	return &sc, *thumbKey, nil
}

// ListScenes returns the user's scenes newest-updated first. The ordering is
// load-bearing for the editor's open dialog.
func (s *Storage) ListScenes(ctx context.Context, userID int64) ([]models.SceneSummary, error) {
	const op = "storage.ListScenes"

	rows, err := s.pool.Query(ctx,
		`SELECT s.scene_id, s.scene_name, s.updated_at, COALESCE(t.image_key, '')
		 FROM scenes s LEFT JOIN scene_thumbnails t ON s.scene_id = t.scene_id
		 WHERE s.user_id = $1
		 ORDER BY s.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	scenes := []models.SceneSummary{}
	for rows.Next() {
		var sum models.SceneSummary
		if err := rows.Scan(&sum.SceneID, &sum.SceneName, &sum.UpdatedAt, &sum.ThumbnailKey); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		scenes = append(scenes, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return scenes, nil
}

func (s *Storage) UpsertThumbnail(ctx context.Context, sceneID int64, imageKey string) error {
	const op = "storage.UpsertThumbnail"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scene_thumbnails (scene_id, image_key) VALUES ($1, $2)
		 ON CONFLICT (scene_id) DO UPDATE SET image_key = EXCLUDED.image_key`,
		sceneID, imageKey)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

// DeleteSceneRows removes the thumbnail row and the scene row in one
// transaction. Blob deletion is the caller's concern and happens first.
func (s *Storage) DeleteSceneRows(ctx context.Context, sceneID int64) error {
	const op = "storage.DeleteSceneRows"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scene_thumbnails WHERE scene_id = $1`, sceneID); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scenes WHERE scene_id = $1`, sceneID); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
