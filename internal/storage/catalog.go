// internal/storage/catalog.go
package storage

import (
	"context"
	"fmt"

	"sceneforge/internal/models"
)

// ListLibraryModels returns the asset catalog, optionally filtered by
// category. "All" is treated the same as no filter.
func (s *Storage) ListLibraryModels(ctx context.Context, category string) ([]models.LibraryModel, error) {
	const op = "storage.ListLibraryModels"

	query := `SELECT id, model_name, model_category, model_key, COALESCE(model_image, ''), COALESCE(description, '')
	          FROM library_models`
	args := []any{}
	if category != "" && category != "All" {
		query += ` WHERE model_category = $1`
		args = append(args, category)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	items := []models.LibraryModel{}
	for rows.Next() {
		var m models.LibraryModel
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.StorageKey, &m.ImageKey, &m.Description); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return items, nil
}

func (s *Storage) ListTutorials(ctx context.Context) ([]models.Tutorial, error) {
	const op = "storage.ListTutorials"

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, COALESCE(description, ''), COALESCE(thumbnail_key, ''), created_at
		 FROM tutorials ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	items := []models.Tutorial{}
	for rows.Next() {
		var t models.Tutorial
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.ThumbnailKey, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return items, nil
}
