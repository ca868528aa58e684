// internal/scene/service.go
package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"

	"sceneforge/internal/cache"
	"sceneforge/internal/models"
	"sceneforge/internal/s3"
	"sceneforge/internal/storage"
)

var (
	// ErrNotFound covers both "no such scene" and "not yours"; the two are
	// deliberately indistinguishable to the caller.
	ErrNotFound = errors.New("scene not found")

	// ErrStorageInconsistent means the metadata row exists but its payload
	// blob does not. Operators need to tell this apart from ErrNotFound.
	ErrStorageInconsistent = errors.New("scene storage inconsistent")
)

const (
	listCacheTTL       = time.Hour
	detailCacheTTL     = time.Hour
	thumbnailURLExpiry = time.Hour
	thumbnailWidth     = 320
)

// MetadataStore is the slice of the relational store the service needs.
type MetadataStore interface {
	CreateScene(ctx context.Context, userID int64, sceneName, bucketName string, upload func(sceneID int64) (string, error)) (int64, error)
	UpdateScene(ctx context.Context, sceneID, userID int64, sceneName string, upload func() error) error
	GetScene(ctx context.Context, sceneID int64) (*models.Scene, error)
	GetOwnedScene(ctx context.Context, sceneID, userID int64) (*models.Scene, string, error)
	ListScenes(ctx context.Context, userID int64) ([]models.SceneSummary, error)
	UpsertThumbnail(ctx context.Context, sceneID int64, imageKey string) error
	DeleteSceneRows(ctx context.Context, sceneID int64) error
}

// BlobStore is implemented by the s3 client; the service holds two of them
// with independent endpoints and credentials.
type BlobStore interface {
	Bucket() string
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignedGet(ctx context.Context, key string, expires time.Duration) (*url.URL, error)
}

type Service struct {
	meta     MetadataStore
	payloads BlobStore
	thumbs   BlobStore
	cache    cache.Cache
}

func NewService(meta MetadataStore, payloads, thumbs BlobStore, c cache.Cache) *Service {
	return &Service{meta: meta, payloads: payloads, thumbs: thumbs, cache: c}
}

// Storage keys are derived once from the owner and the generated scene id
// and never change afterwards, so renames cannot orphan blobs.
func payloadKey(userID, sceneID int64) string {
	return fmt.Sprintf("%d/%d.json", userID, sceneID)
}

func thumbnailKey(userID, sceneID int64) string {
	return fmt.Sprintf("%d/%d.jpg", userID, sceneID)
}

func listCacheKey(userID int64) string { return fmt.Sprintf("scenes:%d", userID) }
func detailCacheKey(sceneID int64) string { return fmt.Sprintf("scene:%d", sceneID) }

type SaveRequest struct {
	SceneID       int64 // 0 means create
	SceneName     string
	Objects       json.RawMessage
	SceneSettings json.RawMessage
	Thumbnail     []byte // raw image bytes, optional
}

type SaveResult struct {
	SceneID int64
	Created bool
}

// Save persists the scene payload and metadata. Creates insert the row first
// to obtain the generated id, then upload the blob at the derived key inside
// the same transaction scope; updates prove ownership through the
// conditional UPDATE before any blob is touched. A blob failure rolls the
// metadata back either way; a blob already written stays orphaned.
func (s *Service) Save(ctx context.Context, userID int64, req SaveRequest) (SaveResult, error) {
	const op = "scene.Save"

	payload, err := json.Marshal(map[string]json.RawMessage{
		"objects":       req.Objects,
		"sceneSettings": req.SceneSettings,
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("%s: %v", op, err)
	}

	var res SaveResult
	if req.SceneID == 0 {
		sceneID, err := s.meta.CreateScene(ctx, userID, req.SceneName, s.payloads.Bucket(), func(sceneID int64) (string, error) {
			key := payloadKey(userID, sceneID)
			if err := s.payloads.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
				return "", err
			}
			return key, nil
		})
		if err != nil {
			return SaveResult{}, fmt.Errorf("%s: %v", op, err)
		}
		res = SaveResult{SceneID: sceneID, Created: true}
	} else {
		key := payloadKey(userID, req.SceneID)
		err := s.meta.UpdateScene(ctx, req.SceneID, userID, req.SceneName, func() error {
			return s.payloads.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json")
		})
		if errors.Is(err, storage.ErrNotFound) {
			return SaveResult{}, ErrNotFound
		}
		if err != nil {
			return SaveResult{}, fmt.Errorf("%s: %v", op, err)
		}
		res = SaveResult{SceneID: req.SceneID}
	}

	// Thumbnail is orthogonal to the save: the scene is already committed,
	// so a thumbnail failure is logged and the save still succeeds.
	if len(req.Thumbnail) > 0 {
		if err := s.saveThumbnail(ctx, userID, res.SceneID, req.Thumbnail); err != nil {
			log.Printf("%s: thumbnail for scene %d: %v", op, res.SceneID, err)
		}
	}

	s.cache.Del(ctx, listCacheKey(userID), detailCacheKey(res.SceneID))
	return res, nil
}

func (s *Service) saveThumbnail(ctx context.Context, userID, sceneID int64, raw []byte) error {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode: %v", err)
	}
	preview := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preview, imaging.JPEG); err != nil {
		return fmt.Errorf("encode: %v", err)
	}

	key := thumbnailKey(userID, sceneID)
	if err := s.thumbs.Upload(ctx, key, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		return err
	}
	return s.meta.UpsertThumbnail(ctx, sceneID, key)
}

// Payload returns the full serialized scene. It always goes to origin;
// payloads are too large to be worth cache memory.
func (s *Service) Payload(ctx context.Context, sceneID int64) (json.RawMessage, error) {
	const op = "scene.Payload"

	sc, err := s.meta.GetScene(ctx, sceneID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	data, err := s.payloads.Download(ctx, sc.StorageKey)
	if errors.Is(err, s3.ErrObjectMissing) {
		return nil, fmt.Errorf("%s: key %s: %w", op, sc.StorageKey, ErrStorageInconsistent)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return json.RawMessage(data), nil
}

type Detail struct {
	StorageKey string `json:"s3Key"`
	SceneName  string `json:"sceneName"`
}

// Detail returns the storage key and display name for a scene, cached per
// scene id and invalidated on every write.
func (s *Service) Detail(ctx context.Context, sceneID int64) (*Detail, error) {
	const op = "scene.Detail"

	cacheKey := detailCacheKey(sceneID)
	if b, ok := s.cache.Get(ctx, cacheKey); ok {
		var d Detail
		if err := json.Unmarshal(b, &d); err == nil {
			return &d, nil
		}
		log.Printf("%s: corrupt cache entry %s, going to origin", op, cacheKey)
	}

	sc, err := s.meta.GetScene(ctx, sceneID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	d := Detail{StorageKey: sc.StorageKey, SceneName: sc.SceneName}
	if b, err := json.Marshal(d); err == nil {
		s.cache.Set(ctx, cacheKey, b, detailCacheTTL)
	}
	return &d, nil
}

type ListEntry struct {
	SceneID      int64  `json:"sceneId"`
	SceneName    string `json:"sceneName"`
	Updated      string `json:"updated"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// List returns the user's scenes newest-updated first. The raw summaries are
// cached as one entry per user; relative times and presigned thumbnail URLs
// are recomputed on every call since both embed the current clock.
func (s *Service) List(ctx context.Context, userID int64) ([]ListEntry, error) {
	const op = "scene.List"

	cacheKey := listCacheKey(userID)
	var summaries []models.SceneSummary
	if b, ok := s.cache.Get(ctx, cacheKey); ok {
		if err := json.Unmarshal(b, &summaries); err != nil {
			log.Printf("%s: corrupt cache entry %s, going to origin", op, cacheKey)
			summaries = nil
		}
	}
	if summaries == nil {
		var err error
		summaries, err = s.meta.ListScenes(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		if b, err := json.Marshal(summaries); err == nil {
			s.cache.Set(ctx, cacheKey, b, listCacheTTL)
		}
	}

	entries := make([]ListEntry, 0, len(summaries))
	for _, sum := range summaries {
		entry := ListEntry{
			SceneID:   sum.SceneID,
			SceneName: sum.SceneName,
			Updated:   humanize.Time(sum.UpdatedAt),
		}
		if sum.ThumbnailKey != "" {
			u, err := s.thumbs.PresignedGet(ctx, sum.ThumbnailKey, thumbnailURLExpiry)
			if err != nil {
				log.Printf("%s: presign %s: %v", op, sum.ThumbnailKey, err)
			} else {
				entry.ThumbnailURL = u.String()
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes a scene the user owns. Blob deletes are best-effort: the
// metadata row is the authoritative existence signal, a leaked blob is an
// operational cost, not a user-visible failure.
func (s *Service) Delete(ctx context.Context, sceneID, userID int64) error {
	const op = "scene.Delete"

	sc, thumbKey, err := s.meta.GetOwnedScene(ctx, sceneID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := s.payloads.Delete(ctx, sc.StorageKey); err != nil {
		log.Printf("%s: payload blob %s: %v", op, sc.StorageKey, err)
	}
	if thumbKey != "" {
		if err := s.thumbs.Delete(ctx, thumbKey); err != nil {
			log.Printf("%s: thumbnail blob %s: %v", op, thumbKey, err)
		}
	}

	if err := s.meta.DeleteSceneRows(ctx, sceneID); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	s.cache.Del(ctx, listCacheKey(userID), detailCacheKey(sceneID))
	return nil
}
