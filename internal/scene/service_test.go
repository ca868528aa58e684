package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/internal/models"
	"sceneforge/internal/s3"
	"sceneforge/internal/storage"
)

// fakeMeta mimics the relational store, including the rollback semantics of
// the transactional methods: a failed upload callback leaves no trace.
type fakeMeta struct {
	nextID int64
	scenes map[int64]*models.Scene
	thumbs map[int64]string
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{nextID: 1, scenes: map[int64]*models.Scene{}, thumbs: map[int64]string{}}
}

func (m *fakeMeta) CreateScene(ctx context.Context, userID int64, sceneName, bucketName string, upload func(sceneID int64) (string, error)) (int64, error) {
	sceneID := m.nextID
	key, err := upload(sceneID)
	if err != nil {
		return 0, err
	}
	m.nextID++
	now := time.Now()
	m.scenes[sceneID] = &models.Scene{
		SceneID:    sceneID,
		UserID:     userID,
		BucketName: bucketName,
		StorageKey: key,
		SceneName:  sceneName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return sceneID, nil
}

func (m *fakeMeta) UpdateScene(ctx context.Context, sceneID, userID int64, sceneName string, upload func() error) error {
	sc, ok := m.scenes[sceneID]
	if !ok || sc.UserID != userID {
		return storage.ErrNotFound
	}
	if err := upload(); err != nil {
		return err
	}
	sc.SceneName = sceneName
	sc.UpdatedAt = time.Now()
	return nil
}

func (m *fakeMeta) GetScene(ctx context.Context, sceneID int64) (*models.Scene, error) {
	sc, ok := m.scenes[sceneID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (m *fakeMeta) GetOwnedScene(ctx context.Context, sceneID, userID int64) (*models.Scene, string, error) {
	sc, ok := m.scenes[sceneID]
	if !ok || sc.UserID != userID {
		return nil, "", storage.ErrNotFound
	}
	cp := *sc
	return &cp, m.thumbs[sceneID], nil
}

func (m *fakeMeta) ListScenes(ctx context.Context, userID int64) ([]models.SceneSummary, error) {
	out := []models.SceneSummary{}
	for _, sc := range m.scenes {
		if sc.UserID != userID {
			continue
		}
		out = append(out, models.SceneSummary{
			SceneID:      sc.SceneID,
			SceneName:    sc.SceneName,
			UpdatedAt:    sc.UpdatedAt,
			ThumbnailKey: m.thumbs[sc.SceneID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *fakeMeta) UpsertThumbnail(ctx context.Context, sceneID int64, imageKey string) error {
	m.thumbs[sceneID] = imageKey
	return nil
}

func (m *fakeMeta) DeleteSceneRows(ctx context.Context, sceneID int64) error {
	delete(m.thumbs, sceneID)
	delete(m.scenes, sceneID)
	return nil
}

type fakeBlob struct {
	bucket    string
	objects   map[string][]byte
	putErr    error
	deleteErr error
	puts      int
}

func newFakeBlob(bucket string) *fakeBlob {
	return &fakeBlob{bucket: bucket, objects: map[string][]byte{}}
}

func (b *fakeBlob) Bucket() string { return b.bucket }

func (b *fakeBlob) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.puts++
	return nil
}

func (b *fakeBlob) Download(ctx context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", key, s3.ErrObjectMissing)
	}
	return data, nil
}

func (b *fakeBlob) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeBlob) PresignedGet(ctx context.Context, key string, expires time.Duration) (*url.URL, error) {
	return &url.URL{
		Scheme:   "https",
		Host:     "blobs.test",
		Path:     "/" + b.bucket + "/" + key,
		RawQuery: fmt.Sprintf("X-Expires=%d", int(expires.Seconds())),
	}, nil
}

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.entries[key] = value
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) {
	for _, k := range keys {
		delete(c.entries, k)
	}
}

type fixture struct {
	meta     *fakeMeta
	payloads *fakeBlob
	thumbs   *fakeBlob
	cache    *fakeCache
	svc      *Service
}

func newFixture() *fixture {
	meta := newFakeMeta()
	payloads := newFakeBlob("scenes")
	thumbs := newFakeBlob("thumbnails")
	c := newFakeCache()
	return &fixture{
		meta:     meta,
		payloads: payloads,
		thumbs:   thumbs,
		cache:    c,
		svc:      NewService(meta, payloads, thumbs, c),
	}
}

func saveReq(name string) SaveRequest {
	return SaveRequest{
		SceneName:     name,
		Objects:       json.RawMessage(`[{"type":"cube","position":[0,0,0]}]`),
		SceneSettings: json.RawMessage(`{"background":"#202020"}`),
	}
}

func TestSaveCreateThenFetch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, int64(1), res.SceneID)

	payload, err := f.svc.Payload(ctx, res.SceneID)
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.JSONEq(t, `[{"type":"cube","position":[0,0,0]}]`, string(got["objects"]))
	assert.JSONEq(t, `{"background":"#202020"}`, string(got["sceneSettings"]))

	sc := f.meta.scenes[res.SceneID]
	assert.Equal(t, "7/1.json", sc.StorageKey)
	assert.Equal(t, "scenes", sc.BucketName)
}

func TestUpdateByNonOwnerLeavesEverythingUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	originalBlob := append([]byte(nil), f.payloads.objects["7/1.json"]...)
	f.cache.Set(ctx, "scenes:7", []byte("warmed"), time.Hour)

	req := saveReq("Hijacked")
	req.SceneID = res.SceneID
	_, err = f.svc.Save(ctx, 42, req)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, "Desk", f.meta.scenes[res.SceneID].SceneName)
	assert.Equal(t, originalBlob, f.payloads.objects["7/1.json"])
	_, warmed := f.cache.Get(ctx, "scenes:7")
	assert.True(t, warmed, "foreign-owner save must not invalidate the owner's cache")
}

func TestSaveUpdateIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	req := saveReq("Desk")
	req.SceneID = res.SceneID
	for i := 0; i < 2; i++ {
		out, err := f.svc.Save(ctx, 7, req)
		require.NoError(t, err)
		assert.False(t, out.Created)
		assert.Equal(t, res.SceneID, out.SceneID)
	}

	assert.Len(t, f.meta.scenes, 1)
	payload, err := f.svc.Payload(ctx, res.SceneID)
	require.NoError(t, err)
	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.JSONEq(t, `[{"type":"cube","position":[0,0,0]}]`, string(got["objects"]))
}

func TestCreateRollsBackOnBlobFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.payloads.putErr = errors.New("connection reset")
	_, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.Error(t, err)

	assert.Empty(t, f.meta.scenes, "metadata insert must roll back when the payload write fails")
	assert.Empty(t, f.payloads.objects)
}

func TestUpdateRollsBackOnBlobFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	before := *f.meta.scenes[res.SceneID]
	originalBlob := append([]byte(nil), f.payloads.objects["7/1.json"]...)

	f.payloads.putErr = errors.New("connection reset")
	req := saveReq("Desk v2")
	req.SceneID = res.SceneID
	_, err = f.svc.Save(ctx, 7, req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	after := f.meta.scenes[res.SceneID]
	assert.Equal(t, "Desk", after.SceneName, "rename must roll back when the payload write fails")
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, originalBlob, f.payloads.objects["7/1.json"], "old payload must survive a failed overwrite")
}

func TestListOrdering(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		_, err := f.svc.Save(ctx, 7, saveReq(name))
		require.NoError(t, err)
	}
	base := time.Now()
	f.meta.scenes[1].UpdatedAt = base.Add(-3 * time.Hour)
	f.meta.scenes[2].UpdatedAt = base.Add(-1 * time.Hour)
	f.meta.scenes[3].UpdatedAt = base.Add(-2 * time.Hour)
	f.cache.Del(ctx, "scenes:7")

	entries, err := f.svc.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int64{2, 3, 1}, []int64{entries[0].SceneID, entries[1].SceneID, entries[2].SceneID})
}

func TestListCacheCoherenceAfterSave(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	entries, err := f.svc.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, warmed := f.cache.Get(ctx, "scenes:7")
	assert.True(t, warmed)

	_, err = f.svc.Save(ctx, 7, saveReq("Bedroom"))
	require.NoError(t, err)

	entries, err = f.svc.List(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "list after save must not serve the pre-save cache entry")
}

func TestListCacheCoherenceAfterDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	_, err = f.svc.List(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, res.SceneID, 7))

	entries, err := f.svc.List(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteSurvivesBlobDeleteFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	f.payloads.deleteErr = errors.New("store unreachable")
	require.NoError(t, f.svc.Delete(ctx, res.SceneID, 7))

	_, err = f.svc.Payload(ctx, res.SceneID)
	assert.ErrorIs(t, err, ErrNotFound, "metadata row is authoritative; it must be gone")
}

func TestDeleteByNonOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, res.SceneID, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, f.payloads.objects, "7/1.json", "failed ownership check must delete nothing")
	assert.Len(t, f.meta.scenes, 1)
}

func TestPayloadStorageInconsistency(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	delete(f.payloads.objects, "7/1.json")

	_, err = f.svc.Payload(ctx, res.SceneID)
	assert.ErrorIs(t, err, ErrStorageInconsistent)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDetailCachedAndInvalidated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)

	d, err := f.svc.Detail(ctx, res.SceneID)
	require.NoError(t, err)
	assert.Equal(t, "7/1.json", d.StorageKey)
	assert.Equal(t, "Desk", d.SceneName)
	_, cached := f.cache.Get(ctx, "scene:1")
	assert.True(t, cached)

	req := saveReq("Desk v2")
	req.SceneID = res.SceneID
	_, err = f.svc.Save(ctx, 7, req)
	require.NoError(t, err)

	d, err = f.svc.Detail(ctx, res.SceneID)
	require.NoError(t, err)
	assert.Equal(t, "Desk v2", d.SceneName)
	assert.Equal(t, "7/1.json", d.StorageKey, "storage key is immutable across renames")
}

func TestRenameScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Save(ctx, 7, saveReq("Desk"))
	require.NoError(t, err)
	require.Equal(t, int64(1), res.SceneID)

	d, err := f.svc.Detail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Desk", d.SceneName)

	req := saveReq("Desk v2")
	req.SceneID = 1
	_, err = f.svc.Save(ctx, 7, req)
	require.NoError(t, err)

	d, err = f.svc.Detail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Desk v2", d.SceneName)

	// No blob was orphaned by the rename: the store still holds exactly one
	// object for this scene.
	assert.Len(t, f.payloads.objects, 1)

	req = saveReq("stolen")
	req.SceneID = 1
	_, err = f.svc.Save(ctx, 42, req)
	assert.ErrorIs(t, err, ErrNotFound)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for x := 0; x < 640; x++ {
		for y := 0; y < 480; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSaveWithThumbnail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := saveReq("Desk")
	req.Thumbnail = pngBytes(t)
	res, err := f.svc.Save(ctx, 7, req)
	require.NoError(t, err)

	assert.Contains(t, f.thumbs.objects, "7/1.jpg")
	assert.Equal(t, "7/1.jpg", f.meta.thumbs[res.SceneID])

	f.cache.Del(ctx, "scenes:7")
	entries, err := f.svc.List(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ThumbnailURL, "thumbnails/7/1.jpg")
}

func TestSaveWithBrokenThumbnailStillSucceeds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := saveReq("Desk")
	req.Thumbnail = []byte("not an image")
	res, err := f.svc.Save(ctx, 7, req)
	require.NoError(t, err, "thumbnail is orthogonal; a bad one must not fail the save")
	assert.Empty(t, f.thumbs.objects)

	_, err = f.svc.Payload(ctx, res.SceneID)
	assert.NoError(t, err)
}
