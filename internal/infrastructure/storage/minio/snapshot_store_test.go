package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/domain/corpus"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

// memStore is an in-memory ObjectStore for exercising the snapshot store
// without a running MinIO.
type memStore struct {
	objects map[string][]byte
	buckets map[string]bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (m *memStore) PutObject(_ context.Context, bucket, object string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.objects[bucket+"/"+object] = data
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(data))}, nil
}

func (m *memStore) GetObject(_ context.Context, bucket, object string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", Message: "object not found"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) StatObject(_ context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Message: "object not found"}
	}
	return minio.ObjectInfo{Key: object, Size: int64(len(data))}, nil
}

func (m *memStore) RemoveObject(_ context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	delete(m.objects, bucket+"/"+object)
	return nil
}

func (m *memStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	return m.buckets[bucket], nil
}

func (m *memStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	m.buckets[bucket] = true
	return nil
}

func (m *memStore) PresignedGetObject(_ context.Context, bucket, object string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("https://store.test/" + bucket + "/" + object + "?sig=x")
}

func storeSnapshot(t *testing.T) *corpus.Snapshot {
	t.Helper()
	snap, err := corpus.FromArtifact(&corpus.Artifact{
		Hash: "3f2a9c1d5e8b74a6c0d1",
		Entries: []corpus.Entry{
			{ID: 0, AnalyteID: "REG153_001", Text: "benzene", Confidence: 1},
			{ID: 1, AnalyteID: "REG153_004", Text: "toluene", Confidence: 1},
		},
		Vectors:      [][]float32{{1, 0, 0}, {0, 1, 0}},
		Dim:          3,
		AnalyteCount: 2,
	})
	require.NoError(t, err)
	return snap
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	mem := newMemStore()
	client := NewClientWithStore(mem, "snaps", logging.NewNopLogger())
	store := NewSnapshotStore(client, logging.NewNopLogger())

	snap := storeSnapshot(t)
	object, err := store.Put(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/3f2a9c1d5e8b74a6c0d1.gob", object)

	got, err := store.Get(context.Background(), object)
	require.NoError(t, err)
	assert.Equal(t, snap.Hash, got.Hash)
	assert.Equal(t, 2, got.EntryCount())
	assert.True(t, got.HasVectors())

	entries := got.LookupExact("benzene", "")
	require.Len(t, entries, 1)
	assert.Equal(t, "REG153_001", string(entries[0].AnalyteID))
}

func TestSnapshotStoreGetByBareHash(t *testing.T) {
	mem := newMemStore()
	client := NewClientWithStore(mem, "snaps", logging.NewNopLogger())
	store := NewSnapshotStore(client, logging.NewNopLogger())

	snap := storeSnapshot(t)
	_, err := store.Put(context.Background(), snap)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), snap.Hash)
	require.NoError(t, err)
	assert.Equal(t, snap.Hash, got.Hash)
}

func TestSnapshotStoreExists(t *testing.T) {
	mem := newMemStore()
	client := NewClientWithStore(mem, "snaps", logging.NewNopLogger())
	store := NewSnapshotStore(client, logging.NewNopLogger())

	ok, err := store.Exists(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	snap := storeSnapshot(t)
	_, err = store.Put(context.Background(), snap)
	require.NoError(t, err)

	ok, err = store.Exists(context.Background(), snap.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnapshotStoreDelete(t *testing.T) {
	mem := newMemStore()
	client := NewClientWithStore(mem, "snaps", logging.NewNopLogger())
	store := NewSnapshotStore(client, logging.NewNopLogger())

	snap := storeSnapshot(t)
	object, err := store.Put(context.Background(), snap)
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), object))
	ok, err := store.Exists(context.Background(), snap.Hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotStorePutRejectsUnhashed(t *testing.T) {
	store := NewSnapshotStore(NewClientWithStore(newMemStore(), "snaps", logging.NewNopLogger()), logging.NewNopLogger())
	_, err := store.Put(context.Background(), nil)
	assert.Error(t, err)
}

func TestSnapshotStorePresignURL(t *testing.T) {
	mem := newMemStore()
	client := NewClientWithStore(mem, "snaps", logging.NewNopLogger())
	store := NewSnapshotStore(client, logging.NewNopLogger())

	u, err := store.PresignURL(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Contains(t, u, "snaps/snapshots/abc123.gob")
}
