package files

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/storage"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	store := NewMemoryStore()
	return NewService(backend, store, ""), store
}

func TestService_CreateOpenDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, Upload{
		Data:       []byte("meeting transcript"),
		Filename:   "meeting.txt",
		MimeType:   "text/plain",
		BatchJobID: "job-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, rec.Status)
	assert.Equal(t, int64(18), rec.Size)
	assert.True(t, strings.HasPrefix(rec.Key, "uploads/"))
	assert.Equal(t, "/api/v1/files/"+rec.Key, rec.URL)
	assert.Equal(t, "job-1", rec.BatchJobID)

	got, rc, err := svc.Open(ctx, rec.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "meeting transcript", string(data))
	assert.Equal(t, rec.ID, got.ID)

	require.NoError(t, svc.Delete(ctx, rec.ID))
	after, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, after.Status)

	_, _, err = svc.Open(ctx, rec.ID)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrNotFound))
}

func TestService_UnknownIDs(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrNotFound))
	assert.True(t, apperr.IsErrorType(svc.Delete(context.Background(), "nope"), apperr.ErrNotFound))
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService(t)
	for _, name := range []string{"a.txt", "b.mp3"} {
		_, err := svc.Create(context.Background(), Upload{Data: []byte("x"), Filename: name})
		require.NoError(t, err)
	}
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) SaveFile(context.Context, *Record) error { return errors.New("db down") }

func TestService_CreateRollsBackObjectOnRecordFailure(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.NewLocalBackend(dir)
	require.NoError(t, err)
	svc := NewService(backend, brokenStore{NewMemoryStore()}, "")

	_, err = svc.Create(context.Background(), Upload{Data: []byte("x"), Filename: "a.txt"})
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrStorage))
}
