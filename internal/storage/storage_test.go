package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	key := NewKey("Reunião cliente (final).txt", at)
	assert.Regexp(t, regexp.MustCompile(`^uploads/2024-01-15/[0-9a-f]{8}-Reuni-o-cliente--final-\.txt$`), key)

	long := NewKey(strings.Repeat("a", 80)+".mp3", at)
	assert.Regexp(t, regexp.MustCompile(`^uploads/2024-01-15/[0-9a-f]{8}-a{50}\.mp3$`), long)

	assert.NotEqual(t, NewKey("x.txt", at), NewKey("x.txt", at))
}

func TestLocalBackend_RoundTrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "uploads/2024-01-15/abc-call.txt"
	require.NoError(t, b.Put(ctx, key, bytes.NewReader([]byte("hello")), 5, "text/plain"))

	rc, err := b.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, b.Delete(ctx, key), ErrObjectNotFound)
}

func TestLocalBackend_RejectsEscapingKeys(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside.txt", "uploads/../../etc/passwd"} {
		err := b.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, key)
	}
}

func TestMinioBackend_PutAgainstFakeServer(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPath = r.URL.Path
			gotType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	b, err := NewMinioBackend(MinioConfig{
		Endpoint:  u.Host,
		AccessKey: "test",
		SecretKey: "testsecret",
		Bucket:    "uploads",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "minio", b.Name())

	err = b.Put(context.Background(), "uploads/2024-01-15/abc-call.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/uploads/2024-01-15/abc-call.txt", gotPath)
	assert.Equal(t, "text/plain", gotType)
	assert.Contains(t, string(gotBody), "hello")
}
