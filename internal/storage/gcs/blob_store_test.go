package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestBlobStore creates a BlobStore pointed at a test server.
func newTestBlobStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: "/odisha/"})
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
	}()
	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/test-bucket/o")
		assert.Equal(t, "odisha/village_38.json", r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `{"plots":{}}`)

		fmt.Fprintln(w, `{ "name": "odisha/village_38.json", "bucket": "test-bucket" }`)
	})

	store := newTestBlobStore(t, handler)
	uri, err := store.PutObject(context.Background(), "village_38.json", "application/json",
		bytes.NewReader([]byte(`{"plots":{}}`)))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/odisha/village_38.json", uri)
}

func TestPutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := newTestBlobStore(t, handler)
	_, err := store.PutObject(context.Background(), "village_38.json", "", strings.NewReader("{}"))
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing.png") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		fmt.Fprintln(w, `{"name":"odisha/village_38/present.png","bucket":"test-bucket","size":"4"}`)
	})

	store := newTestBlobStore(t, handler)
	ok, err := store.Exists(context.Background(), "village_38/present.png")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "village_38/missing.png")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Exists(context.Background(), " ")
	assert.Error(t, err)
}
