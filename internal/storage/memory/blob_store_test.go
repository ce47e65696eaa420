package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/village_38.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/village_38.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored := string(store.data["path/village_38.json"])
	if stored != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStoreGetAndExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewBlobStore()

	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.GetObject(ctx, "a")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = store.PutObject(ctx, "b", "", bytes.NewReader([]byte("1")))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "a", "", bytes.NewReader([]byte("2")))
	require.NoError(t, err)
	_, err = store.PutObject(ctx, "a", "", bytes.NewReader([]byte("3")))
	require.NoError(t, err)

	data, err := store.GetObject(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "3", string(data))
	require.Equal(t, []string{"a", "b"}, store.Keys())
	require.Equal(t, 3, store.Puts())
}
