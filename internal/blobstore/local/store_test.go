package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcore/server/internal/chaterr"
)

func TestSaveAndFetchRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	location, err := store.Save(context.Background(), "photo.jpg", "image/jpeg", []byte("binary-data"))
	require.NoError(t, err)
	assert.NotEmpty(t, location)

	data, err := store.Fetch(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, []byte("binary-data"), data)
}

func TestFetchMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "2026/01/01/does-not-exist.jpg")
	require.Error(t, err)
	assert.True(t, chaterr.Is(err, chaterr.KindNotFound))
}

func TestDeleteRemovesFile(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	location, err := store.Save(context.Background(), "note.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(context.Background(), location))

	_, err = store.Fetch(context.Background(), location)
	require.Error(t, err)
}

func TestResolveRejectsPathEscape(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), "../../../etc/passwd")
	require.Error(t, err)
}
