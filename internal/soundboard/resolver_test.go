package soundboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soundbort/internal/storage"
)

func seedSound(t *testing.T, store *storage.Memory, guildID, name string) int64 {
	t.Helper()
	id, err := store.InsertSoundWithName(context.Background(), guildID, name, "user-1", "src", 3.0)
	require.NoError(t, err)
	return id
}

func TestResolveExact(t *testing.T) {
	store := storage.NewMemory()
	id := seedSound(t, store, "g1", "airhorn")
	r := NewResolver(store)

	n, err := r.Resolve(context.Background(), "g1", "airhorn")
	require.NoError(t, err)
	assert.Equal(t, id, n.SoundID)

	n, err = r.Resolve(context.Background(), "g1", "AIRHORN")
	require.NoError(t, err)
	assert.Equal(t, id, n.SoundID)
}

func TestResolveFollowsAlias(t *testing.T) {
	store := storage.NewMemory()
	id := seedSound(t, store, "g1", "airhorn")
	_, err := store.BindAlias(context.Background(), id, "g1", "horn", nil)
	require.NoError(t, err)
	r := NewResolver(store)

	n, err := r.Resolve(context.Background(), "g1", "horn")
	require.NoError(t, err)
	assert.Equal(t, id, n.SoundID)
	assert.True(t, n.IsAlias)
}

func TestResolveMissSuggests(t *testing.T) {
	store := storage.NewMemory()
	seedSound(t, store, "g1", "airhorn")
	seedSound(t, store, "g1", "klaxon")
	r := NewResolver(store)

	n, err := r.Resolve(context.Background(), "g1", "airhonr")
	require.Nil(t, n)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "airhonr", notFound.Name)
	require.NotEmpty(t, notFound.Suggestions)
	assert.Equal(t, "airhorn", notFound.Suggestions[0].Name)
	assert.Contains(t, notFound.Error(), "did you mean")

	// the wrapped sentinel survives for errors.Is checks
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestResolveMissWithoutSuggestions(t *testing.T) {
	store := storage.NewMemory()
	seedSound(t, store, "g1", "klaxon")
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "g1", "zzzz")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, notFound.Suggestions)
	assert.NotContains(t, notFound.Error(), "did you mean")
}

func TestResolveNeverAutoSelects(t *testing.T) {
	store := storage.NewMemory()
	seedSound(t, store, "g1", "airhorn")
	r := NewResolver(store)

	// a one-character miss still fails, even with a near-perfect match
	n, err := r.Resolve(context.Background(), "g1", "airhor")
	assert.Nil(t, n)
	require.Error(t, err)
}

func TestRand(t *testing.T) {
	store := storage.NewMemory()
	seedSound(t, store, "g1", "airhorn")
	r := NewResolver(store)

	n, err := r.Rand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "airhorn", n.Name)

	_, err = r.Rand(context.Background(), "empty")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearch(t *testing.T) {
	store := storage.NewMemory()
	seedSound(t, store, "g1", "airhorn")
	seedSound(t, store, "g1", "airhorn2")
	r := NewResolver(store)

	results, err := r.Search(context.Background(), "g1", "airhorn")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "airhorn", results[0].Name)
}
