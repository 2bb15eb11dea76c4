package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, store.SetEx(ctx, "k", []byte("v"), time.Minute))

	value, err := store.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	exists, err := store.Exists(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Exists(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, exists)

	deleted, err := store.Del(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	assert.NoError(t, store.SetEx(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.NoError(t, store.SetEx(ctx, "k", []byte("v"), time.Minute))

	deleted, err := store.Del(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := []byte("value")
	assert.NoError(t, store.SetEx(ctx, "k", original, time.Minute))
	original[0] = 'X'

	stored, err := store.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), stored)

	stored[0] = 'Y'
	again, err := store.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}
