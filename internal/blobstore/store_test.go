package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"local":    NewLocalStore(t.TempDir()),
		"memory":   NewMemoryStore(),
		"prefixed": WithPrefix(NewMemoryStore(), "artifacts/"),
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			ok, err := s.Exists(ctx, "a/b.txt")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(ctx, "a/b.txt", []byte("one")))
			require.NoError(t, s.Put(ctx, "a/c.txt", []byte("two")))
			require.NoError(t, s.Put(ctx, "z.txt", []byte("three")))
			require.NoError(t, s.Put(ctx, "a/b.txt", []byte("uno")))

			got, err := s.Get(ctx, "a/b.txt")
			require.NoError(t, err)
			assert.Equal(t, "uno", string(got))

			ok, err = s.Exists(ctx, "a/b.txt")
			require.NoError(t, err)
			assert.True(t, ok)

			names, err := s.List(ctx, "a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/b.txt", "a/c.txt"}, names)

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/b.txt", "a/c.txt", "z.txt"}, all)

			require.NoError(t, s.Delete(ctx, "a/b.txt"))
			require.NoError(t, s.Delete(ctx, "a/b.txt"))
			_, err = s.Get(ctx, "a/b.txt")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", data))
	data[0] = 'x'

	got, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestLocalStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	require.NoError(t, s.Put(context.Background(), "x/y.bin", []byte{1, 2, 3}))

	entries, err := os.ReadDir(filepath.Join(dir, "x"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "y.bin", entries[0].Name())
}

func TestLocalStore_RejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(filepath.Join(dir, "root"))
	require.NoError(t, s.Put(context.Background(), "../outside.txt", []byte("x")))

	_, err := os.Stat(filepath.Join(dir, "outside.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "write escaped the root")
	_, err = os.Stat(filepath.Join(dir, "root", "outside.txt"))
	assert.NoError(t, err)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "nope"))
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
