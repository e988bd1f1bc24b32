package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Directory Layout", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data")
		f := NewFile(dir)

		_, err := f.Get(ctx, "voicescribe_notes")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, f.Put(ctx, "voicescribe_notes", []byte("[]")))
		got, err := f.Get(ctx, "voicescribe_notes")
		require.NoError(t, err)
		assert.Equal(t, "[]", string(got))

		_, err = os.Stat(filepath.Join(dir, "voicescribe_notes.json"))
		assert.NoError(t, err)
	})

	t.Run("Single File Layout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.json")
		f := NewFile(path)
		require.NoError(t, f.Put(ctx, "voicescribe_notes", []byte("one")))
		require.NoError(t, f.Put(ctx, "voicescribe_notes", []byte("two")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "two", string(data))
	})

	t.Run("Leaves No Temp Files", func(t *testing.T) {
		dir := t.TempDir()
		f := NewFile(dir)
		require.NoError(t, f.Put(ctx, "k", []byte("v")))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), tempFilePrefix), "stray temp file %s", e.Name())
		}
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	value := []byte("abc")
	require.NoError(t, m.Put(ctx, "k", value))
	value[0] = 'x'

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got), "stored value must not alias the caller's slice")
	assert.Equal(t, 1, m.Puts())
}
