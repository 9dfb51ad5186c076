package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()

	_, ok := m.Get("token")
	assert.False(t, ok)

	m.Set("token", "abc")
	v, ok := m.Get("token")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	m.Remove("token")
	_, ok = m.Get("token")
	assert.False(t, ok)
}

func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	f, err := NewFile(path)
	require.NoError(t, err)
	f.Set("token", "persisted")
	f.Set("wishlist", `[{"ad_id":"x"}]`)
	f.Remove("wishlist")

	// Новый экземпляр читает то, что записал старый
	reopened, err := NewFile(path)
	require.NoError(t, err)

	v, ok := reopened.Get("token")
	require.True(t, ok)
	assert.Equal(t, "persisted", v)

	_, ok = reopened.Get("wishlist")
	assert.False(t, ok)
}

func TestFileCorruptedStartsClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	f, err := NewFile(path)
	require.NoError(t, err)

	_, ok := f.Get("token")
	assert.False(t, ok)
}
